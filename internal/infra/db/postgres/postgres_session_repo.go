// File: internal/infra/db/postgres/postgres_session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/repository"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

// SessionRepo stores session headers in sessions and the append-only log in
// session_messages. Every free-text column holds envelope parts only.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, owner_pseudonym_id,
  title_ct, title_nonce, title_tag, title_key_version,
  status, crisis_detected, crisis_level,
  total_messages, duration_ms, topics, wellness_score,
  retention_days, expires_at, started_at, last_message_at, ended_at, updated_at`

const messageColumns = `id, role, content_ct, content_nonce, content_tag, key_version,
  ts, message_type, sentiment, topics, wellness_score, labeled_at`

func (r *SessionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Session) error {
	if s == nil || s.ID == "" {
		return domain.ErrInvalidArgument
	}
	if tx != nil {
		exec, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		return r.create(ctx, exec, s)
	}
	t, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback(ctx) }()
	if err := r.create(ctx, t, s); err != nil {
		return err
	}
	return t.Commit(ctx)
}

func (r *SessionRepo) create(ctx context.Context, exec executor, s *model.Session) error {
	q := `INSERT INTO sessions (` + sessionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19);`
	ct, n, tag, kv := envelopeArgs(s.Title)
	_, err := exec.Exec(ctx, q,
		s.ID, s.OwnerPseudonymID,
		ct, n, tag, kv,
		string(s.Status), s.CrisisDetected, string(s.CrisisLevel),
		s.Analytics.TotalMessages, s.Analytics.SessionDuration.Milliseconds(),
		topicStrings(s.Analytics.Topics), s.Analytics.WellnessScore,
		s.RetentionDays, s.ExpiresAt, s.StartedAt, s.LastMessageAt, s.EndedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	for i := range s.Messages {
		if err := insertMessage(ctx, exec, s.ID, i, &s.Messages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *SessionRepo) FindByID(ctx context.Context, tx repository.Tx, id string, asOf time.Time) (*model.Session, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	return loadSession(ctx, exec, id, asOf, false)
}

func loadSession(ctx context.Context, exec executor, id string, asOf time.Time, forUpdate bool) (*model.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND expires_at > $2`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	s, err := scanSession(exec.QueryRow(ctx, q, id, asOf))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	msgs, err := loadMessages(ctx, exec, id)
	if err != nil {
		return nil, err
	}
	s.Messages = msgs
	s.Recompute()
	return s, nil
}

func loadMessages(ctx context.Context, exec executor, sessionID string) ([]model.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM session_messages WHERE session_id = $1 ORDER BY seq;`
	rows, err := exec.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()
	out := make([]model.Message, 0, 16)
	for rows.Next() {
		var (
			m           model.Message
			role, mtype string
			sentiment   *string
			topics      []string
			wellness    *int32
			kv          int32
		)
		if err := rows.Scan(&m.ID, &role, &m.Content.Ciphertext, &m.Content.Nonce, &m.Content.Tag, &kv,
			&m.Timestamp, &mtype, &sentiment, &topics, &wellness, &m.LabeledAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.Content.KeyVersion = int(kv)
		m.MessageType = model.MessageType(mtype)
		if sentiment != nil {
			m.Sentiment = model.Sentiment(*sentiment)
		}
		m.Topics = toTopics(topics)
		if wellness != nil {
			v := int(*wellness)
			m.WellnessScore = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SessionRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, asOf time.Time, offset, limit int) ([]*model.Session, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + sessionColumns + ` FROM sessions
WHERE owner_pseudonym_id = $1 AND expires_at > $2
ORDER BY started_at DESC, id DESC OFFSET $3 LIMIT $4;`
	return queryHeaders(ctx, exec, q, ownerID, asOf, offset, limit)
}

func (r *SessionRepo) ListCrisis(ctx context.Context, tx repository.Tx, asOf time.Time, limit int) ([]*model.Session, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + sessionColumns + ` FROM sessions
WHERE crisis_detected AND status IN ('active','paused') AND expires_at > $1
ORDER BY last_message_at DESC LIMIT $2;`
	return queryHeaders(ctx, exec, q, asOf, batchLimit(limit))
}

func queryHeaders(ctx context.Context, exec executor, q string, args ...interface{}) ([]*model.Session, error) {
	rows, err := exec.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	out := make([]*model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update runs load, fn and persist in one transaction holding the session row
// lock, so concurrent updates of the same session are applied one at a time.
func (r *SessionRepo) Update(ctx context.Context, id string, asOf time.Time, fn repository.SessionMutation) (*model.Session, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := loadSession(ctx, tx, id, asOf, true)
	if err != nil {
		return nil, err
	}
	before := len(s.Messages)
	wasLabeled := make([]bool, before)
	ids := make([]string, before)
	for i := range s.Messages {
		wasLabeled[i] = s.Messages[i].Labeled()
		ids[i] = s.Messages[i].ID
	}

	if err := fn(s); err != nil {
		return nil, err
	}

	if len(s.Messages) < before {
		return nil, fmt.Errorf("%w: message log shrank", domain.ErrInvalidArgument)
	}
	for i := 0; i < before; i++ {
		m := &s.Messages[i]
		if m.ID != ids[i] {
			return nil, fmt.Errorf("%w: message log rewritten", domain.ErrInvalidArgument)
		}
		if !wasLabeled[i] && m.Labeled() {
			if err := updateLabels(ctx, tx, s.ID, i, m); err != nil {
				return nil, err
			}
		}
	}
	for i := before; i < len(s.Messages); i++ {
		if err := insertMessage(ctx, tx, s.ID, i, &s.Messages[i]); err != nil {
			return nil, err
		}
	}
	if err := updateHeader(ctx, tx, s); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func insertMessage(ctx context.Context, exec executor, sessionID string, seq int, m *model.Message) error {
	const q = `
INSERT INTO session_messages (session_id, seq, id, role, content_ct, content_nonce, content_tag, key_version,
  ts, message_type, sentiment, topics, wellness_score, labeled_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`
	_, err := exec.Exec(ctx, q, sessionID, seq, m.ID, string(m.Role),
		m.Content.Ciphertext, m.Content.Nonce, m.Content.Tag, m.Content.KeyVersion,
		m.Timestamp, string(m.MessageType), nullableSentiment(m.Sentiment), topicStrings(m.Topics),
		m.WellnessScore, m.LabeledAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// updateLabels only ever fills a row that has no labels yet.
func updateLabels(ctx context.Context, exec executor, sessionID string, seq int, m *model.Message) error {
	const q = `
UPDATE session_messages
SET message_type = $3, sentiment = $4, topics = $5, wellness_score = $6, labeled_at = $7
WHERE session_id = $1 AND seq = $2 AND labeled_at IS NULL;`
	_, err := exec.Exec(ctx, q, sessionID, seq, string(m.MessageType), nullableSentiment(m.Sentiment),
		topicStrings(m.Topics), m.WellnessScore, m.LabeledAt)
	if err != nil {
		return fmt.Errorf("label message: %w", err)
	}
	return nil
}

func updateHeader(ctx context.Context, exec executor, s *model.Session) error {
	const q = `
UPDATE sessions SET
  title_ct = $2, title_nonce = $3, title_tag = $4, title_key_version = $5,
  status = $6, crisis_detected = $7, crisis_level = $8,
  total_messages = $9, duration_ms = $10, topics = $11, wellness_score = $12,
  retention_days = $13, expires_at = $14, last_message_at = $15, ended_at = $16, updated_at = $17
WHERE id = $1;`
	ct, n, tag, kv := envelopeArgs(s.Title)
	_, err := exec.Exec(ctx, q, s.ID,
		ct, n, tag, kv,
		string(s.Status), s.CrisisDetected, string(s.CrisisLevel),
		s.Analytics.TotalMessages, s.Analytics.SessionDuration.Milliseconds(),
		topicStrings(s.Analytics.Topics), s.Analytics.WellnessScore,
		s.RetentionDays, s.ExpiresAt, s.LastMessageAt, s.EndedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, `DELETE FROM sessions WHERE id = $1;`, id)
	if isInvalidText(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteExpired removes one batch; messages follow through ON DELETE CASCADE
// within the same statement.
func (r *SessionRepo) DeleteExpired(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	const q = `
DELETE FROM sessions WHERE id IN (
  SELECT id FROM sessions WHERE expires_at <= $1
  ORDER BY expires_at LIMIT $2 FOR UPDATE SKIP LOCKED
) RETURNING id::text;`
	return collectIDs(ctx, r.pool, q, asOf, batchLimit(limit))
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		s             model.Session
		status, level string
		te            envelopeCols
		durationMs    int64
		topics        []string
		wellness      *int32
	)
	err := row.Scan(
		&s.ID, &s.OwnerPseudonymID,
		&te.ct, &te.nonce, &te.tag, &te.kv,
		&status, &s.CrisisDetected, &level,
		&s.Analytics.TotalMessages, &durationMs, &topics, &wellness,
		&s.RetentionDays, &s.ExpiresAt, &s.StartedAt, &s.LastMessageAt, &s.EndedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	s.CrisisLevel = model.CrisisLevel(level)
	s.Title = te.envelope()
	s.Analytics.SessionDuration = time.Duration(durationMs) * time.Millisecond
	s.Analytics.Topics = toTopics(topics)
	if wellness != nil {
		v := int(*wellness)
		s.Analytics.WellnessScore = &v
	}
	return &s, nil
}

func topicStrings(ts []model.Topic) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

func toTopics(ss []string) []model.Topic {
	if len(ss) == 0 {
		return nil
	}
	out := make([]model.Topic, len(ss))
	for i, s := range ss {
		out[i] = model.Topic(s)
	}
	return out
}

func nullableSentiment(s model.Sentiment) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

// isInvalidText reports a value Postgres could not parse for its column type,
// e.g. a session id that is not a UUID.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

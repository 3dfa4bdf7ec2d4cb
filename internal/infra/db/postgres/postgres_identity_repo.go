// File: internal/infra/db/postgres/postgres_identity_repo.go
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

var _ repository.IdentityRepository = (*IdentityRepo)(nil)

type IdentityRepo struct {
	pool *pgxpool.Pool
}

func NewIdentityRepo(pool *pgxpool.Pool) *IdentityRepo {
	return &IdentityRepo{pool: pool}
}

const identityColumns = `pseudonym_id, credential_hash,
  contact_ct, contact_nonce, contact_tag, contact_key_version,
  theme, language, notifications, share_analytics, allow_crisis_contact,
  retention_days, expires_at, status, created_at, updated_at, last_active_at`

func identityArgs(i *model.Identity) []interface{} {
	ct, n, tag, kv := envelopeArgs(i.Contact)
	return []interface{}{
		i.PseudonymID, i.CredentialHash,
		ct, n, tag, kv,
		i.Preferences.Theme, i.Preferences.Language, i.Preferences.Notifications,
		i.Privacy.ShareAnalytics, i.Privacy.AllowCrisisContact,
		i.RetentionDays, i.ExpiresAt, string(i.Status), i.CreatedAt, i.UpdatedAt, i.LastActiveAt,
	}
}

func (r *IdentityRepo) Create(ctx context.Context, tx repository.Tx, i *model.Identity) error {
	if i.IsZero() {
		return domain.ErrInvalidArgument
	}
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	q := `INSERT INTO identities (` + identityColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`
	if _, err := exec.Exec(ctx, q, identityArgs(i)...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (r *IdentityRepo) Save(ctx context.Context, tx repository.Tx, i *model.Identity) error {
	if i.IsZero() {
		return domain.ErrInvalidArgument
	}
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
UPDATE identities SET
  credential_hash = $2,
  contact_ct = $3, contact_nonce = $4, contact_tag = $5, contact_key_version = $6,
  theme = $7, language = $8, notifications = $9,
  share_analytics = $10, allow_crisis_contact = $11,
  retention_days = $12, expires_at = $13, status = $14,
  created_at = $15, updated_at = $16, last_active_at = $17
WHERE pseudonym_id = $1;`
	tag, err := exec.Exec(ctx, q, identityArgs(i)...)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *IdentityRepo) FindByID(ctx context.Context, tx repository.Tx, pseudonymID string, asOf time.Time) (*model.Identity, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + identityColumns + ` FROM identities WHERE pseudonym_id = $1 AND expires_at > $2`
	if tx != nil {
		// read-modify-write inside WithTx
		q += ` FOR UPDATE`
	}
	i, err := scanIdentity(exec.QueryRow(ctx, q, pseudonymID, asOf))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return i, nil
}

// DeleteExpired purges one batch in a single statement.
func (r *IdentityRepo) DeleteExpired(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	const q = `
DELETE FROM identities WHERE pseudonym_id IN (
  SELECT pseudonym_id FROM identities WHERE expires_at <= $1
  ORDER BY expires_at LIMIT $2 FOR UPDATE SKIP LOCKED
) RETURNING pseudonym_id;`
	return collectIDs(ctx, r.pool, q, asOf, batchLimit(limit))
}

func scanIdentity(row pgx.Row) (*model.Identity, error) {
	var (
		i      model.Identity
		status string
		ce     envelopeCols
	)
	err := row.Scan(
		&i.PseudonymID, &i.CredentialHash,
		&ce.ct, &ce.nonce, &ce.tag, &ce.kv,
		&i.Preferences.Theme, &i.Preferences.Language, &i.Preferences.Notifications,
		&i.Privacy.ShareAnalytics, &i.Privacy.AllowCrisisContact,
		&i.RetentionDays, &i.ExpiresAt, &status, &i.CreatedAt, &i.UpdatedAt, &i.LastActiveAt,
	)
	if err != nil {
		return nil, err
	}
	i.Status = model.IdentityStatus(status)
	i.Contact = ce.envelope()
	return &i, nil
}

// envelopeCols scans the four nullable columns of an optional envelope.
type envelopeCols struct {
	ct, nonce, tag []byte
	kv             *int32
}

func (c envelopeCols) envelope() *model.Envelope {
	if c.ct == nil && c.nonce == nil && c.tag == nil {
		return nil
	}
	e := model.Envelope{Ciphertext: c.ct, Nonce: c.nonce, Tag: c.tag}
	if c.kv != nil {
		e.KeyVersion = int(*c.kv)
	}
	return &e
}

func envelopeArgs(e *model.Envelope) (ct, nonce, tag []byte, kv *int32) {
	if e == nil {
		return nil, nil, nil, nil
	}
	v := int32(e.KeyVersion)
	return e.Ciphertext, e.Nonce, e.Tag, &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func batchLimit(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}

func collectIDs(ctx context.Context, exec executor, q string, args ...interface{}) ([]string, error) {
	rows, err := exec.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/adapter"
	"mindspace/internal/domain/ports/repository"
	"mindspace/internal/infra/logging"
	"mindspace/internal/infra/metrics"
	red "mindspace/internal/infra/redis"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

const (
	MaxMessageLen     = 2000
	maxTitleLen       = 200
	defaultListLimit  = 10
	maxListLimit      = 100
	defaultHistoryLen = 15
	notifyTimeout     = 5 * time.Second
	audienceYouth     = "youth"
)

type SessionUseCase interface {
	Start(ctx context.Context, ownerID string, in StartInput) (*SessionView, error)
	SendMessage(ctx context.Context, ownerID, sessionID, text string) (*Exchange, error)
	AppendMessage(ctx context.Context, ownerID, sessionID string, role model.Role, text string, mtype model.MessageType) (*MessageView, error)
	ApplyClassification(ctx context.Context, sessionID, messageID string, c adapter.Classification) (*CrisisOutcome, error)
	RetryLabels(ctx context.Context, ownerID, sessionID string) (int, error)
	Get(ctx context.Context, ownerID, sessionID string) (*SessionView, error)
	Summary(ctx context.Context, ownerID, sessionID string) (*SessionSummary, error)
	List(ctx context.Context, ownerID string, offset, limit int) ([]SessionView, error)
	Pause(ctx context.Context, ownerID, sessionID string) (*SessionView, error)
	Resume(ctx context.Context, ownerID, sessionID string) (*SessionView, error)
	End(ctx context.Context, ownerID, sessionID string) (*SessionView, error)
	ListCrisis(ctx context.Context, limit int) ([]SessionView, error)
}

type StartInput struct {
	Title         string
	RetentionDays int
}

// Dispatcher runs side effects off the request path. *worker.Pool satisfies it.
type Dispatcher interface {
	Submit(kind string, task func(ctx context.Context) error) error
}

// SessionSettings are the tunables of the session use case.
type SessionSettings struct {
	RetentionDays int           // default for new sessions
	LeaseTTL      time.Duration // upper bound of one exchange
	HistoryLen    int           // prior messages sent to the classifier
}

type sessionUC struct {
	sessions   repository.SessionRepository
	identities repository.IdentityRepository
	classifier adapter.Classifier
	cipher     adapter.Cipher
	locker     repository.Locker
	notifier   adapter.EscalationNotifier
	dispatch   Dispatcher
	cfg        SessionSettings
	now        func() time.Time
	log        *zerolog.Logger
}

// NewSessionUseCase wires the session engine. identities, locker, notifier
// and dispatch may be nil: ownership is then not re-checked at start, the
// per-session lease is skipped, escalations are only logged, and
// notifications run on a plain goroutine.
func NewSessionUseCase(
	sessions repository.SessionRepository,
	identities repository.IdentityRepository,
	classifier adapter.Classifier,
	cipher adapter.Cipher,
	locker repository.Locker,
	notifier adapter.EscalationNotifier,
	dispatch Dispatcher,
	cfg SessionSettings,
	now func() time.Time,
	logger *zerolog.Logger,
) *sessionUC {
	if now == nil {
		now = time.Now
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = model.DefaultSessionRetentionDays
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = defaultHistoryLen
	}
	l := logger.With().Str("component", "SessionUC").Logger()
	if notifier == nil {
		notifier = NewLogNotifier(&l)
	}
	return &sessionUC{
		sessions:   sessions,
		identities: identities,
		classifier: classifier,
		cipher:     cipher,
		locker:     locker,
		notifier:   notifier,
		dispatch:   dispatch,
		cfg:        cfg,
		now:        now,
		log:        &l,
	}
}

func newMessageID() string { return ulid.Make().String() }

func validateText(text string, max int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: message is empty", domain.ErrValidation)
	}
	if utf8.RuneCountInString(text) > max {
		return "", fmt.Errorf("%w: message exceeds %d characters", domain.ErrValidation, max)
	}
	return text, nil
}

// owned rejects sessions of other owners as if they did not exist.
func owned(s *model.Session, ownerID string) error {
	if s.OwnerPseudonymID != ownerID {
		return domain.ErrNotFound
	}
	return nil
}

func (uc *sessionUC) Start(ctx context.Context, ownerID string, in StartInput) (*SessionView, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.Start")()

	now := uc.now()
	if uc.identities != nil {
		id, err := uc.identities.FindByID(ctx, repository.NoTX, ownerID, now)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		if err != nil {
			return nil, err
		}
		if id.Status != model.IdentityActive {
			return nil, domain.ErrUnauthorized
		}
	}
	days := in.RetentionDays
	if days == 0 {
		days = uc.cfg.RetentionDays
	}
	s, err := model.NewSession(uuid.NewString(), ownerID, days, now)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title != "" {
		if utf8.RuneCountInString(title) > maxTitleLen {
			return nil, fmt.Errorf("%w: title exceeds %d characters", domain.ErrValidation, maxTitleLen)
		}
		env, err := uc.cipher.Encrypt(title)
		if err != nil {
			return nil, fmt.Errorf("seal title: %w", err)
		}
		s.Title = &env
	}
	if err := uc.sessions.Create(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	metrics.IncSessionsStarted()
	v := headerView(s)
	v.Title = title
	return &v, nil
}

// checkSessionID rejects ids that cannot name a session. Such ids are
// reported as absent rather than reaching the store.
func checkSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	return nil
}

// lease takes the per-session exchange lease. The returned release func is
// always safe to call.
func (uc *sessionUC) lease(ctx context.Context, sessionID string) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}
	key := red.SessionLockKey(sessionID)
	token, err := uc.locker.TryLock(ctx, key, uc.cfg.LeaseTTL)
	if errors.Is(err, domain.ErrLocked) {
		metrics.IncSessionBusy()
		return func() {}, domain.ErrSessionBusy
	}
	if err != nil {
		return func() {}, fmt.Errorf("acquire session lease: %w", err)
	}
	return func() {
		// release even if the request context is already gone
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := uc.locker.Unlock(rctx, key, token); err != nil {
			uc.log.Warn().Err(err).Str("session_id", sessionID).Msg("release session lease")
		}
	}, nil
}

func (uc *sessionUC) SendMessage(ctx context.Context, ownerID, sessionID, text string) (*Exchange, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.SendMessage")()
	log := logging.With(logging.WithSessID(ctx, sessionID), uc.log)

	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	text, err := validateText(text, MaxMessageLen)
	if err != nil {
		return nil, err
	}
	release, err := uc.lease(ctx, sessionID)
	defer release()
	if err != nil {
		return nil, err
	}

	env, err := uc.cipher.Encrypt(text)
	if err != nil {
		return nil, fmt.Errorf("seal message: %w", err)
	}
	userMsg := model.Message{ID: newMessageID(), Role: model.RoleUser, Content: env}
	s, err := uc.sessions.Update(ctx, sessionID, uc.now(), func(s *model.Session) error {
		if err := owned(s, ownerID); err != nil {
			return err
		}
		return s.Append(userMsg, uc.now())
	})
	if err != nil {
		return nil, err
	}
	metrics.IncMessagesAppended(string(model.RoleUser))
	stored := s.Message(userMsg.ID)
	ex := &Exchange{UserMessage: messageView(stored, text, false)}

	req := adapter.ClassifyRequest{
		Message: text,
		History: uc.history(ctx, s, len(s.Messages)-1),
		Context: adapter.SessionContext{SessionID: s.ID, CrisisLevel: s.CrisisLevel, Audience: audienceYouth},
	}
	c, err := uc.classifier.Classify(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("classifier", uc.classifier.Name()).Msg("classification failed; message kept unlabelled")
		ex.Session = headerView(s)
		ex.LabelsPending = true
		return ex, nil
	}

	reply, err := uc.cipher.Encrypt(c.Response)
	if err != nil {
		return nil, fmt.Errorf("seal reply: %w", err)
	}
	replyMsg := model.Message{ID: newMessageID(), Role: model.RoleAssistant, Content: reply, MessageType: c.MessageType}
	var outcome CrisisOutcome
	replied := false
	s, err = uc.sessions.Update(ctx, sessionID, uc.now(), func(s *model.Session) error {
		now := uc.now()
		if _, err := s.Label(userMsg.ID, c.Labels(), now); err != nil {
			return err
		}
		// reply first: an escalation closes the session
		replied = false
		if s.Open() {
			if err := s.Append(replyMsg, now); err != nil {
				return err
			}
			replied = true
		}
		outcome = uc.applyCrisis(s, c.CrisisLevel, now)
		outcome.Labeled = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replied {
		metrics.IncMessagesAppended(string(model.RoleAssistant))
		rv := messageView(s.Message(replyMsg.ID), c.Response, false)
		ex.Reply = &rv
	}
	uc.afterCrisis(ctx, s, c.CrisisLevel, outcome)

	ex.UserMessage = messageView(s.Message(userMsg.ID), text, false)
	ex.Session = headerView(s)
	ex.Escalated = outcome.Escalated
	return ex, nil
}

// applyCrisis runs the coordinator inside an update.
func (uc *sessionUC) applyCrisis(s *model.Session, level model.CrisisLevel, now time.Time) CrisisOutcome {
	_, escalated := s.ApplyCrisis(level, now)
	return CrisisOutcome{Level: s.CrisisLevel, Detected: s.CrisisDetected, Escalated: escalated}
}

// afterCrisis records metrics and fires the escalation hook once the update
// has been persisted.
func (uc *sessionUC) afterCrisis(ctx context.Context, s *model.Session, incoming model.CrisisLevel, o CrisisOutcome) {
	if incoming.Valid() {
		metrics.IncCrisisLevel(string(incoming))
	}
	if !o.Escalated {
		return
	}
	metrics.IncCrisisEscalation()
	metrics.IncSessionTransition(string(model.SessionCrisisEscalated))
	uc.notifyEscalation(ctx, adapter.EscalationEvent{
		SessionID:        s.ID,
		OwnerPseudonymID: s.OwnerPseudonymID,
		Level:            incoming,
		At:               uc.now(),
	})
}

func (uc *sessionUC) notifyEscalation(ctx context.Context, ev adapter.EscalationEvent) {
	log := logging.With(ctx, uc.log)
	task := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		return uc.notifier.NotifyEscalation(ctx, ev)
	}
	if uc.dispatch == nil {
		go func() {
			if err := task(context.Background()); err != nil {
				log.Error().Err(err).Str("session_id", ev.SessionID).Msg("escalation notify failed")
			}
		}()
		return
	}
	if err := uc.dispatch.Submit("escalation_notify", task); err != nil {
		log.Error().Err(err).Str("session_id", ev.SessionID).Msg("escalation notify not dispatched")
	}
}

// history decrypts up to HistoryLen messages before index upto. Entries that
// fail to decrypt are left out of the prompt.
func (uc *sessionUC) history(ctx context.Context, s *model.Session, upto int) []adapter.Message {
	start := upto - uc.cfg.HistoryLen
	if start < 0 {
		start = 0
	}
	out := make([]adapter.Message, 0, upto-start)
	for i := start; i < upto; i++ {
		m := &s.Messages[i]
		pt, err := uc.cipher.Decrypt(m.Content)
		if err != nil {
			uc.decryptFailed(ctx, "message", s.ID, m.ID, err)
			continue
		}
		out = append(out, adapter.Message{Role: string(m.Role), Content: pt})
	}
	return out
}

func (uc *sessionUC) decryptFailed(ctx context.Context, field, sessionID, messageID string, err error) {
	metrics.IncDecryptFailure(field)
	logging.With(ctx, uc.log).Warn().Err(err).
		Str("field", field).
		Str("session_id", sessionID).
		Str("message_id", messageID).
		Msg("decrypt failed; rendering placeholder")
}

func (uc *sessionUC) AppendMessage(ctx context.Context, ownerID, sessionID string, role model.Role, text string, mtype model.MessageType) (*MessageView, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.AppendMessage")()

	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, role)
	}
	text, err := validateText(text, MaxMessageLen)
	if err != nil {
		return nil, err
	}
	env, err := uc.cipher.Encrypt(text)
	if err != nil {
		return nil, fmt.Errorf("seal message: %w", err)
	}
	msg := model.Message{ID: newMessageID(), Role: role, Content: env, MessageType: mtype}
	s, err := uc.sessions.Update(ctx, sessionID, uc.now(), func(s *model.Session) error {
		if err := owned(s, ownerID); err != nil {
			return err
		}
		return s.Append(msg, uc.now())
	})
	if err != nil {
		return nil, err
	}
	metrics.IncMessagesAppended(string(role))
	v := messageView(s.Message(msg.ID), text, false)
	return &v, nil
}

// ApplyClassification labels a message once and feeds its crisis level
// through the coordinator. Re-applying to a labelled message is a no-op.
func (uc *sessionUC) ApplyClassification(ctx context.Context, sessionID, messageID string, c adapter.Classification) (*CrisisOutcome, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.ApplyClassification")()

	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	var out CrisisOutcome
	s, err := uc.sessions.Update(ctx, sessionID, uc.now(), func(s *model.Session) error {
		now := uc.now()
		labeled, err := s.Label(messageID, c.Labels(), now)
		if err != nil {
			return err
		}
		if !labeled {
			out = CrisisOutcome{Level: s.CrisisLevel, Detected: s.CrisisDetected}
			return nil
		}
		out = uc.applyCrisis(s, c.CrisisLevel, now)
		out.Labeled = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Labeled {
		uc.afterCrisis(ctx, s, c.CrisisLevel, out)
	}
	return &out, nil
}

// RetryLabels re-classifies user messages whose labels are still missing.
// Only labels and the crisis state are updated; no replies are generated.
func (uc *sessionUC) RetryLabels(ctx context.Context, ownerID, sessionID string) (int, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.RetryLabels")()

	if err := checkSessionID(sessionID); err != nil {
		return 0, err
	}
	release, err := uc.lease(ctx, sessionID)
	defer release()
	if err != nil {
		return 0, err
	}
	s, err := uc.sessions.FindByID(ctx, repository.NoTX, sessionID, uc.now())
	if err != nil {
		return 0, err
	}
	if err := owned(s, ownerID); err != nil {
		return 0, err
	}

	done := 0
	for i := range s.Messages {
		m := &s.Messages[i]
		if m.Role != model.RoleUser || m.Labeled() {
			continue
		}
		text, err := uc.cipher.Decrypt(m.Content)
		if err != nil {
			uc.decryptFailed(ctx, "message", s.ID, m.ID, err)
			continue
		}
		c, err := uc.classifier.Classify(ctx, adapter.ClassifyRequest{
			Message: text,
			History: uc.history(ctx, s, i),
			Context: adapter.SessionContext{SessionID: s.ID, CrisisLevel: s.CrisisLevel, Audience: audienceYouth},
		})
		if err != nil {
			return done, err
		}
		out, err := uc.ApplyClassification(ctx, s.ID, m.ID, c)
		if err != nil {
			return done, err
		}
		if out.Labeled {
			done++
		}
		s.CrisisLevel = out.Level
	}
	return done, nil
}

func (uc *sessionUC) Get(ctx context.Context, ownerID, sessionID string) (*SessionView, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.Get")()

	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	s, err := uc.sessions.FindByID(ctx, repository.NoTX, sessionID, uc.now())
	if err != nil {
		return nil, err
	}
	if err := owned(s, ownerID); err != nil {
		return nil, err
	}
	v := uc.view(ctx, s)
	v.Messages = make([]MessageView, 0, len(s.Messages))
	for i := range s.Messages {
		m := &s.Messages[i]
		pt, err := uc.cipher.Decrypt(m.Content)
		if err != nil {
			uc.decryptFailed(ctx, "message", s.ID, m.ID, err)
			v.Messages = append(v.Messages, messageView(m, model.RedactedContent, true))
			continue
		}
		v.Messages = append(v.Messages, messageView(m, pt, false))
	}
	return &v, nil
}

// Summary reports labels and analytics only. Nothing is decrypted.
func (uc *sessionUC) Summary(ctx context.Context, ownerID, sessionID string) (*SessionSummary, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	s, err := uc.sessions.FindByID(ctx, repository.NoTX, sessionID, uc.now())
	if err != nil {
		return nil, err
	}
	if err := owned(s, ownerID); err != nil {
		return nil, err
	}
	out := summarize(s)
	return &out, nil
}

// view renders the header with its decrypted title.
func (uc *sessionUC) view(ctx context.Context, s *model.Session) SessionView {
	v := headerView(s)
	if s.Title != nil {
		t, err := uc.cipher.Decrypt(*s.Title)
		if err != nil {
			uc.decryptFailed(ctx, "title", s.ID, "", err)
			t = model.RedactedContent
		}
		v.Title = t
	}
	return v
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (uc *sessionUC) List(ctx context.Context, ownerID string, offset, limit int) ([]SessionView, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.List")()
	if offset < 0 {
		offset = 0
	}
	ss, err := uc.sessions.ListByOwner(ctx, repository.NoTX, ownerID, uc.now(), offset, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(ss))
	for _, s := range ss {
		out = append(out, uc.view(ctx, s))
	}
	return out, nil
}

func (uc *sessionUC) transition(ctx context.Context, ownerID, sessionID string, action model.SessionAction) (*SessionView, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	s, err := uc.sessions.Update(ctx, sessionID, uc.now(), func(s *model.Session) error {
		if err := owned(s, ownerID); err != nil {
			return err
		}
		return s.Transition(action, uc.now())
	})
	if err != nil {
		return nil, err
	}
	metrics.IncSessionTransition(string(s.Status))
	v := uc.view(ctx, s)
	return &v, nil
}

func (uc *sessionUC) Pause(ctx context.Context, ownerID, sessionID string) (*SessionView, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.Pause")()
	return uc.transition(ctx, ownerID, sessionID, model.ActionPause)
}

func (uc *sessionUC) Resume(ctx context.Context, ownerID, sessionID string) (*SessionView, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.Resume")()
	return uc.transition(ctx, ownerID, sessionID, model.ActionResume)
}

func (uc *sessionUC) End(ctx context.Context, ownerID, sessionID string) (*SessionView, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.End")()
	return uc.transition(ctx, ownerID, sessionID, model.ActionEnd)
}

// ListCrisis is the operator view of open sessions with a detected crisis.
// Titles are user content and are left out.
func (uc *sessionUC) ListCrisis(ctx context.Context, limit int) ([]SessionView, error) {
	defer logging.TraceDuration(uc.log, "SessionUC.ListCrisis")()
	ss, err := uc.sessions.ListCrisis(ctx, repository.NoTX, uc.now(), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(ss))
	for _, s := range ss {
		out = append(out, headerView(s))
	}
	return out, nil
}

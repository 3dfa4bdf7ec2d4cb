package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/adapter"
	"mindspace/internal/infra/db/memstore"
	"mindspace/internal/infra/security"
)

// ---- Fakes ----

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const (
	testKey  = "0123456789abcdef0123456789abcdef"
	otherKey = "fedcba9876543210fedcba9876543210"
	ownerID  = "owner-1"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubClassifier struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	fn    func(req adapter.ClassifyRequest) (adapter.Classification, error)
	reqs  []adapter.ClassifyRequest
}

func (s *stubClassifier) Name() string { return "stub" }

func (s *stubClassifier) Classify(ctx context.Context, req adapter.ClassifyRequest) (adapter.Classification, error) {
	s.mu.Lock()
	s.calls++
	s.reqs = append(s.reqs, req)
	fn := s.fn
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return adapter.Classification{}, ctx.Err()
		}
	}
	if fn == nil {
		return reply("I'm listening.", model.CrisisNone), nil
	}
	return fn(req)
}

func (s *stubClassifier) set(fn func(req adapter.ClassifyRequest) (adapter.Classification, error)) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
}

func reply(text string, level model.CrisisLevel) adapter.Classification {
	return adapter.Classification{
		Response:    text,
		CrisisLevel: level,
		Sentiment:   model.SentimentNeutral,
		MessageType: model.MessageGeneral,
		Topics:      []model.Topic{model.TopicSchool},
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []adapter.EscalationEvent
}

func (n *recordingNotifier) NotifyEscalation(ctx context.Context, ev adapter.EscalationEvent) error {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// inlineDispatcher runs tasks synchronously so tests can observe them.
type inlineDispatcher struct{}

func (inlineDispatcher) Submit(kind string, task func(ctx context.Context) error) error {
	return task(context.Background())
}

type harness struct {
	clock      *fakeClock
	sessions   *memstore.SessionRepo
	identities *memstore.IdentityRepo
	locker     *memstore.Locker
	classifier *stubClassifier
	notifier   *recordingNotifier
	cipher     *security.EncryptionService
	uc         *sessionUC
}

func newCipher(t *testing.T, key string) *security.EncryptionService {
	t.Helper()
	c, err := security.NewEncryptionService(map[int]string{1: key}, 1)
	if err != nil {
		t.Fatalf("NewEncryptionService: %v", err)
	}
	return c
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:      &fakeClock{t: t0},
		sessions:   memstore.NewSessionRepo(),
		identities: memstore.NewIdentityRepo(),
		classifier: &stubClassifier{},
		notifier:   &recordingNotifier{},
		cipher:     newCipher(t, testKey),
	}
	h.locker = memstore.NewLocker(h.clock.Now)
	owner, err := model.NewIdentity(ownerID, "hash", 30, t0)
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	if err := h.identities.Create(context.Background(), nil, owner); err != nil {
		t.Fatalf("Create identity: %v", err)
	}
	h.uc = h.build(h.cipher)
	return h
}

// build returns a use case over the same stores with a different cipher.
func (h *harness) build(c adapter.Cipher) *sessionUC {
	log := zerolog.Nop()
	return NewSessionUseCase(h.sessions, h.identities, h.classifier, c, h.locker, h.notifier,
		inlineDispatcher{}, SessionSettings{LeaseTTL: time.Minute}, h.clock.Now, &log)
}

func (h *harness) start(t *testing.T) *SessionView {
	t.Helper()
	v, err := h.uc.Start(context.Background(), ownerID, StartInput{Title: "after school"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return v
}

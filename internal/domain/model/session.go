package model

import (
	"sort"
	"time"

	"mindspace/internal/domain"
)

type SessionStatus string

const (
	SessionActive          SessionStatus = "active"
	SessionPaused          SessionStatus = "paused"
	SessionEnded           SessionStatus = "ended"
	SessionCrisisEscalated SessionStatus = "crisis_escalated"
)

// Terminal reports whether no further transition or append is permitted.
func (s SessionStatus) Terminal() bool {
	return s == SessionEnded || s == SessionCrisisEscalated
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionEnded, SessionCrisisEscalated:
		return true
	}
	return false
}

type SessionAction string

const (
	ActionPause    SessionAction = "pause"
	ActionResume   SessionAction = "resume"
	ActionEnd      SessionAction = "end"
	ActionEscalate SessionAction = "escalate"
)

// NextStatus is the session state machine. Terminal states reject every action
// with ErrSessionClosed; a legal-looking action from the wrong open state is
// ErrInvalidTransition.
func NextStatus(from SessionStatus, action SessionAction) (SessionStatus, error) {
	if from.Terminal() {
		return from, domain.ErrSessionClosed
	}
	switch action {
	case ActionPause:
		if from == SessionActive {
			return SessionPaused, nil
		}
	case ActionResume:
		if from == SessionPaused {
			return SessionActive, nil
		}
	case ActionEnd:
		if from == SessionActive || from == SessionPaused {
			return SessionEnded, nil
		}
	case ActionEscalate:
		if from == SessionActive || from == SessionPaused {
			return SessionCrisisEscalated, nil
		}
	}
	return from, domain.ErrInvalidTransition
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentCrisis   Sentiment = "crisis"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentCrisis:
		return true
	}
	return false
}

type MessageType string

const (
	MessageGeneral         MessageType = "general"
	MessageCrisis          MessageType = "crisis"
	MessageWellness        MessageType = "wellness"
	MessageResourceRequest MessageType = "resource_request"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageGeneral, MessageCrisis, MessageWellness, MessageResourceRequest:
		return true
	}
	return false
}

type Topic string

const (
	TopicAnxiety       Topic = "anxiety"
	TopicDepression    Topic = "depression"
	TopicStress        Topic = "stress"
	TopicRelationships Topic = "relationships"
	TopicSchool        Topic = "school"
	TopicFamily        Topic = "family"
	TopicIdentity      Topic = "identity"
	TopicOther         Topic = "other"
)

func (t Topic) Valid() bool {
	switch t {
	case TopicAnxiety, TopicDepression, TopicStress, TopicRelationships,
		TopicSchool, TopicFamily, TopicIdentity, TopicOther:
		return true
	}
	return false
}

// Message is one entry of a session log. Content is only ever held sealed.
type Message struct {
	ID            string
	Role          Role
	Content       Envelope
	Timestamp     time.Time
	MessageType   MessageType
	Sentiment     Sentiment // empty until labelled
	Topics        []Topic
	WellnessScore *int
	LabeledAt     *time.Time
}

func (m *Message) Labeled() bool { return m.LabeledAt != nil }

// Labels is the classifier-assigned part of a message.
type Labels struct {
	Sentiment     Sentiment
	MessageType   MessageType
	Topics        []Topic
	WellnessScore *int
}

// Analytics is derived from the message log and never authoritative.
type Analytics struct {
	TotalMessages   int
	SessionDuration time.Duration
	Topics          []Topic
	WellnessScore   *int
}

const (
	DefaultSessionRetentionDays = 7
	MaxRetentionDays            = 365
)

// Session is the aggregate root for one bounded conversation.
type Session struct {
	ID               string
	OwnerPseudonymID string
	Title            *Envelope
	Messages         []Message
	Status           SessionStatus
	CrisisDetected   bool
	CrisisLevel      CrisisLevel
	Analytics        Analytics
	RetentionDays    int
	ExpiresAt        time.Time
	StartedAt        time.Time
	LastMessageAt    time.Time
	EndedAt          *time.Time
	UpdatedAt        time.Time
}

func NewSession(id, ownerID string, retentionDays int, now time.Time) (*Session, error) {
	if id == "" || ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if retentionDays == 0 {
		retentionDays = DefaultSessionRetentionDays
	}
	if retentionDays < 1 || retentionDays > MaxRetentionDays {
		return nil, domain.ErrInvalidArgument
	}
	s := &Session{
		ID:               id,
		OwnerPseudonymID: ownerID,
		Messages:         make([]Message, 0, 8),
		Status:           SessionActive,
		CrisisLevel:      CrisisNone,
		RetentionDays:    retentionDays,
		StartedAt:        now,
		LastMessageAt:    now,
	}
	s.touch(now)
	return s, nil
}

// Expired reports whether the session must behave as absent at now.
func (s *Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

func (s *Session) Open() bool { return !s.Status.Terminal() }

func (s *Session) touch(now time.Time) {
	s.UpdatedAt = now
	s.ExpiresAt = ExpiryFrom(now, s.RetentionDays)
}

// settle records a late change. A closed session keeps the expiry it was
// given when it closed.
func (s *Session) settle(now time.Time) {
	if !s.Open() {
		s.UpdatedAt = now
		return
	}
	s.touch(now)
}

// Append adds m to the log. The timestamp is clamped so the log stays
// non-decreasing even if the wall clock steps backwards.
func (s *Session) Append(m Message, now time.Time) error {
	if !s.Open() {
		return domain.ErrSessionClosed
	}
	if m.ID == "" || !m.Role.Valid() || m.Content.IsZero() {
		return domain.ErrInvalidArgument
	}
	if m.MessageType == "" {
		m.MessageType = MessageGeneral
	}
	if !m.MessageType.Valid() {
		return domain.ErrInvalidArgument
	}
	ts := now
	if n := len(s.Messages); n > 0 && ts.Before(s.Messages[n-1].Timestamp) {
		ts = s.Messages[n-1].Timestamp
	}
	m.Timestamp = ts
	s.Messages = append(s.Messages, m)
	s.Recompute()
	s.touch(now)
	return nil
}

// Message returns a pointer into the log for id, or nil.
func (s *Session) Message(id string) *Message {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return &s.Messages[i]
		}
	}
	return nil
}

// Label assigns classifier labels to a message exactly once. It reports
// whether anything was written.
func (s *Session) Label(messageID string, l Labels, now time.Time) (bool, error) {
	m := s.Message(messageID)
	if m == nil {
		return false, domain.ErrNotFound
	}
	if m.Labeled() {
		return false, nil
	}
	if l.Sentiment.Valid() {
		m.Sentiment = l.Sentiment
	}
	if l.MessageType.Valid() {
		m.MessageType = l.MessageType
	}
	m.Topics = nil
	for _, t := range l.Topics {
		if t.Valid() {
			m.Topics = append(m.Topics, t)
		}
	}
	if l.WellnessScore != nil && *l.WellnessScore >= 1 && *l.WellnessScore <= 10 {
		v := *l.WellnessScore
		m.WellnessScore = &v
	}
	at := now
	m.LabeledAt = &at
	s.Recompute()
	s.settle(now)
	return true, nil
}

// ApplyCrisis feeds one classification level through the coordinator and
// performs the escalation transition when required. It reports whether the
// session moved to crisis_escalated.
func (s *Session) ApplyCrisis(level CrisisLevel, now time.Time) (CrisisDecision, bool) {
	d := Escalate(CrisisState{Detected: s.CrisisDetected, Level: s.CrisisLevel}, level)
	s.CrisisDetected = d.Next.Detected
	s.CrisisLevel = d.Next.Level
	escalated := false
	if d.Escalate && s.Open() {
		escalated = s.Transition(ActionEscalate, now) == nil
	}
	if d.Changed && !escalated {
		s.settle(now)
	}
	return d, escalated
}

// Transition applies a state-machine action. Ending or escalating stamps
// EndedAt exactly once and freezes the duration.
func (s *Session) Transition(action SessionAction, now time.Time) error {
	next, err := NextStatus(s.Status, action)
	if err != nil {
		return err
	}
	s.Status = next
	if next.Terminal() && s.EndedAt == nil {
		at := now
		s.EndedAt = &at
	}
	s.Recompute()
	s.touch(now)
	return nil
}

// Recompute rebuilds Analytics and LastMessageAt from the message log.
func (s *Session) Recompute() {
	a := Analytics{TotalMessages: len(s.Messages)}
	seen := make(map[Topic]struct{})
	for i := range s.Messages {
		m := &s.Messages[i]
		for _, t := range m.Topics {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				a.Topics = append(a.Topics, t)
			}
		}
		if m.WellnessScore != nil {
			v := *m.WellnessScore
			a.WellnessScore = &v
		}
	}
	sort.Slice(a.Topics, func(i, j int) bool { return a.Topics[i] < a.Topics[j] })
	if n := len(s.Messages); n > 0 {
		s.LastMessageAt = s.Messages[n-1].Timestamp
	}
	switch {
	case s.EndedAt != nil:
		a.SessionDuration = s.EndedAt.Sub(s.StartedAt)
	case !s.LastMessageAt.IsZero():
		a.SessionDuration = s.LastMessageAt.Sub(s.StartedAt)
	}
	if a.SessionDuration < 0 {
		a.SessionDuration = 0
	}
	s.Analytics = a
}

// UnlabeledUserMessages returns ids of user messages still waiting for labels.
func (s *Session) UnlabeledUserMessages() []string {
	var out []string
	for i := range s.Messages {
		if s.Messages[i].Role == RoleUser && !s.Messages[i].Labeled() {
			out = append(out, s.Messages[i].ID)
		}
	}
	return out
}

func (s *Session) GetRecentMessages(n int) []Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Clone returns a deep copy safe to hand across goroutines.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Title != nil {
		t := s.Title.Clone()
		c.Title = &t
	}
	if s.EndedAt != nil {
		at := *s.EndedAt
		c.EndedAt = &at
	}
	c.Analytics.Topics = append([]Topic(nil), s.Analytics.Topics...)
	c.Analytics.WellnessScore = cloneInt(s.Analytics.WellnessScore)
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		for i := range s.Messages {
			c.Messages[i] = s.Messages[i].Clone()
		}
	}
	return &c
}

// Header is a copy without the message log.
func (s *Session) Header() *Session {
	c := *s
	c.Messages = nil
	return c.Clone()
}

func (m Message) Clone() Message {
	c := m
	c.Content = m.Content.Clone()
	c.Topics = append([]Topic(nil), m.Topics...)
	c.WellnessScore = cloneInt(m.WellnessScore)
	if m.LabeledAt != nil {
		at := *m.LabeledAt
		c.LabeledAt = &at
	}
	return c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

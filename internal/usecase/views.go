package usecase

import (
	"time"

	"mindspace/internal/domain/model"
)

// MessageView is a decrypted message as handed to callers. Redacted is set
// when the stored envelope could not be opened.
type MessageView struct {
	ID            string            `json:"id"`
	Role          model.Role        `json:"role"`
	Content       string            `json:"content"`
	Timestamp     time.Time         `json:"timestamp"`
	MessageType   model.MessageType `json:"message_type"`
	Sentiment     model.Sentiment   `json:"sentiment,omitempty"`
	Topics        []model.Topic     `json:"topics,omitempty"`
	WellnessScore *int              `json:"wellness_score,omitempty"`
	Labeled       bool              `json:"labeled"`
	Redacted      bool              `json:"redacted,omitempty"`
}

type AnalyticsView struct {
	TotalMessages   int           `json:"total_messages"`
	DurationSeconds int64         `json:"session_duration_seconds"`
	Topics          []model.Topic `json:"topics"`
	WellnessScore   *int          `json:"wellness_score,omitempty"`
}

// SessionView is the caller-facing session. Messages is nil for list results.
type SessionView struct {
	ID             string              `json:"id"`
	Title          string              `json:"title,omitempty"`
	Status         model.SessionStatus `json:"status"`
	CrisisDetected bool                `json:"crisis_detected"`
	CrisisLevel    model.CrisisLevel   `json:"crisis_level"`
	Analytics      AnalyticsView       `json:"analytics"`
	RetentionDays  int                 `json:"retention_days"`
	ExpiresAt      time.Time           `json:"expires_at"`
	StartedAt      time.Time           `json:"started_at"`
	LastMessageAt  time.Time           `json:"last_message_at"`
	EndedAt        *time.Time          `json:"ended_at,omitempty"`
	Messages       []MessageView       `json:"messages,omitempty"`
}

// SessionSummary describes a session without any message content or title.
type SessionSummary struct {
	ID             string                    `json:"id"`
	Status         model.SessionStatus       `json:"status"`
	StartedAt      time.Time                 `json:"started_at"`
	EndedAt        *time.Time                `json:"ended_at,omitempty"`
	Analytics      AnalyticsView             `json:"analytics"`
	UserMessages   int                       `json:"user_messages"`
	Unlabeled      int                       `json:"unlabeled"`
	Sentiments     map[model.Sentiment]int   `json:"sentiments"`
	MessageTypes   map[model.MessageType]int `json:"message_types"`
	CrisisDetected bool                      `json:"crisis_detected"`
	CrisisLevel    model.CrisisLevel         `json:"crisis_level"`
}

func summarize(s *model.Session) SessionSummary {
	h := headerView(s)
	out := SessionSummary{
		ID:             s.ID,
		Status:         s.Status,
		StartedAt:      s.StartedAt,
		EndedAt:        s.EndedAt,
		Analytics:      h.Analytics,
		Sentiments:     map[model.Sentiment]int{},
		MessageTypes:   map[model.MessageType]int{},
		CrisisDetected: s.CrisisDetected,
		CrisisLevel:    s.CrisisLevel,
	}
	for i := range s.Messages {
		m := &s.Messages[i]
		if m.Role != model.RoleUser {
			continue
		}
		out.UserMessages++
		if !m.Labeled() {
			out.Unlabeled++
			continue
		}
		if m.Sentiment != "" {
			out.Sentiments[m.Sentiment]++
		}
		out.MessageTypes[m.MessageType]++
	}
	return out
}

// Exchange is the result of one SendMessage round. LabelsPending means the
// classifier was unavailable: the user message is stored unlabelled and no
// reply was produced.
type Exchange struct {
	Session       SessionView  `json:"session"`
	UserMessage   MessageView  `json:"user_message"`
	Reply         *MessageView `json:"reply,omitempty"`
	Escalated     bool         `json:"escalated"`
	LabelsPending bool         `json:"labels_pending"`
}

// CrisisOutcome reports what one classification did to a session.
type CrisisOutcome struct {
	Labeled   bool              `json:"labeled"`
	Level     model.CrisisLevel `json:"crisis_level"`
	Detected  bool              `json:"crisis_detected"`
	Escalated bool              `json:"escalated"`
}

func headerView(s *model.Session) SessionView {
	v := SessionView{
		ID:             s.ID,
		Status:         s.Status,
		CrisisDetected: s.CrisisDetected,
		CrisisLevel:    s.CrisisLevel,
		Analytics: AnalyticsView{
			TotalMessages:   s.Analytics.TotalMessages,
			DurationSeconds: int64(s.Analytics.SessionDuration / time.Second),
			Topics:          append([]model.Topic{}, s.Analytics.Topics...),
			WellnessScore:   s.Analytics.WellnessScore,
		},
		RetentionDays: s.RetentionDays,
		ExpiresAt:     s.ExpiresAt,
		StartedAt:     s.StartedAt,
		LastMessageAt: s.LastMessageAt,
		EndedAt:       s.EndedAt,
	}
	return v
}

func messageView(m *model.Message, content string, redacted bool) MessageView {
	return MessageView{
		ID:            m.ID,
		Role:          m.Role,
		Content:       content,
		Timestamp:     m.Timestamp,
		MessageType:   m.MessageType,
		Sentiment:     m.Sentiment,
		Topics:        m.Topics,
		WellnessScore: m.WellnessScore,
		Labeled:       m.Labeled(),
		Redacted:      redacted,
	}
}

package apiv1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
)

type Preferences struct {
	Theme         string `json:"theme"`
	Language      string `json:"language"`
	Notifications bool   `json:"notifications"`
}

type Privacy struct {
	ShareAnalytics     bool `json:"share_analytics"`
	AllowCrisisContact bool `json:"allow_crisis_contact"`
}

type RegisterRequest struct {
	Secret        string       `json:"secret"`
	Contact       string       `json:"contact,omitempty"`
	Preferences   *Preferences `json:"preferences,omitempty"`
	Privacy       *Privacy     `json:"privacy,omitempty"`
	RetentionDays int          `json:"retention_days,omitempty"`
}

type LoginRequest struct {
	PseudonymID string `json:"pseudonym_id"`
	Secret      string `json:"secret"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	PseudonymID string    `json:"pseudonym_id"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Profile     Profile   `json:"profile"`
}

type Profile struct {
	PseudonymID   string      `json:"pseudonym_id"`
	Status        string      `json:"status"`
	Contact       string      `json:"contact,omitempty"`
	Preferences   Preferences `json:"preferences"`
	Privacy       Privacy     `json:"privacy"`
	RetentionDays int         `json:"retention_days"`
	ExpiresAt     time.Time   `json:"expires_at"`
	CreatedAt     time.Time   `json:"created_at"`
	LastActiveAt  time.Time   `json:"last_active_at"`
}

// PreferencesPatch changes only the fields that are present.
type PreferencesPatch struct {
	Theme         *string `json:"theme"`
	Language      *string `json:"language"`
	Notifications *bool   `json:"notifications"`
}

type PrivacyPatch struct {
	RetentionDays      *int  `json:"retention_days"`
	ShareAnalytics     *bool `json:"share_analytics"`
	AllowCrisisContact *bool `json:"allow_crisis_contact"`
}

type ChangeSecretRequest struct {
	CurrentSecret string `json:"current_secret"`
	NewSecret     string `json:"new_secret"`
}

type DeleteAccountRequest struct {
	Secret string `json:"secret"`
}

type StartSessionRequest struct {
	Title         string `json:"title,omitempty"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type RelabelResponse struct {
	Relabeled int `json:"relabeled"`
}

func toProfile(id *model.Identity, contact string) Profile {
	return Profile{
		PseudonymID:   id.PseudonymID,
		Status:        string(id.Status),
		Contact:       contact,
		Preferences:   Preferences(id.Preferences),
		Privacy:       Privacy(id.Privacy),
		RetentionDays: id.RetentionDays,
		ExpiresAt:     id.ExpiresAt,
		CreatedAt:     id.CreatedAt,
		LastActiveAt:  id.LastActiveAt,
	}
}

// decode reads a single JSON object; unknown fields and trailing data are
// validation errors.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", domain.ErrValidation)
	}
	return nil
}

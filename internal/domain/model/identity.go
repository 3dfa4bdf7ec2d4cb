package model

import (
	"strings"
	"time"

	"mindspace/internal/domain"
)

type IdentityStatus string

const (
	IdentityActive    IdentityStatus = "active"
	IdentitySuspended IdentityStatus = "suspended"
	IdentityDeleted   IdentityStatus = "deleted"
)

const (
	DefaultIdentityRetentionDays = 30
	// DeletedIdentityGrace bounds how long a soft-deleted record may linger.
	DeletedIdentityGrace = 24 * time.Hour
)

type Preferences struct {
	Theme         string // light | dark | auto
	Language      string
	Notifications bool
}

func DefaultPreferences() Preferences {
	return Preferences{Theme: "auto", Language: "en", Notifications: true}
}

func (p Preferences) Validate() error {
	switch p.Theme {
	case "light", "dark", "auto":
	default:
		return domain.ErrInvalidArgument
	}
	if n := len(p.Language); n < 2 || n > 5 {
		return domain.ErrInvalidArgument
	}
	return nil
}

// Privacy captures per-identity consent flags.
type Privacy struct {
	ShareAnalytics     bool
	AllowCrisisContact bool
}

func DefaultPrivacy() Privacy {
	return Privacy{ShareAnalytics: false, AllowCrisisContact: true}
}

// Identity is a pseudonymous account. PseudonymID is the only correlation key
// used anywhere in the system.
type Identity struct {
	PseudonymID    string
	CredentialHash string
	Contact        *Envelope
	Preferences    Preferences
	Privacy        Privacy
	RetentionDays  int
	ExpiresAt      time.Time
	Status         IdentityStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActiveAt   time.Time
}

func NewIdentity(pseudonymID, credentialHash string, retentionDays int, now time.Time) (*Identity, error) {
	if strings.TrimSpace(pseudonymID) == "" || credentialHash == "" {
		return nil, domain.ErrInvalidArgument
	}
	if retentionDays == 0 {
		retentionDays = DefaultIdentityRetentionDays
	}
	if err := ValidateRetentionDays(retentionDays); err != nil {
		return nil, err
	}
	id := &Identity{
		PseudonymID:    pseudonymID,
		CredentialHash: credentialHash,
		Preferences:    DefaultPreferences(),
		Privacy:        DefaultPrivacy(),
		RetentionDays:  retentionDays,
		Status:         IdentityActive,
		CreatedAt:      now,
		LastActiveAt:   now,
	}
	id.Touch(now)
	return id, nil
}

func ValidateRetentionDays(days int) error {
	if days < 1 || days > MaxRetentionDays {
		return domain.ErrInvalidArgument
	}
	return nil
}

func (i *Identity) IsZero() bool { return i == nil || i.PseudonymID == "" }

// Expired reports whether the record must behave as absent at now.
func (i *Identity) Expired(now time.Time) bool { return !now.Before(i.ExpiresAt) }

// Touch records a mutation and recomputes the expiry. A deleted identity only
// ever has its expiry pulled in, never pushed out.
func (i *Identity) Touch(now time.Time) {
	i.UpdatedAt = now
	next := ExpiryFrom(now, i.RetentionDays)
	if i.Status == IdentityDeleted && !i.ExpiresAt.IsZero() && i.ExpiresAt.Before(next) {
		return
	}
	i.ExpiresAt = next
}

// SetRetentionDays changes retention and recomputes expiry from now.
func (i *Identity) SetRetentionDays(days int, now time.Time) error {
	if err := ValidateRetentionDays(days); err != nil {
		return err
	}
	i.RetentionDays = days
	i.Touch(now)
	return nil
}

// MarkDeleted is the soft delete: credential and contact are wiped at once and
// the record expires within grace (DeletedIdentityGrace when zero).
func (i *Identity) MarkDeleted(now time.Time, grace time.Duration) {
	if grace <= 0 {
		grace = DeletedIdentityGrace
	}
	i.Status = IdentityDeleted
	i.CredentialHash = ""
	i.Contact = nil
	i.UpdatedAt = now
	if limit := now.Add(grace); i.ExpiresAt.After(limit) {
		i.ExpiresAt = limit
	}
}

func (i *Identity) CanAuthenticate() bool {
	return i.Status == IdentityActive && i.CredentialHash != ""
}

func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Contact != nil {
		e := i.Contact.Clone()
		c.Contact = &e
	}
	return &c
}

// File: internal/usecase/identity_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/adapter"
	"mindspace/internal/domain/ports/repository"
	"mindspace/internal/infra/logging"
	"mindspace/internal/infra/metrics"
	"mindspace/internal/infra/security"
)

// Compile-time check
var _ IdentityUseCase = (*identityUC)(nil)

const (
	minSecretLen  = 8
	maxSecretLen  = 128
	maxContactLen = 320
)

type IdentityUseCase interface {
	Register(ctx context.Context, in RegisterInput) (*model.Identity, error)
	Authenticate(ctx context.Context, pseudonymID, secret string) (*model.Identity, error)
	Get(ctx context.Context, pseudonymID string) (*model.Identity, error)
	UpdatePreferences(ctx context.Context, pseudonymID string, p model.Preferences) (*model.Identity, error)
	UpdatePrivacy(ctx context.Context, pseudonymID string, u PrivacyUpdate) (*model.Identity, error)
	ChangeSecret(ctx context.Context, pseudonymID, current, next string) error
	Delete(ctx context.Context, pseudonymID, secret string) error
	Suspend(ctx context.Context, pseudonymID string) error
	Contact(ctx context.Context, pseudonymID string) (string, error)
}

type RegisterInput struct {
	Secret        string
	Contact       string // optional, sealed at rest
	Preferences   *model.Preferences
	Privacy       *model.Privacy
	RetentionDays int
}

// PrivacyUpdate changes only the fields that are set.
type PrivacyUpdate struct {
	RetentionDays      *int
	ShareAnalytics     *bool
	AllowCrisisContact *bool
}

// IdentitySettings are the retention tunables for identities.
type IdentitySettings struct {
	RetentionDays int           // default for new identities
	DeletedGrace  time.Duration // how long a soft-deleted record may linger
}

type identityUC struct {
	ids    repository.IdentityRepository
	tm     repository.TransactionManager
	hasher adapter.CredentialHasher
	cipher adapter.Cipher
	cfg    IdentitySettings
	now    func() time.Time
	newID  func() (string, error)
	log    *zerolog.Logger
}

func NewIdentityUseCase(
	ids repository.IdentityRepository,
	tm repository.TransactionManager,
	hasher adapter.CredentialHasher,
	cipher adapter.Cipher,
	cfg IdentitySettings,
	now func() time.Time,
	logger *zerolog.Logger,
) *identityUC {
	if now == nil {
		now = time.Now
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = model.DefaultIdentityRetentionDays
	}
	if cfg.DeletedGrace <= 0 {
		cfg.DeletedGrace = model.DeletedIdentityGrace
	}
	l := logger.With().Str("component", "IdentityUC").Logger()
	return &identityUC{
		ids:    ids,
		tm:     tm,
		hasher: hasher,
		cipher: cipher,
		cfg:    cfg,
		now:    now,
		newID:  func() (string, error) { return security.GenerateToken(16) },
		log:    &l,
	}
}

// ValidateSecret enforces the password policy: 8 to 128 characters with at
// least one lower-case letter, one upper-case letter and one digit.
func ValidateSecret(secret string) error {
	if n := len(secret); n < minSecretLen || n > maxSecretLen {
		return fmt.Errorf("%w: secret must be %d-%d characters", domain.ErrValidation, minSecretLen, maxSecretLen)
	}
	var lower, upper, digit bool
	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return fmt.Errorf("%w: secret needs a lower-case letter, an upper-case letter and a digit", domain.ErrValidation)
	}
	return nil
}

func (u *identityUC) Register(ctx context.Context, in RegisterInput) (*model.Identity, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.Register")()

	if err := ValidateSecret(in.Secret); err != nil {
		return nil, err
	}
	days := in.RetentionDays
	if days == 0 {
		days = u.cfg.RetentionDays
	}
	if err := model.ValidateRetentionDays(days); err != nil {
		return nil, err
	}
	if in.Preferences != nil {
		if err := in.Preferences.Validate(); err != nil {
			return nil, err
		}
	}
	hash, err := u.hasher.Hash(in.Secret)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}
	var contact *model.Envelope
	if c := strings.TrimSpace(in.Contact); c != "" {
		if len(c) > maxContactLen {
			return nil, fmt.Errorf("%w: contact too long", domain.ErrValidation)
		}
		env, err := u.cipher.Encrypt(c)
		if err != nil {
			return nil, fmt.Errorf("seal contact: %w", err)
		}
		contact = &env
	}

	// retry on pseudonym collision
	for attempt := 0; attempt < 3; attempt++ {
		pid, err := u.newID()
		if err != nil {
			return nil, err
		}
		id, err := model.NewIdentity(pid, hash, days, u.now())
		if err != nil {
			return nil, err
		}
		id.Contact = contact
		if in.Preferences != nil {
			id.Preferences = *in.Preferences
		}
		if in.Privacy != nil {
			id.Privacy = *in.Privacy
		}
		err = u.ids.Create(ctx, repository.NoTX, id)
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		metrics.IncIdentitiesRegistered()
		u.log.Info().Str("pseudonym_id", logging.Redact(pid, false)).Msg("identity registered")
		return id, nil
	}
	return nil, domain.ErrAlreadyExists
}

// load returns a live identity; soft-deleted records behave as absent.
func (u *identityUC) load(ctx context.Context, tx repository.Tx, pseudonymID string, now time.Time) (*model.Identity, error) {
	id, err := u.ids.FindByID(ctx, tx, pseudonymID, now)
	if err != nil {
		return nil, err
	}
	if id.Status == model.IdentityDeleted {
		return nil, domain.ErrNotFound
	}
	return id, nil
}

// mutate runs fn against a freshly loaded identity and saves the result in
// one transaction.
func (u *identityUC) mutate(ctx context.Context, pseudonymID string, fn func(id *model.Identity, now time.Time) error) (*model.Identity, error) {
	var out *model.Identity
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := u.now()
		id, err := u.load(ctx, tx, pseudonymID, now)
		if err != nil {
			return err
		}
		if err := fn(id, now); err != nil {
			return err
		}
		if err := u.ids.Save(ctx, tx, id); err != nil {
			return err
		}
		out = id
		return nil
	})
	return out, err
}

func (u *identityUC) Authenticate(ctx context.Context, pseudonymID, secret string) (*model.Identity, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.Authenticate")()

	id, err := u.mutate(ctx, pseudonymID, func(id *model.Identity, now time.Time) error {
		if !id.CanAuthenticate() || !u.hasher.Verify(secret, id.CredentialHash) {
			return domain.ErrUnauthorized
		}
		id.LastActiveAt = now
		id.Touch(now)
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized) {
		metrics.IncAuthFailure()
		return nil, domain.ErrUnauthorized
	}
	return id, err
}

func (u *identityUC) Get(ctx context.Context, pseudonymID string) (*model.Identity, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.Get")()
	return u.load(ctx, repository.NoTX, pseudonymID, u.now())
}

func (u *identityUC) UpdatePreferences(ctx context.Context, pseudonymID string, p model.Preferences) (*model.Identity, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.UpdatePreferences")()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return u.mutate(ctx, pseudonymID, func(id *model.Identity, now time.Time) error {
		id.Preferences = p
		id.Touch(now)
		return nil
	})
}

func (u *identityUC) UpdatePrivacy(ctx context.Context, pseudonymID string, upd PrivacyUpdate) (*model.Identity, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.UpdatePrivacy")()
	return u.mutate(ctx, pseudonymID, func(id *model.Identity, now time.Time) error {
		if upd.ShareAnalytics != nil {
			id.Privacy.ShareAnalytics = *upd.ShareAnalytics
		}
		if upd.AllowCrisisContact != nil {
			id.Privacy.AllowCrisisContact = *upd.AllowCrisisContact
		}
		if upd.RetentionDays != nil {
			return id.SetRetentionDays(*upd.RetentionDays, now)
		}
		id.Touch(now)
		return nil
	})
}

func (u *identityUC) ChangeSecret(ctx context.Context, pseudonymID, current, next string) error {
	defer logging.TraceDuration(u.log, "IdentityUC.ChangeSecret")()
	if err := ValidateSecret(next); err != nil {
		return err
	}
	hash, err := u.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}
	_, err = u.mutate(ctx, pseudonymID, func(id *model.Identity, now time.Time) error {
		if !id.CanAuthenticate() || !u.hasher.Verify(current, id.CredentialHash) {
			return domain.ErrUnauthorized
		}
		id.CredentialHash = hash
		id.Touch(now)
		return nil
	})
	if errors.Is(err, domain.ErrUnauthorized) {
		metrics.IncAuthFailure()
	}
	return err
}

// Delete is the user-initiated soft delete; the sweeper purges the record
// once its shortened expiry passes.
func (u *identityUC) Delete(ctx context.Context, pseudonymID, secret string) error {
	defer logging.TraceDuration(u.log, "IdentityUC.Delete")()
	_, err := u.mutate(ctx, pseudonymID, func(id *model.Identity, now time.Time) error {
		if !u.hasher.Verify(secret, id.CredentialHash) {
			return domain.ErrUnauthorized
		}
		id.MarkDeleted(now, u.cfg.DeletedGrace)
		return nil
	})
	if errors.Is(err, domain.ErrUnauthorized) {
		metrics.IncAuthFailure()
	}
	return err
}

func (u *identityUC) Suspend(ctx context.Context, pseudonymID string) error {
	defer logging.TraceDuration(u.log, "IdentityUC.Suspend")()
	_, err := u.mutate(ctx, pseudonymID, func(id *model.Identity, now time.Time) error {
		id.Status = model.IdentitySuspended
		id.Touch(now)
		return nil
	})
	return err
}

// Contact returns the decrypted contact, "" when none is stored, or the
// redacted placeholder when the envelope cannot be opened.
func (u *identityUC) Contact(ctx context.Context, pseudonymID string) (string, error) {
	id, err := u.Get(ctx, pseudonymID)
	if err != nil {
		return "", err
	}
	if id.Contact == nil {
		return "", nil
	}
	c, err := u.cipher.Decrypt(*id.Contact)
	if err != nil {
		metrics.IncDecryptFailure("contact")
		logging.With(ctx, u.log).Warn().Err(err).Int("key_version", id.Contact.KeyVersion).Msg("contact decrypt failed")
		return model.RedactedContent, nil
	}
	return c, nil
}

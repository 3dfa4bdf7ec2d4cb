package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mindspace/internal/domain/model"
	"mindspace/internal/infra/logging"
)

const (
	TokenIssuerName = "mindspace"
	TokenAudience   = "youth-wellness"
	DefaultTokenTTL = 7 * 24 * time.Hour
)

var errMissingToken = errors.New("missing token")

// ===== Bearer tokens =====

type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 bearer tokens whose subject is the
// pseudonym id.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: now}
}

func (t *TokenIssuer) Mint(pseudonymID string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuerName,
			Audience:  jwt.ClaimStrings{TokenAudience},
			Subject:   pseudonymID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies tok and returns its subject.
func (t *TokenIssuer) Parse(tok string) (string, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuerName),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !tkn.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func bearer(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return "", errMissingToken
	}
	return strings.TrimSpace(hdr[7:]), nil
}

// ===== Request identity =====

type pseudonymKey struct{}

// PseudonymID returns the authenticated pseudonym, or "" outside Require.
func PseudonymID(ctx context.Context) string {
	v, _ := ctx.Value(pseudonymKey{}).(string)
	return v
}

func WithPseudonymID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, pseudonymKey{}, id)
	return logging.WithPseudonymID(ctx, id)
}

// IdentityLookup is the slice of the identity use case Require needs.
type IdentityLookup interface {
	Get(ctx context.Context, pseudonymID string) (*model.Identity, error)
}

// Require rejects requests without a valid token for a live, active identity.
func (t *TokenIssuer) Require(ids IdentityLookup, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := bearer(r)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			pid, err := t.Parse(tok)
			if err != nil {
				logging.With(r.Context(), logger).Debug().Err(err).Msg("token rejected")
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			id, err := ids.Get(r.Context(), pid)
			if err != nil || id.Status != model.IdentityActive {
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPseudonymID(r.Context(), pid)))
		})
	}
}

// RequireAPIKey guards operator routes with a static X-API-Key. An empty key
// disables them.
func RequireAPIKey(key string, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				logger.Error().Msg("operator API key is not configured")
				WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			got := r.Header.Get("X-API-Key")
			if got == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"mindspace/internal/domain/ports/repository"
	"mindspace/internal/infra/logging"
	"mindspace/internal/infra/metrics"
	"mindspace/internal/infra/redis"
	"mindspace/internal/infra/security"
)

// RateLimit is the sensitive-operation guard. Callers are keyed by pseudonym
// when authenticated and by the anonymised client address otherwise; raw
// addresses never reach the counter store.
type RateLimit struct {
	limiter repository.RateLimiter
	anon    *security.Anonymizer
	limit   int
	window  time.Duration
	log     *zerolog.Logger
}

func NewRateLimit(limiter repository.RateLimiter, anon *security.Anonymizer, limit int, window time.Duration, logger *zerolog.Logger) *RateLimit {
	return &RateLimit{limiter: limiter, anon: anon, limit: limit, window: window, log: logger}
}

// Guard limits the named operation.
func (rl *RateLimit) Guard(op string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := PseudonymID(r.Context())
			if subject == "" {
				subject = rl.anon.Anonymize(clientAddr(r))
			}
			ok, err := rl.limiter.Allow(r.Context(), redis.SensitiveKey(op, subject), rl.limit, rl.window)
			if err != nil {
				// fail open
				logging.With(r.Context(), rl.log).Warn().Err(err).Str("op", op).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				metrics.IncRateLimited(op)
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
				WriteError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

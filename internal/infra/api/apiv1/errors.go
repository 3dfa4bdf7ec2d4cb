package apiv1

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"mindspace/internal/domain"
	"mindspace/internal/infra/api"
	"mindspace/internal/infra/logging"
)

// statusFor maps domain sentinels to HTTP status codes; anything else is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrSessionBusy),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrClassifierUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, r *http.Request, log *zerolog.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.With(r.Context(), log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		api.WriteError(w, code, "internal error")
		return
	}
	msg := err.Error()
	if code == http.StatusUnauthorized {
		// never say which half of the credential was wrong
		msg = domain.ErrUnauthorized.Error()
	}
	api.WriteError(w, code, msg)
}

package apiv1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mindspace/internal/domain"
	"mindspace/internal/infra/api"
	"mindspace/internal/infra/logging"
	"mindspace/internal/usecase"
)

const defaultCrisisQueue = 50

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeErr(w, r, s.log, err)
			return
		}
	}
	v, err := s.sessions.Start(r.Context(), api.PseudonymID(r.Context()), usecase.StartInput{
		Title:         req.Title,
		RetentionDays: req.RetentionDays,
	})
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	items, err := s.sessions.List(r.Context(), api.PseudonymID(r.Context()), offset, limit)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	if items == nil {
		items = []usecase.SessionView{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionCtx(r)
	v, err := s.sessions.Get(ctx, api.PseudonymID(ctx), id)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionCtx(r)
	v, err := s.sessions.Summary(ctx, api.PseudonymID(ctx), id)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, v)
}

// handleSendMessage answers 200 with the full exchange, or 202 when the
// message was stored but the classifier could not label it yet.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	ctx, id := sessionCtx(r)
	ex, err := s.sessions.SendMessage(ctx, api.PseudonymID(ctx), id, req.Content)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	code := http.StatusOK
	if ex.LabelsPending {
		code = http.StatusAccepted
	}
	api.WriteJSON(w, code, ex)
}

func (s *Server) handleTransition(fn func(ctx context.Context, ownerID, sessionID string) (*usecase.SessionView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, id := sessionCtx(r)
		v, err := fn(ctx, api.PseudonymID(ctx), id)
		if err != nil {
			writeErr(w, r, s.log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleRelabel(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionCtx(r)
	n, err := s.sessions.RetryLabels(ctx, api.PseudonymID(ctx), id)
	if err != nil && !errors.Is(err, domain.ErrClassifierUnavailable) {
		writeErr(w, r, s.log, err)
		return
	}
	if err != nil {
		w.Header().Set("Retry-After", "30")
		api.WriteJSON(w, http.StatusServiceUnavailable, RelabelResponse{Relabeled: n})
		return
	}
	api.WriteJSON(w, http.StatusOK, RelabelResponse{Relabeled: n})
}

// ===== operator =====

func (s *Server) handleCrisisQueue(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultCrisisQueue)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	items, err := s.sessions.ListCrisis(r.Context(), limit)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	if items == nil {
		items = []usecase.SessionView{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "id")
	if err := s.ids.Suspend(r.Context(), pid); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	logging.With(r.Context(), s.log).Info().Str("pseudonym_id", logging.Redact(pid, false)).Msg("identity suspended by operator")
	w.WriteHeader(http.StatusNoContent)
}

func sessionCtx(r *http.Request) (context.Context, string) {
	id := chi.URLParam(r, "id")
	return logging.WithSessID(r.Context(), id), id
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrValidation, key)
	}
	return n, nil
}

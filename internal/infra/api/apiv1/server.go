package apiv1

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mindspace/internal/infra/api"
	"mindspace/internal/usecase"
)

const (
	maxBodyBytes   = 64 << 10
	healthTimeout  = 2 * time.Second
	defaultTimeout = 30 * time.Second
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Identities usecase.IdentityUseCase
	Sessions   usecase.SessionUseCase
	Tokens     *api.TokenIssuer
	// RateLimit guards sensitive operations; nil disables limiting.
	RateLimit      *api.RateLimit
	OperatorKey    string
	RequestTimeout time.Duration
	Health         map[string]HealthCheck
	Logger         *zerolog.Logger
}

type Server struct {
	ids      usecase.IdentityUseCase
	sessions usecase.SessionUseCase
	tokens   *api.TokenIssuer
	limit    *api.RateLimit
	opKey    string
	timeout  time.Duration
	health   map[string]HealthCheck
	log      *zerolog.Logger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "APIv1").Logger()
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Server{
		ids:      d.Identities,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		limit:    d.RateLimit,
		opKey:    d.OperatorKey,
		timeout:  timeout,
		health:   d.Health,
		log:      &l,
	}
}

// NewRouter returns the full handler: guard middleware plus every route.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(
		api.TraceID(),
		api.RequestLog(s.log),
		api.Recover(s.log),
		api.Timeout(s.timeout),
	)
	RegisterAPIV1(r, s)
	return r
}

// RegisterAPIV1 mounts the routes on r at absolute paths.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequestSize(maxBodyBytes))

		r.Route("/auth", func(r chi.Router) {
			r.With(s.guard("register")).Post("/register", s.handleRegister)
			r.With(s.guard("login")).Post("/login", s.handleLogin)

			r.Group(func(r chi.Router) {
				r.Use(s.tokens.Require(s.ids, s.log))
				r.Get("/profile", s.handleProfile)
				r.Put("/preferences", s.handlePreferences)
				r.Put("/privacy", s.handlePrivacy)
				r.With(s.guard("change_secret")).Put("/secret", s.handleChangeSecret)
				r.With(s.guard("delete_account")).Delete("/account", s.handleDeleteAccount)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(s.tokens.Require(s.ids, s.log))
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Get("/summary", s.handleSessionSummary)
				r.Post("/messages", s.handleSendMessage)
				r.Post("/pause", s.handleTransition(s.sessions.Pause))
				r.Post("/resume", s.handleTransition(s.sessions.Resume))
				r.Post("/end", s.handleTransition(s.sessions.End))
				r.Post("/relabel", s.handleRelabel)
			})
		})

		r.Route("/operator", func(r chi.Router) {
			r.Use(api.RequireAPIKey(s.opKey, s.log))
			r.Get("/crisis", s.handleCrisisQueue)
			r.Post("/identities/{id}/suspend", s.handleSuspend)
		})
	})
}

func (s *Server) guard(op string) func(http.Handler) http.Handler {
	if s.limit == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.limit.Guard(op)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := make(map[string]string, len(s.health))
	status, code := "ok", http.StatusOK
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	api.WriteJSON(w, code, map[string]any{"status": status, "checks": checks})
}

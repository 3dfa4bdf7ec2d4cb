package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mindspace/internal/config"
	"mindspace/internal/domain/ports/adapter"
	"mindspace/internal/infra/api"
	"mindspace/internal/infra/api/apiv1"
	red "mindspace/internal/infra/redis"
	"mindspace/internal/infra/sched"
	"mindspace/internal/infra/scheduler"
	"mindspace/internal/infra/security"
	"mindspace/internal/infra/worker"
	"mindspace/internal/usecase"
)

const (
	notifyQueue     = 256
	shutdownTimeout = 15 * time.Second
	statsEvery      = 15 * time.Second
)

// App is the fully wired service.
type App struct {
	Stores     *Stores
	Identities usecase.IdentityUseCase
	Sessions   usecase.SessionUseCase
	Sweeper    *sched.RetentionSweeper
	Handler    http.Handler

	pool      *worker.Pool
	scheduler *scheduler.Scheduler
	server    *api.Server
	log       *zerolog.Logger
}

// Build wires every component from cfg. The caller owns the returned App and
// must Close it when Run is not used.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app, err := build(ctx, cfg, stores, logger)
	if err != nil {
		stores.Close()
		return nil, err
	}
	return app, nil
}

func build(ctx context.Context, cfg *config.Config, st *Stores, logger *zerolog.Logger) (*App, error) {
	cipher, err := security.NewEncryptionService(cfg.Security.Keys, cfg.Security.ActiveKeyVersion)
	if err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	classifier, err := NewClassifier(ctx, cfg.Classifier, logger)
	if err != nil {
		return nil, err
	}

	notifier := usecase.MultiNotifier{usecase.NewLogNotifier(logger)}
	if st.Redis != nil {
		notifier = append(notifier, red.NewEscalationPublisher(st.Redis))
	}
	pool := worker.NewPool(cfg.Worker.Size, notifyQueue, logger)

	identities := usecase.NewIdentityUseCase(st.Identities, st.Tx, security.NewBcryptHasher(cfg.Security.BcryptCost), cipher,
		usecase.IdentitySettings{
			RetentionDays: cfg.Retention.IdentityDays,
			DeletedGrace:  cfg.Retention.DeletedIdentityGrace,
		}, nil, logger)
	sessions := usecase.NewSessionUseCase(st.Sessions, st.Identities, classifier, cipher, st.Locker,
		adapter.EscalationNotifier(notifier), pool,
		usecase.SessionSettings{RetentionDays: cfg.Retention.SessionDays}, nil, logger)

	sweeper := sched.NewRetentionSweeper(st.Identities, st.Sessions, cfg.Retention.SweepBatch, nil, logger)

	health := make(map[string]apiv1.HealthCheck)
	for name, check := range st.Health() {
		health[name] = check
	}
	srv := apiv1.NewServer(apiv1.Deps{
		Identities: identities,
		Sessions:   sessions,
		Tokens:     api.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.TokenTTL, nil),
		RateLimit: api.NewRateLimit(st.Limiter, security.NewAnonymizer(cfg.Security.AnonymizeKey),
			cfg.RateLimit.SensitiveLimit, cfg.RateLimit.SensitiveWindow, logger),
		OperatorKey:    cfg.Security.OperatorKey,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Health:         health,
		Logger:         logger,
	})
	handler := apiv1.NewRouter(srv)

	return &App{
		Stores:     st,
		Identities: identities,
		Sessions:   sessions,
		Sweeper:    sweeper,
		Handler:    handler,
		pool:       pool,
		scheduler:  scheduler.NewScheduler(cfg.Retention.SweepInterval, sweeper, logger),
		server:     api.NewServer(cfg.HTTP.Port, handler, logger),
		log:        logger,
	}, nil
}

// Run starts the background workers and the HTTP server and blocks until ctx
// is cancelled or the server fails, then shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	// queued notifications must still be delivered while draining
	poolCtx, stopPool := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPool()
	a.pool.Start(poolCtx)
	a.scheduler.Start(ctx)
	go a.Stores.ReportStats(ctx, statsEvery, a.log)

	errc := make(chan error, 1)
	go func() { errc <- a.server.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown requested")
	case runErr = <-errc:
		if runErr != nil {
			a.log.Error().Err(runErr).Msg("http server failed")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(sctx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown")
	}
	a.scheduler.Stop()
	a.pool.Stop()
	a.Close()
	a.log.Info().Msg("stopped")
	return runErr
}

func (a *App) Close() { a.Stores.Close() }

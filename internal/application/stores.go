// Package application is the composition root shared by the service and the
// operator CLI.
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"mindspace/internal/config"
	"mindspace/internal/domain/ports/repository"
	"mindspace/internal/infra/db/memstore"
	pg "mindspace/internal/infra/db/postgres"
	"mindspace/internal/infra/db/postgres/migrations"
	red "mindspace/internal/infra/redis"
)

// Stores bundles the persistence and coordination ports for one backend.
// Redis is optional; without it leases and rate counters are process-local.
type Stores struct {
	Identities repository.IdentityRepository
	Sessions   repository.SessionRepository
	Tx         repository.TransactionManager
	Locker     repository.Locker
	Limiter    repository.RateLimiter

	DB    *pgxpool.Pool // nil on the memory backend
	Redis *red.Client   // nil when redis.url is empty

	closers []func()
}

// OpenStores connects the configured backend. With Postgres it refuses to
// start on a schema that is not at the embedded migration version.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Stores, error) {
	s := &Stores{}

	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.Redis = rc
		s.closers = append(s.closers, func() { _ = rc.Close() })
		s.Locker = red.NewLocker(rc)
		s.Limiter = red.NewRateLimiter(rc)
	} else {
		logger.Warn().Msg("redis.url not set; session leases and rate limits are per-process")
		s.Locker = memstore.NewLocker(nil)
		s.Limiter = memstore.NewRateLimiter(nil)
	}

	switch cfg.Storage.Backend {
	case "memory":
		logger.Warn().Msg("storage.backend=memory; nothing survives a restart")
		s.Identities = memstore.NewIdentityRepo()
		s.Sessions = memstore.NewSessionRepo()
		s.Tx = memstore.TxManager{}

	case "postgres":
		if err := checkSchema(cfg.Database.URL); err != nil {
			s.Close()
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.DB = pool
		s.closers = append(s.closers, pool.Close)
		s.Identities = pg.NewIdentityRepo(pool)
		s.Tx = pg.NewTxManager(pool)
		var sessions repository.SessionRepository = pg.NewSessionRepo(pool)
		if s.Redis != nil {
			sessions = pg.NewSessionRepoCacheDecorator(sessions, red.NewSessionCache(s.Redis, cfg.Redis.TTL), logger)
		}
		s.Sessions = sessions

	default:
		s.Close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return s, nil
}

func checkSchema(dsn string) error {
	db, err := migrations.Open(dsn)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		return fmt.Errorf("schema check: %w (run `mindspace-ctl migrate up`)", err)
	}
	return nil
}

// Health returns the reachability checks for the configured dependencies.
func (s *Stores) Health() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{}
	if s.DB != nil {
		checks["postgres"] = s.DB.Ping
	}
	if s.Redis != nil {
		checks["redis"] = s.Redis.Ping
	}
	return checks
}

// ReportStats publishes pool gauges until ctx is done. No-op without Postgres.
func (s *Stores) ReportStats(ctx context.Context, every time.Duration, logger *zerolog.Logger) {
	if s.DB == nil {
		return
	}
	pg.ReportPoolStats(ctx, s.DB, every, logger)
}

// Close releases connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

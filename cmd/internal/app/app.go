// Package app wires the Vigil server runtime: config, logging, metrics, the
// session registry, the watch broadcaster, and the HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"vigil/cmd/identity"
	"vigil/cmd/internal/audit"
	authapi "vigil/cmd/internal/auth/api"
	"vigil/cmd/internal/auth/session"
	"vigil/cmd/internal/cache"
	"vigil/cmd/internal/realtime"
	"vigil/cmd/internal/registry"
)

// App is the Vigil server runtime. It owns every long-lived component and
// their shutdown order.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	rdb    *redis.Client
	mirror *cache.Mirror

	reg     *registry.Registry
	bc      *realtime.Broadcaster
	ws      *realtime.WSGateway
	auth    *authapi.Handler
	metrics *Metrics
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	a := &App{cfg: cfg, log: log}

	// Identity store and audit trail: Postgres when configured, in-process
	// fallbacks otherwise.
	var users identity.Verifier
	var trail audit.Recorder
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool

		users, err = identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			a.closeStores()
			return nil, err
		}
		trail, err = audit.NewPostgresRecorder(log, pool, cfg.DBSchema)
		if err != nil {
			a.closeStores()
			return nil, err
		}
		log.Info("db.enabled.postgres_store")
	} else {
		users = identity.NewMemoryStore()
		trail = audit.NewSlogRecorder(log)
		log.Info("db.disabled.inmemory_store")
	}

	a.bc = realtime.NewBroadcaster(log, cfg.WatchQueueSize)

	// Registry notification order matters: the broadcaster runs first so
	// watches observe the change before the mirror write is even queued.
	notifier := registry.Notifier(a.bc)
	if cfg.RedisURL != "" {
		rdb, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.closeStores()
			return nil, err
		}
		a.rdb = rdb
		a.mirror = cache.NewMirror(log, rdb)
		notifier = registry.MultiNotifier(a.bc, a.mirror)
		log.Info("cache.enabled.redis_mirror")
	}

	a.reg = registry.New(log,
		registry.WithNotifier(notifier),
		registry.WithLimits(cfg.SessionsPerUserMax, cfg.SessionsTotalMax),
	)

	// Warm start: reload mirrored sessions before serving.
	if a.mirror != nil {
		sessions, err := a.mirror.Rehydrate(ctx)
		if err != nil {
			log.Warn("cache.rehydrate.fail", "err", err)
		} else {
			a.reg.Restore(sessions)
		}
	}

	authCfg := authapi.LoadConfigFromEnv()
	svc, err := session.NewService(log, users, a.reg, a.bc, trail)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.auth, err = authapi.NewHandler(log, authCfg, svc)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.ws = realtime.NewWSGateway(log, svc, a.bc, authCfg.CookieName)

	a.metrics = NewMetrics()
	a.metrics.ObserveState(a.reg, a.bc)

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.ws, a.auth, a.metrics)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log, a.metrics),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbPool != nil,
		"mirror_enabled", a.mirror != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.closeStores()
	a.log.Info("server.stopped")
	return nil
}

// closeStores releases backing resources. Mirror first so its final queued
// writes land before the Redis client closes.
func (a *App) closeStores() {
	if a.mirror != nil {
		a.mirror.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

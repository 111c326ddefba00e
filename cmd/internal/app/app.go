// Package app wires the Roam chat runtime: config, logging, snapshot store
// selection, the engine, and the HTTP/WebSocket surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"roam/cmd/internal/chat"
	"roam/cmd/internal/feed"
	"roam/cmd/internal/notify"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Roam server runtime: it owns the engine, the feed gateway, and
// HTTP server wiring.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	engine  *chat.Engine
	gateway *feed.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	st, dbPool, dbEnabled, snapStore, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	gateway := feed.NewGateway(log, feed.NewHub(log))

	engine := chat.NewEngine(chat.Config{
		Self: chat.Identity{
			ID:          cfg.SelfID,
			DisplayName: cfg.SelfName,
			Avatar:      cfg.SelfAvatar,
		},
		Log:   log,
		Store: snapStore,
		// Notifications go to the log and to connected shell sessions.
		Notifier: notify.Multi{notify.NewSlog(log), gateway},
		Sink:     gateway,
	})
	gateway.BindEngine(engine)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		engine:    engine,
		gateway:   gateway,
	}, nil
}

// Engine exposes the chat engine, mainly for tests and tooling.
func (a *App) Engine() *chat.Engine { return a.engine }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.gateway)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithSecurityHeaders(WithRequestLogging(mux, a.log)),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

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

	// Engine first (flushes a final snapshot), then the store it writes to.
	a.engine.Close()

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
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

// newStore picks the snapshot backend: Postgres when a database URL is
// configured, Pebble when a data dir is configured, in-memory otherwise.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, chat.SnapshotStore, error) {
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, false, nil, err
		}

		snap, err := persistPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, false, nil, err
		}

		log.Info("store.postgres")
		return dbStore{pool: pool, snap: snap}, pool, true, snap, nil
	}

	if cfg.DataDir != "" {
		snap, err := persistPebble(cfg.DataDir)
		if err != nil {
			return nil, nil, false, nil, err
		}
		log.Info("store.pebble", "dir", cfg.DataDir)
		return snapStore{snap: snap}, nil, false, snap, nil
	}

	log.Info("store.memory")
	return nopStore{}, nil, false, persistMemory(), nil
}

type dbStore struct {
	pool *pgxpool.Pool
	snap chat.SnapshotStore
}

func (s dbStore) Close(_ context.Context) error {
	// Postgres store Close is a no-op; the pool is owned here.
	if s.snap != nil {
		_ = s.snap.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

type snapStore struct {
	snap chat.SnapshotStore
}

func (s snapStore) Close(_ context.Context) error {
	if s.snap == nil {
		return nil
	}
	return s.snap.Close()
}

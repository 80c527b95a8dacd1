package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mmcdole/sarathi/internal/adapter"
	"github.com/mmcdole/sarathi/internal/domain"
	"github.com/mmcdole/sarathi/internal/journey"
	"github.com/mmcdole/sarathi/internal/offline"
	"github.com/mmcdole/sarathi/internal/reconcile"
	"github.com/mmcdole/sarathi/internal/remote"
	"github.com/mmcdole/sarathi/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// app holds what every command needs: configuration and logging.
type app struct {
	cfg    *adapter.Config
	logger *slog.Logger
	closer io.Closer
}

func newApp() (*app, error) {
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
		closer = io.NopCloser(nil)
	}
	slog.SetDefault(logger)

	logger.Info("starting sarathi", "version", Version)
	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}

func (a *app) Close() {
	_ = a.closer.Close()
}

// openTracker loads local progress. When the progress file cannot be used
// the session continues on in-memory state.
func (a *app) openTracker() (*journey.Tracker, func(), error) {
	loc, err := a.cfg.Journey.Location()
	if err != nil {
		return nil, nil, err
	}
	opts := []journey.Option{
		journey.WithTotal(a.cfg.Journey.Total),
		journey.WithLocation(loc),
	}

	var repo domain.ProgressRepository
	persistent, err := store.NewProgressStore(a.cfg.Journey.DataDir)
	if err != nil {
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			return nil, nil, err
		}
		a.logger.Warn("progress storage unavailable, using memory", "error", err)
		repo = store.NewMemoryProgressStore()
	} else {
		repo = persistent
	}

	tracker, err := journey.NewTracker(repo, a.logger, opts...)
	if err != nil {
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			repo.Close()
			return nil, nil, err
		}
		a.logger.Warn("failed to load progress, using memory", "error", err)
		repo.Close()
		repo = store.NewMemoryProgressStore()
		if tracker, err = journey.NewTracker(repo, a.logger, opts...); err != nil {
			return nil, nil, err
		}
	}

	cleanup := func() {
		tracker.Wait()
		if err := repo.Close(); err != nil {
			a.logger.Warn("failed to close progress store", "error", err)
		}
	}
	return tracker, cleanup, nil
}

// remoteClient builds the auth/progress client for the configured server.
func (a *app) remoteClient() *remote.Client {
	deviceID, err := adapter.EnsureDeviceID(a.cfg)
	if err != nil {
		a.logger.Warn("failed to persist device id", "error", err)
	}
	return remote.NewClient(a.cfg.Server.URL, a.cfg.Server.Token, deviceID, a.cfg.Worker.Timeout, a.logger)
}

// attachSync wires the tracker to the remote when logged in and returns the
// reconciler, or nil when logged out.
func (a *app) attachSync(tracker *journey.Tracker) *reconcile.Reconciler {
	if !a.cfg.IsLoggedIn() {
		return nil
	}
	r := reconcile.NewReconciler(a.remoteClient(), tracker, a.logger)
	tracker.SetPusher(r)
	return r
}

// openCache opens the versioned cache for the configured origin.
func (a *app) openCache(reg prometheus.Registerer) (*offline.Cache, func(), error) {
	gens, err := store.NewGenerationStore(store.OriginDir(a.cfg.Cache.Dir, a.cfg.Server.URL))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache: %w", err)
	}

	fetcher, err := offline.NewHTTPFetcher(a.cfg.Server.URL, a.cfg.Worker.Timeout, a.logger)
	if err != nil {
		gens.Close()
		return nil, nil, err
	}

	strategy, err := offline.ParseStrategy(a.cfg.Cache.Strategy, a.cfg.Cache.NetworkPrefixes)
	if err != nil {
		gens.Close()
		return nil, nil, err
	}

	opts := []offline.Option{
		offline.WithStrategy(strategy),
		offline.WithOfflineMessage(a.cfg.Cache.OfflineMessage),
	}
	if reg != nil {
		opts = append(opts, offline.WithMetrics(offline.NewMetrics(reg)))
	}

	cache := offline.New(gens, fetcher, a.logger, opts...)
	cleanup := func() {
		if err := gens.Close(); err != nil {
			a.logger.Warn("failed to close cache", "error", err)
		}
	}
	return cache, cleanup, nil
}

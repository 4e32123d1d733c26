// Package app wires configuration into a running bazaar.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/raulk/clock"
	"github.com/sirupsen/logrus"

	"github.com/xtrntr/bazaar/internal/api"
	"github.com/xtrntr/bazaar/internal/auth"
	"github.com/xtrntr/bazaar/internal/bazaar"
	"github.com/xtrntr/bazaar/internal/blocks"
	"github.com/xtrntr/bazaar/internal/config"
	"github.com/xtrntr/bazaar/internal/events"
	"github.com/xtrntr/bazaar/internal/ledger"
	"github.com/xtrntr/bazaar/internal/observability"
	"github.com/xtrntr/bazaar/internal/storage"
	"github.com/xtrntr/bazaar/internal/storage/badgerstore"
	"github.com/xtrntr/bazaar/internal/storage/postgres"
)

// App holds every long-lived component
type App struct {
	Config  *config.Config
	Log     *logrus.Logger
	Store   storage.Store
	Bazaar  *bazaar.Bazaar
	Auth    *auth.AuthService
	Hub     *events.Hub
	Metrics *observability.Metrics
	Clock   *blocks.WallClock

	closers []io.Closer
}

// OpenStore opens the configured backend, applying migrations for postgres.
func OpenStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreBadger:
		return badgerstore.Open(badgerstore.Options{
			Path:   cfg.BadgerPath,
			Logger: log.WithField("component", "badger"),
		})
	case config.StorePostgres:
		db, err := postgres.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// New builds the application from cfg. log may be nil.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger, logCloser io.Closer) (*App, error) {
	return newApp(ctx, cfg, clock.New(), log, logCloser)
}

func newApp(ctx context.Context, cfg *config.Config, clk clock.Clock, log *logrus.Logger, logCloser io.Closer) (*App, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ed, err := cfg.ExistentialDepositAmount()
	if err != nil {
		return nil, err
	}
	configured, err := cfg.GenesisTime(clk.Now())
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	genesis, err := storage.EnsureGenesis(ctx, store, configured)
	if err == nil && cfg.Genesis != "" && !genesis.Equal(configured.UTC().Truncate(time.Microsecond)) {
		err = fmt.Errorf("GENESIS %s disagrees with the store's genesis %s", cfg.Genesis, genesis.Format(time.RFC3339Nano))
	}
	if err != nil {
		store.Close()
		return nil, err
	}
	log.WithField("genesis", genesis).Debug("block clock anchored")

	a := &App{
		Config: cfg,
		Log:    log,
		Store:  store,
		Hub:    events.NewHub(64),
		Clock:  blocks.NewWallClock(clk, genesis, cfg.BlockInterval),
	}
	a.closers = append(a.closers, store)
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}
	if cfg.Metrics {
		a.Metrics = observability.NewMetrics("bazaar")
	}

	a.Bazaar, err = bazaar.New(bazaar.Options{
		Store:   store,
		Clock:   a.Clock,
		Ledger:  ledger.New(ed),
		Events:  a.Hub,
		Metrics: a.Metrics,
		Logger:  log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Auth = auth.NewAuthService(store, []byte(cfg.JWTSecret), cfg.TokenTTL)
	return a, nil
}

// Handler returns the HTTP API of the application.
func (a *App) Handler() *api.Handler {
	return api.NewHandler(a.Bazaar, a.Auth, a.Hub, a.Metrics, a.Log.WithField("component", "api"))
}

// Close releases everything New opened and reports every failure.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}

package factory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/quizwordz/internal/api"
	"github.com/mcoot/quizwordz/internal/config"
	"github.com/mcoot/quizwordz/internal/dependencies/clock"
	"github.com/mcoot/quizwordz/internal/dependencies/random"
	"github.com/mcoot/quizwordz/internal/metrics"
	"github.com/mcoot/quizwordz/internal/services/directory"
	"github.com/mcoot/quizwordz/internal/services/realtime"
	"github.com/mcoot/quizwordz/internal/services/session"
	"github.com/mcoot/quizwordz/internal/storage"
	"github.com/mcoot/quizwordz/internal/storage/memory"
	pgstorage "github.com/mcoot/quizwordz/internal/storage/postgres"
	redisstorage "github.com/mcoot/quizwordz/internal/storage/redis"
)

// How often expired rows are deleted from stores that do not expire them
// on their own
const purgeInterval = time.Minute

// App contains all wired application components
type App struct {
	Config config.Config
	Logger *slog.Logger

	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Metrics    *metrics.Metrics
	Directory  *directory.Service
	Controller *session.Controller
	HubManager *realtime.HubManager
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	// Use no-op logger if not provided
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := metrics.New()

	var store storage.Storage
	switch cfg.StorageType {
	case config.StorageMemory:
		store = memory.New()
	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		redisCfg.SessionTTL = cfg.SessionTTL
		redisCfg.MaxRetries = cfg.MaxCommitRetries
		redisCfg.OnConflict = m.CommitConflicts.Inc
		redisStore, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store = redisStore
	case config.StoragePostgres:
		pgCfg := pgstorage.DefaultConfig()
		pgCfg.URL = cfg.DatabaseURL
		pgCfg.SessionTTL = cfg.SessionTTL
		pgStore, err := pgstorage.New(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store = pgStore
	}

	logger.Info("storage ready", slog.String("type", cfg.StorageType))
	return newWithDependencies(cfg, store, clock.New(), random.New(), m, logger), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	cfg config.Config,
	store storage.Storage,
	clk clock.Clock,
	rnd random.Random,
	m *metrics.Metrics,
	logger *slog.Logger,
) *App {
	dir := directory.New(store, clk, rnd, m, logger.With(slog.String("component", "directory")))
	controller := session.NewController(store, dir, clk, rnd, m,
		logger.With(slog.String("component", "session")),
		session.Config{OperationTimeout: cfg.OperationTimeout})
	hubs := realtime.NewHubManager(store, clk, m, logger)
	hubs.SetOpenTimeout(cfg.OperationTimeout)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Storage:    store,
		Clock:      clk,
		Random:     rnd,
		Metrics:    m,
		Directory:  dir,
		Controller: controller,
		HubManager: hubs,
	}
}

// Router builds the HTTP handler for the app
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:      a.Logger,
		Controller:  a.Controller,
		HubManager:  a.HubManager,
		Metrics:     a.Metrics,
		StorageType: a.Config.StorageType,
	})
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RunMaintenance periodically deletes expired sessions until ctx is done.
// It returns immediately for stores that expire sessions themselves.
func (a *App) RunMaintenance(ctx context.Context) {
	p, ok := a.Storage.(purger)
	if !ok {
		return
	}

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				a.Logger.Warn("purge expired sessions failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.Logger.Info("purged expired sessions", slog.Int64("count", n))
			}
		}
	}
}

// Close disconnects subscribers and releases the store
func (a *App) Close() error {
	a.HubManager.Close()
	return a.Storage.Close()
}

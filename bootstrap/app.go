package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"warptrace/api"
	"warptrace/config"
	"warptrace/core"
	"warptrace/engine"
	"warptrace/service"
	"warptrace/storage"
	"warptrace/summarize"
)

const (
	// archiveWorkers drains the archive queue. Two keep up with the insert
	// batcher without reordering whole uploads.
	archiveWorkers = 2

	dbMetricsInterval  = 15 * time.Second
	apiDrainTimeout    = 5 * time.Second
	serviceWaitTimeout = 15 * time.Second
)

// App holds every component of a running WarpTrace instance.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Storage
	SQLite     *storage.SQLite
	Uploads    *storage.UploadStore
	Events     *storage.EventStore
	Findings   *storage.FindingStore
	ClickHouse *storage.ClickHouse
	Archive    *storage.EventArchive
	Cache      *core.RedisCache

	// Analysis
	Engine   *engine.Engine
	Narrator *summarize.Summarizer
	Pool     *core.WorkerPool
	Service  *service.AnalysisService

	// HTTP
	Hub    *api.Hub
	Server *api.API

	serviceWg sync.WaitGroup
	cancel    context.CancelFunc
}

// NewApp loads the configuration and wires every component. Nothing is
// listening or processing yet; Start does that.
func NewApp(ctx context.Context) (*App, error) {
	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sugar.Info("WarpTrace starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}

	if cfg.Secrets.Provider != "" {
		sugar.Infow("Loading credentials from secret provider", "provider", cfg.Secrets.Provider)
		if err := config.LoadSecrets(cfg); err != nil {
			return nil, fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	// The boot logger knows nothing about the log section; rebuild now that
	// the level and file destination are known.
	logger, sugar, err = BuildLogger(cfg)
	if err != nil {
		return nil, err
	}

	if err := EnsureDataDirectories(DataDirectoriesFromConfig(cfg)); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	app := &App{
		Config: cfg,
		Logger: logger,
		Sugar:  sugar,
		cancel: cancel,
	}
	fail := func(err error) (*App, error) {
		app.closeStorage()
		cancel()
		return nil, err
	}

	db, err := InitSQLite(cfg, sugar)
	if err != nil {
		return fail(err)
	}
	app.SQLite = db
	app.Uploads = storage.NewUploadStore(db, sugar)
	app.Events = storage.NewEventStore(db, sugar)
	app.Findings = storage.NewFindingStore(db, sugar)

	if cfg.ClickHouse.Enabled {
		ch, err := InitClickHouse(cfg, sugar)
		if err != nil {
			return fail(err)
		}
		app.ClickHouse = ch

		archive, err := storage.NewEventArchive(ch, cfg.ClickHouse.BatchSize,
			time.Duration(cfg.ClickHouse.FlushInterval)*time.Second, sugar)
		if err != nil {
			return fail(fmt.Errorf("failed to create event archive: %w", err))
		}
		app.Archive = archive
	}

	if cfg.Redis.Enabled {
		cache, err := InitRedis(appCtx, cfg, sugar)
		if err != nil {
			return fail(err)
		}
		app.Cache = cache
	}

	var extras []engine.Recognizer
	if cfg.Analysis.RecognizersFile != "" {
		extras, err = engine.LoadRecognizers(cfg.Analysis.RecognizersFile, sugar)
		if err != nil {
			return fail(fmt.Errorf("failed to load recognizers from %s: %w", cfg.Analysis.RecognizersFile, err))
		}
		sugar.Infow("Loaded activity recognizers",
			"file", cfg.Analysis.RecognizersFile, "count", len(extras))
	}
	app.Engine = engine.NewEngine(engine.Config{
		ExtraRecognizers: extras,
		ParallelPasses:   cfg.Analysis.ParallelPasses,
	}, sugar)

	app.Narrator = summarize.New(summarize.Config{
		Enabled: cfg.LLM.Enabled,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Site:    cfg.LLM.Site,
		AppName: cfg.LLM.AppName,
	}, sugar)

	app.Pool = core.NewWorkerPool(appCtx, cfg.Analysis.Workers, cfg.Analysis.QueueSize, "analysis", sugar)
	app.Hub = api.NewHub(sugar, appCtx)

	// A nil *storage.EventArchive assigned to the interface parameter would
	// not compare equal to nil inside the service, so only live components
	// are passed on.
	var archiver service.EventArchiver
	if app.Archive != nil {
		archiver = app.Archive
	}
	var cache service.AnalysisCache
	if app.Cache != nil {
		cache = app.Cache
	}

	app.Service = service.NewAnalysisService(app.Uploads, app.Events, app.Findings,
		app.Engine, app.Narrator, app.Pool, archiver, cache, app.Hub, sugar)

	app.Server = api.NewAPI(app.Service, db, app.Hub, cfg, sugar)

	return app, nil
}

// Start brings the wired components to life: analysis workers, the status
// hub, the archive writers and finally the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if err := a.Pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	go a.Hub.Start()

	if a.Archive != nil {
		a.Archive.Start(archiveWorkers)
	}

	a.SQLite.StartMetricsCollection(ctx, dbMetricsInterval)

	a.startAPIServer()

	a.Sugar.Infow("WarpTrace started",
		"addr", fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port),
		"tls", a.Config.Server.TLS,
		"auth", a.Config.Auth.Enabled,
		"workers", a.Config.Analysis.Workers,
		"narrator", a.Narrator.Enabled())
	return nil
}

// startAPIServer serves HTTP on its own goroutine so Start can return.
func (a *App) startAPIServer() {
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()

		addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
		var err error
		if a.Config.Server.TLS {
			a.Sugar.Infof("API server listening on https://%s", addr)
			err = a.Server.StartTLS(addr, a.Config.Server.CertFile, a.Config.Server.KeyFile)
		} else {
			a.Sugar.Infof("API server listening on http://%s", addr)
			err = a.Server.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorf("API server failed: %v", err)
		}
	}()
}

// WaitForShutdown blocks until the process receives SIGINT or SIGTERM.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	a.Sugar.Infof("Received %v, shutting down", sig)
}

// Shutdown stops the components in dependency order: stop taking requests,
// finish queued analyses, flush the archive, then close the connections.
func (a *App) Shutdown() {
	a.Sugar.Info("Stopping API server...")
	drainCtx, cancel := context.WithTimeout(context.Background(), apiDrainTimeout)
	if err := a.Server.Stop(drainCtx); err != nil {
		a.Sugar.Errorf("API server shutdown: %v", err)
	}
	cancel()

	a.Sugar.Info("Waiting for queued analyses...")
	a.Pool.Stop()

	if a.Archive != nil {
		a.Sugar.Info("Flushing event archive...")
		a.Archive.Stop()
	}

	a.Sugar.Info("Closing status stream...")
	a.Hub.Stop()

	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(serviceWaitTimeout):
		a.Sugar.Warn("Timed out waiting for background services")
	}

	a.closeStorage()
	a.cancel()

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}

// closeStorage releases every open connection. Safe to call with components
// that were never created.
func (a *App) closeStorage() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Sugar.Errorf("Redis close: %v", err)
		}
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.Sugar.Errorf("ClickHouse close: %v", err)
		}
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Sugar.Errorf("SQLite close: %v", err)
		}
	}
}

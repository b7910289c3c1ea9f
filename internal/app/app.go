// Package app wires the integrator together: configuration, database,
// stores, the downstream core client, the run factory and lifecycle,
// the dispatcher, the control loop and the operations API.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/integrator/internal/adapters"
	"github.com/sevigo/integrator/internal/config"
	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/db"
	"github.com/sevigo/integrator/internal/dispatch"
	"github.com/sevigo/integrator/internal/engine"
	"github.com/sevigo/integrator/internal/factory"
	"github.com/sevigo/integrator/internal/lifecycle"
	"github.com/sevigo/integrator/internal/loop"
	"github.com/sevigo/integrator/internal/piq"
	"github.com/sevigo/integrator/internal/schedule"
	"github.com/sevigo/integrator/internal/server"
	"github.com/sevigo/integrator/internal/storage"
)

// App holds the main application components. The exported fields are the
// surface the CLI commands work against.
type App struct {
	Cfg       *config.Config
	Logger    *slog.Logger
	Jobs      storage.JobStore
	Runs      storage.RunStore
	Engine    core.RunExecutor
	Factory   *factory.Factory
	Submitter *dispatch.Submitter
	Manager   *lifecycle.Manager

	server     *server.Server
	loop       *loop.Loop
	dispatcher core.Dispatcher
	closeDB    func()

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewApp sets up the application with all its dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("initializing integrator",
		"server_port", cfg.ServerPort,
		"dispatcher", cfg.Dispatcher,
		"max_workers", cfg.MaxWorkers)

	clock, err := core.NewClock(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to create clock: %w", err)
	}

	dbConn, closeDB, err := db.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	jobStore := storage.NewJobStore(dbConn.DB)
	runStore := storage.NewRunStore(dbConn.DB)
	fileStore := storage.NewFileStore(dbConn.DB)
	checkRunStore := storage.NewCheckRunStore(dbConn.DB)
	entityStore := storage.NewEntityStore(dbConn.DB)

	blobStore, err := storage.NewBlobStore(cfg.BlobDir)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	coreClient, err := piq.NewClient(cfg.PIQBaseURL, cfg.PIQAPIToken, entityStore, logger)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to create downstream core client: %w", err)
	}

	evaluator := schedule.New(runStore, jobStore, clock, logger)
	runFactory := factory.New(runStore, evaluator, coreClient, clock, cfg.EarliestInvoiceDate, logger)
	manager := lifecycle.NewManager(runStore, jobStore, &lifecycle.LogNotifier{Logger: logger}, clock, logger)

	runEngine := engine.New(engine.Deps{
		Jobs:              jobStore,
		Runs:              runStore,
		Files:             fileStore,
		Checks:            checkRunStore,
		Entities:          entityStore,
		Blobs:             blobStore,
		Extractor:         engine.NewTextExtractor(cfg.PDFToTextBin),
		Core:              coreClient,
		Lifecycle:         manager,
		Registry:          adapters.NewRegistry(),
		Clock:             clock,
		Logger:            logger,
		WorkDir:           cfg.WorkDir,
		UnknownLocationID: cfg.UnknownLocationID,
		PaymentsEDIURL:    cfg.PaymentsEDIURL,
	})

	var dispatcher core.Dispatcher
	if cfg.Dispatcher == "batch" {
		dispatcher = dispatch.NewBatch(dispatch.BatchConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Queue:    cfg.BatchQueue,
		}, logger)
	} else {
		dispatcher = dispatch.NewPool(runEngine, cfg.MaxWorkers, cfg.QueueCapacity, logger)
	}

	submitter := dispatch.NewSubmitter(dispatcher, runStore, manager, logger)

	controlLoop := loop.New(jobStore, runStore, checkRunStore, runFactory, submitter, manager,
		clock, logger, loop.Config{
			Interval:         cfg.LoopInterval,
			ScheduledTimeout: cfg.ScheduledTimeout,
			StartedTimeout:   cfg.StartedTimeout,
			WorkDir:          cfg.WorkDir,
		})

	router := server.NewRouter(jobStore, runStore, runFactory, submitter, manager, logger)
	httpServer := server.NewServer(cfg.ServerPort, router, logger)

	logger.Info("integrator initialized successfully")
	return &App{
		Cfg:        cfg,
		Logger:     logger,
		Jobs:       jobStore,
		Runs:       runStore,
		Engine:     runEngine,
		Factory:    runFactory,
		Submitter:  submitter,
		Manager:    manager,
		server:     httpServer,
		loop:       controlLoop,
		dispatcher: dispatcher,
		closeDB:    closeDB,
	}, nil
}

// Start runs the control loop in the background and serves the
// operations API. It blocks until the server stops.
func (a *App) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	a.loopCancel = cancel
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		a.loop.Run(loopCtx)
	}()

	if err := a.server.Start(); err != nil {
		a.Logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.Logger.Info("shutting down integrator")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.Logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	if a.loopCancel != nil {
		a.loopCancel()
		<-a.loopDone
	}

	// Stop the dispatcher, allowing in-flight runs to finish.
	a.dispatcher.Stop()

	a.Logger.Info("closing database connection")
	a.closeDB()

	if serverErr != nil {
		return serverErr
	}
	a.Logger.Info("integrator stopped successfully")
	return nil
}

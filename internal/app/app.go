package app

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/bridge"
	"github.com/MrSnakeDoc/shelf/internal/config"
	"github.com/MrSnakeDoc/shelf/internal/engine"
	"github.com/MrSnakeDoc/shelf/internal/events"
	"github.com/MrSnakeDoc/shelf/internal/httpserver"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/metadata"
	"github.com/MrSnakeDoc/shelf/internal/realtime"
	"github.com/MrSnakeDoc/shelf/internal/remote"
	"github.com/MrSnakeDoc/shelf/internal/scheduler"
	"github.com/MrSnakeDoc/shelf/internal/transfer"
	"github.com/MrSnakeDoc/shelf/internal/undo"
	"github.com/MrSnakeDoc/shelf/internal/version"
)

// Session is an engine bound to an open backend, with its collection
// loaded. The CLI uses it directly; the server builds on top of it.
type Session struct {
	Backend Backend
	Engine  *engine.Engine
	Bus     *events.Bus
	Ledger  *undo.Ledger
	Coll    *index.Collection
	log     logger.Logger
}

// OpenSession connects the backend and loads the owner's collection. A
// failed initial load is returned with the session still usable, so the
// caller decides whether last-known (empty) state is acceptable.
func OpenSession(ctx context.Context, cfg *config.Config, log logger.Logger) (*Session, error) {
	backend, err := OpenBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	ledger := undo.New(cfg.UndoCapacity, cfg.UndoWindow)
	coll := index.NewCollection()

	extractor := metadata.NewCachedExtractor(
		metadata.NewHTTPExtractor(cfg.MetadataTimeout, cfg.MetadataUserAgent),
		backend,
		cfg.MetadataCacheTTL,
		log,
	)

	e := engine.New(engine.Options{
		Owner:         cfg.OwnerID,
		Store:         backend,
		Extractor:     extractor,
		Collection:    coll,
		Ledger:        ledger,
		Bus:           bus,
		Logger:        log,
		RemoteTimeout: cfg.RemoteTimeout,
		Concurrency:   cfg.Concurrency,
	})

	s := &Session{Backend: backend, Engine: e, Bus: bus, Ledger: ledger, Coll: coll, log: log}
	if err := e.Load(ctx); err != nil {
		return s, fmt.Errorf("failed to load collection: %w", err)
	}
	log.Info("Collection loaded",
		logger.String("owner", cfg.OwnerID),
		logger.Int("bookmarks", coll.Count()),
		logger.Int("groups", coll.GroupCount()))
	return s, nil
}

// Close waits for in-flight remote calls, then closes the backend.
func (s *Session) Close(ctx context.Context) error {
	if err := s.Engine.Close(ctx); err != nil {
		s.log.Warn("engine did not drain before the deadline", logger.Error(err))
	}
	return s.Backend.Close()
}

type App struct {
	cfg        *config.Config
	logger     logger.Logger
	session    *Session
	server     *httpserver.Server
	hub        *bridge.Hub
	reconciler *realtime.Reconciler
	sweeper    *scheduler.UndoSweeper
	reloader   *scheduler.SnapshotReloader
}

func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	// Fail fast if the backend is unreachable
	session, err := OpenSession(ctx, cfg, loggerClient)
	if session == nil {
		return nil, err
	}
	if err != nil {
		loggerClient.Warn("initial load failed, serving empty state until the next reload",
			logger.Error(err))
	}
	e := session.Engine

	// Notifications are transient; the log keeps a trace of them
	events.Subscribe(session.Bus, events.Notifications, func(n events.Notification) {
		fields := []logger.Field{
			logger.String("op", n.Op),
			logger.Strings("ids", n.IDs),
		}
		if n.UndoID != "" {
			fields = append(fields, logger.String("undo_id", n.UndoID))
		}
		if n.Level == events.LevelError {
			loggerClient.Warn(n.Message, fields...)
			return
		}
		loggerClient.Info(n.Message, fields...)
	})

	reloader := scheduler.NewSnapshotReloader(e, loggerClient, cfg.ReloadInterval)

	reconciler, err := realtime.New(realtime.Options{
		Collection: session.Coll,
		Bus:        session.Bus,
		Logger:     loggerClient,
		OnStreamLost: func(entity remote.Entity) {
			reloader.Trigger()
		},
	})
	if err != nil {
		_ = session.Close(ctx)
		return nil, fmt.Errorf("failed to build reconciler: %w", err)
	}

	hub := bridge.NewHub(bridge.Options{
		Logger:         loggerClient,
		Bus:            session.Bus,
		Timeout:        cfg.ExtensionTimeout,
		OriginPatterns: cfg.ExtensionOrigins,
		OnBroadcast:    reconciler.ApplyBroadcast,
	})

	sweeper := scheduler.NewUndoSweeper(
		session.Ledger,
		session.Coll,
		loggerClient,
		cfg.UndoSweep,
		cfg.TombstoneTTL,
	)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		RateLimit:       cfg.RateLimit,
		RequestTimeout:  cfg.RemoteTimeout + 5*time.Second,
		Engine:          e,
		Store:           session.Backend,
		Hub:             hub,
		Reloader:        reloader,
		Realtime:        reconciler,
		Importer:        transfer.NewImporter(e, loggerClient),
		ImportBatchSize: cfg.ImportBatchSize,
		ExportBatchSize: cfg.ExportBatchSize,
	}

	return &App{
		cfg:        cfg,
		logger:     loggerClient,
		session:    session,
		server:     httpserver.New(cfg, loggerClient, d),
		hub:        hub,
		reconciler: reconciler,
		sweeper:    sweeper,
		reloader:   reloader,
	}, nil
}

// Run serves until ctx ends, then shuts everything down in reverse order.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("🚀 Starting shelf v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info("build", logger.String("version", version.String()))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Realtime merge of remote writes
	realtimeDone := make(chan struct{})
	go func() {
		defer close(realtimeDone)
		if err := a.reconciler.Run(runCtx, a.session.Backend, a.cfg.OwnerID); err != nil {
			a.logger.Error("realtime subscription failed, relying on snapshot reloads", logger.Error(err))
			a.reloader.Trigger()
		}
	}()

	a.sweeper.Start(runCtx)
	a.logger.Info("undo sweeper started", logger.Duration("interval", a.cfg.UndoSweep))

	a.reloader.Start(runCtx)
	a.logger.Info("snapshot reloader started", logger.Duration("interval", a.cfg.ReloadInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	a.reloader.Stop()
	a.sweeper.Stop()
	if err := a.hub.Close(); err != nil {
		a.logger.Warn("failed to close extension hub", logger.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	cancel()
	<-realtimeDone

	if err := a.session.Close(shutdownCtx); err != nil {
		a.logger.Warnf("failed to close backend: %v", err)
	} else {
		a.logger.Info("✅ Backend closed cleanly")
	}

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ shelf stopped cleanly")
	return nil
}

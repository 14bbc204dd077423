// Package app wires the archiver's long-lived services and drives archive runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/website-archiver/internal/api"
	"github.com/JakeFAU/website-archiver/internal/archive"
	"github.com/JakeFAU/website-archiver/internal/checker"
	"github.com/JakeFAU/website-archiver/internal/clock/system"
	"github.com/JakeFAU/website-archiver/internal/config"
	"github.com/JakeFAU/website-archiver/internal/id/uuid"
	"github.com/JakeFAU/website-archiver/internal/metrics"
	"github.com/JakeFAU/website-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/website-archiver/internal/runner"
	"github.com/JakeFAU/website-archiver/internal/storage"
	"github.com/JakeFAU/website-archiver/internal/storage/gcs"
	"github.com/JakeFAU/website-archiver/internal/storage/local"
	"github.com/JakeFAU/website-archiver/internal/storage/memory"
	"github.com/JakeFAU/website-archiver/internal/storage/postgres"
	"github.com/JakeFAU/website-archiver/internal/telemetry"
)

const historyTimeout = 5 * time.Second

// Option overrides a collaborator App would otherwise build from config.
type Option func(*App)

// WithStore replaces the configured website store and run history.
func WithStore(store archive.Store, history archive.RunHistory) Option {
	return func(a *App) {
		a.store = store
		a.history = history
	}
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p archive.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithMirror replaces the configured mirror.
func WithMirror(m archive.Mirror) Option {
	return func(a *App) { a.mirror = m }
}

// WithClock replaces the wall clock, which fixes the run date.
func WithClock(c archive.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// App holds the shared services. It is built once per process and closed on exit.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     archive.Store
	history   archive.RunHistory
	checker   *checker.Checker
	runner    *runner.Runner
	publisher archive.Publisher
	mirror    archive.Mirror
	clock     archive.Clock
	ids       archive.IDGenerator
	registry  *prometheus.Registry
	metrics   *metrics.Recorder
	tracer    trace.Tracer

	baseCtx     context.Context
	stopChecker context.CancelFunc
	checkerDone chan struct{}
	closers     []func() error
	background  sync.WaitGroup

	mu      sync.Mutex
	running bool
	last    *archive.Report
}

// New builds every service from cfg and starts the checker. Close releases them.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Archive.Command) == 0 {
		cfg.Archive.Command = config.DefaultCommand()
	}
	a := &App{cfg: cfg, logger: logger, ids: uuid.New()}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = system.New()
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	checkerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.baseCtx = checkerCtx
	a.stopChecker = cancel
	a.checkerDone = make(chan struct{})
	go func() {
		defer close(a.checkerDone)
		a.checker.Run(checkerCtx)
	}()

	logger.Info("application services initialized",
		zap.String("database", cfg.Database.Driver),
		zap.String("program", cfg.Archive.Command[0]),
		zap.Int("num_workers", cfg.Runner.NumWorkers),
		zap.Bool("publish", a.publisher != nil),
		zap.Bool("mirror", a.mirror != nil),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	rec, err := metrics.NewRecorder(a.registry)
	if err != nil {
		return err
	}
	a.metrics = rec

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		SampleRatio: a.cfg.Telemetry.SampleRatio,
		Exporter:    a.cfg.Telemetry.Exporter,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	a.tracer = tp.Tracer("github.com/JakeFAU/website-archiver/internal/controller")
	a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })

	if a.store == nil {
		if err := a.openStore(ctx); err != nil {
			return err
		}
	}
	if a.publisher == nil && a.cfg.PubSub.Enabled() {
		pub, err := pubsub.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicID)
		if err != nil {
			return fmt.Errorf("initialize publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}
	if a.mirror == nil {
		if err := a.openMirror(ctx); err != nil {
			return err
		}
	}

	for _, dir := range []string{a.cfg.Archive.OutputDir, a.cfg.Archive.WorkDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	a.checker = checker.New(checker.Config{
		Timeout:         a.cfg.Checker.Timeout,
		QueueSize:       a.cfg.Checker.QueueSize,
		UserAgent:       a.cfg.Checker.UserAgent,
		FollowRedirects: a.cfg.Checker.FollowRedirects,
		MaxRedirects:    a.cfg.Checker.MaxRedirects,
	}, a.logger)
	a.runner = runner.New(runner.Config{
		WorkDir:   a.cfg.Archive.WorkDir,
		KillGrace: a.cfg.Archive.KillGrace,
	}, a.logger)
	return nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case "postgres":
		ws, err := postgres.NewWebsiteStore(ctx, postgres.Config{
			DSN:      a.cfg.Database.URL,
			Table:    a.cfg.Database.Table,
			MaxConns: a.cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		a.closers = append(a.closers, func() error { ws.Close(); return nil })
		runs, err := postgres.NewRunStore(ws, a.cfg.Database.RunTable)
		if err != nil {
			return fmt.Errorf("initialize run history: %w", err)
		}
		a.store, a.history = ws, runs
	case "memory":
		seed := make([]archive.Website, 0, len(a.cfg.Database.Websites))
		for _, w := range a.cfg.Database.Websites {
			seed = append(seed, archive.Website{ID: w.ID, URL: w.URL, IsValid: w.IsValid})
		}
		a.store, a.history = memory.NewWebsiteStore(seed), memory.NewRunStore()
	default:
		return fmt.Errorf("unknown database driver %q", a.cfg.Database.Driver)
	}
	return nil
}

func (a *App) openMirror(ctx context.Context) error {
	var objects storage.ObjectStore
	switch a.cfg.Mirror.Driver {
	case "", "none":
		return nil
	case "gcs":
		bs, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Mirror.GCSBucket})
		if err != nil {
			return fmt.Errorf("initialize mirror: %w", err)
		}
		a.closers = append(a.closers, bs.Close)
		objects = bs
	case "local":
		bs, err := local.New(local.Config{BaseDir: a.cfg.Mirror.LocalDir})
		if err != nil {
			return fmt.Errorf("initialize mirror: %w", err)
		}
		objects = bs
	default:
		return fmt.Errorf("unknown mirror driver %q", a.cfg.Mirror.Driver)
	}
	m, err := storage.NewMirror(objects, a.logger)
	if err != nil {
		return err
	}
	a.mirror = m
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store returns the website store.
func (a *App) Store() archive.Store {
	return a.store
}

// History returns the run history store.
func (a *App) History() archive.RunHistory {
	return a.history
}

// Server builds the status server over this App.
func (a *App) Server() *api.Server {
	return api.NewServer(api.Options{
		Runs:     a,
		History:  a.history,
		Store:    a.store,
		Gatherer: a.registry,
		Ready:    a.Ready,
		APIKey:   a.cfg.Server.APIKey,
		Logger:   a.logger,
	})
}

// Ready pings the database when it supports it.
func (a *App) Ready(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// LastReport returns the most recent finished run.
func (a *App) LastReport() (archive.Report, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return archive.Report{}, false
	}
	return *a.last, true
}

// Close stops background runs and the checker, then releases clients in reverse order.
func (a *App) Close() error {
	if a.stopChecker != nil {
		a.stopChecker()
		a.background.Wait()
		<-a.checkerDone
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}

// Package controller runs one archive job per website under a fixed process budget.
//
// Jobs are independent goroutines. The liveness check and store write are unbounded here (they
// are throttled by the checker's queue); only the archive step, which runs the external program
// and relocates its output, holds one of the controller's worker permits.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/website-archiver/internal/archive"
	"github.com/JakeFAU/website-archiver/internal/clock/system"
	"github.com/JakeFAU/website-archiver/internal/metrics"
)

const (
	defaultProgram = "wget"
	tracerName     = "github.com/JakeFAU/website-archiver/internal/controller"
)

// Config controls what the controller runs and where output goes.
type Config struct {
	// Program and Args form the command; Args may contain the {url} placeholder.
	Program string
	Args    []string
	// WorkDir receives one <run id>/<website id> directory per job, which is the program's
	// working directory.
	WorkDir string
	// OutputRoot receives <website id>/<run date>/<output>.
	OutputRoot string
	// IncludePathSegments appends the URL path to the expected output location.
	IncludePathSegments bool
	// NumWorkers bounds concurrently running archive processes.
	NumWorkers int
	// Topic, when set, receives one notification per finished job.
	Topic string
	// MirrorPrefix is prepended to uploaded object names when a Mirror is configured.
	MirrorPrefix string
}

// Dependencies are the collaborators a Controller drives. Store, Checker and Runner are required.
type Dependencies struct {
	Store     archive.Store
	Checker   archive.Checker
	Runner    archive.Runner
	Publisher archive.Publisher
	Mirror    archive.Mirror
	Clock     archive.Clock
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
	// Tracer starts one span per job. Defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Controller schedules archive jobs and tracks them until Wait.
type Controller struct {
	cfg       Config
	store     archive.Store
	checker   archive.Checker
	runner    archive.Runner
	publisher archive.Publisher
	mirror    archive.Mirror
	clock     archive.Clock
	metrics   *metrics.Recorder
	logger    *zap.Logger
	tracer    trace.Tracer

	runID   string
	runDate string
	permits *semaphore.Weighted

	wg       sync.WaitGroup
	inFlight atomic.Int64
	// permit bookkeeping, observable by tests
	permitsHeld     atomic.Int64
	permitsAcquired atomic.Int64
	permitsReleased atomic.Int64

	mu     sync.Mutex
	report archive.Report
}

// New constructs a Controller for one run. The run date is taken from the clock once, here.
func New(runID string, cfg Config, deps Dependencies) (*Controller, error) {
	if deps.Store == nil || deps.Checker == nil || deps.Runner == nil {
		return nil, errors.New("controller requires a store, a checker and a runner")
	}
	if cfg.NumWorkers <= 0 {
		return nil, fmt.Errorf("num workers must be > 0, got %d", cfg.NumWorkers)
	}
	if cfg.OutputRoot == "" {
		return nil, errors.New("output root is required")
	}
	if cfg.Program == "" {
		cfg.Program = defaultProgram
	}
	cfg.Args = append([]string(nil), cfg.Args...)
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	runDate := archive.RunDate(deps.Clock.Now())
	return &Controller{
		cfg:       cfg,
		store:     deps.Store,
		checker:   deps.Checker,
		runner:    deps.Runner,
		publisher: deps.Publisher,
		mirror:    deps.Mirror,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    logger.With(zap.String("run_id", runID), zap.String("run_date", runDate)),
		tracer:    deps.Tracer,
		runID:     runID,
		runDate:   runDate,
		permits:   semaphore.NewWeighted(int64(cfg.NumWorkers)),
		report:    archive.Report{RunID: runID, RunDate: runDate},
	}, nil
}

// RunDate is the date every job of this controller archives under.
func (c *Controller) RunDate() string {
	return c.runDate
}

// InFlight is the number of scheduled jobs that have not finished.
func (c *Controller) InFlight() int64 {
	return c.inFlight.Load()
}

// Schedule starts a job for website and returns immediately.
func (c *Controller) Schedule(ctx context.Context, website archive.Website) {
	c.wg.Add(1)
	c.inFlight.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.inFlight.Add(-1)
		ctx, span := c.tracer.Start(ctx, "archive.job", trace.WithAttributes(
			attribute.String("archive.run_id", c.runID),
			attribute.String("archive.website_id", website.ID),
			attribute.String("url.full", website.URL),
		))
		defer span.End()
		res := c.runJob(ctx, website)
		annotate(span, res)
		c.record(ctx, res)
	}()
}

// Wait blocks until every scheduled job has finished and returns the run report. The run's
// work directory is removed once it is empty.
func (c *Controller) Wait() archive.Report {
	c.wg.Wait()
	_ = os.Remove(filepath.Join(c.cfg.WorkDir, c.runID))
	return c.Snapshot()
}

// Snapshot returns the results recorded so far without waiting.
func (c *Controller) Snapshot() archive.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.report
	out.Results = append([]archive.JobResult(nil), c.report.Results...)
	return out
}

// runJob executes the job, converting a panic into a failed result.
func (c *Controller) runJob(ctx context.Context, website archive.Website) archive.JobResult {
	started := c.clock.Now()
	var res archive.JobResult
	recovered := panics.Try(func() {
		res = c.process(ctx, website)
	})
	if recovered != nil {
		c.logger.Error("archive job panicked",
			zap.String("website_id", website.ID),
			zap.String("url", website.URL),
			zap.String("panic", recovered.String()),
		)
		res = c.newResult(website, started)
		res.State = archive.JobFailed
		res.Err = fmt.Errorf("%w: %v", archive.ErrJobPanic, recovered.Value)
	}
	res.Duration = c.clock.Now().Sub(started)
	return res
}

func annotate(span trace.Span, res archive.JobResult) {
	span.SetAttributes(
		attribute.String("archive.state", string(res.State)),
		attribute.String("archive.check_status", res.CheckStatus),
		attribute.Int("archive.exit_code", res.ExitCode),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
}

func (c *Controller) newResult(website archive.Website, started time.Time) archive.JobResult {
	return archive.JobResult{
		RunID:       c.runID,
		WebsiteID:   website.ID,
		URL:         website.URL,
		CheckStatus: archive.StatusFailed.String(),
		ExitCode:    -1,
		StartedAt:   started,
	}
}

func (c *Controller) record(ctx context.Context, res archive.JobResult) {
	c.mu.Lock()
	c.report.Add(res)
	c.mu.Unlock()

	c.metrics.ObserveJob(res.State)
	fields := []zap.Field{
		zap.String("website_id", res.WebsiteID),
		zap.String("trace_id", trace.SpanContextFromContext(ctx).TraceID().String()),
		zap.String("url", res.URL),
		zap.String("state", string(res.State)),
		zap.Duration("dur", res.Duration),
	}
	if res.Err != nil {
		c.logger.Warn("archive job failed", append(fields, zap.Error(res.Err))...)
	} else {
		c.logger.Info("archive job finished", fields...)
	}
	c.publish(ctx, res)
}

func (c *Controller) publish(ctx context.Context, res archive.JobResult) {
	if c.cfg.Topic == "" || c.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":        res.RunID,
		"run_date":      c.runDate,
		"website_id":    res.WebsiteID,
		"url":           res.URL,
		"resolved_url":  res.ResolvedURL,
		"state":         res.State,
		"check_status":  res.CheckStatus,
		"store_updated": res.StoreUpdated,
		"exit_code":     res.ExitCode,
		"destination":   res.Destination,
		"mirror_uri":    res.MirrorURI,
		"error":         res.Error(),
		"timestamp":     c.clock.Now().UTC().Format(time.RFC3339),
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.Topic, payload); err != nil {
		c.logger.Warn("publish job result failed", zap.String("website_id", res.WebsiteID), zap.Error(err))
	}
}

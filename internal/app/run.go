package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-archiver/internal/api"
	"github.com/JakeFAU/website-archiver/internal/archive"
	"github.com/JakeFAU/website-archiver/internal/controller"
)

// RunOnce archives every website once and returns the run report. If ctx ends first it returns
// immediately with the partial report and ctx's error; unfinished jobs see the same cancellation
// and kill their processes.
func (a *App) RunOnce(ctx context.Context) (archive.Report, error) {
	if !a.begin() {
		return archive.Report{}, api.ErrRunInProgress
	}
	defer a.end()
	runID, err := a.ids.NewID()
	if err != nil {
		return archive.Report{}, err
	}
	return a.run(ctx, runID)
}

// Trigger starts a run in the background. The run outlives the caller's context and stops when
// the App closes.
func (a *App) Trigger(context.Context) (string, error) {
	if !a.begin() {
		return "", api.ErrRunInProgress
	}
	runID, err := a.ids.NewID()
	if err != nil {
		a.end()
		return "", err
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		defer a.end()
		if _, err := a.run(a.baseCtx, runID); err != nil {
			a.logger.Error("triggered run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return runID, nil
}

func (a *App) begin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return false
	}
	a.running = true
	return true
}

func (a *App) end() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

func (a *App) run(ctx context.Context, runID string) (archive.Report, error) {
	log := a.logger.With(zap.String("run_id", runID))
	started := a.clock.Now()

	sites, err := a.store.ListWebsites(ctx)
	if err != nil {
		return archive.Report{}, fmt.Errorf("list websites: %w", err)
	}
	sites = selectWebsites(sites, a.cfg.Runner.NumRuns, log)

	ctrl, err := controller.New(runID, controller.Config{
		Program:             a.cfg.Archive.Command[0],
		Args:                a.cfg.Archive.Command[1:],
		WorkDir:             a.cfg.Archive.WorkDir,
		OutputRoot:          a.cfg.Archive.OutputDir,
		IncludePathSegments: a.cfg.Archive.IncludePathSegments,
		NumWorkers:          a.cfg.Runner.NumWorkers,
		Topic:               a.cfg.PubSub.TopicID,
		MirrorPrefix:        a.cfg.Mirror.Prefix,
	}, controller.Dependencies{
		Store:     a.store,
		Checker:   a.checker,
		Runner:    a.runner,
		Publisher: a.publisher,
		Mirror:    a.mirror,
		Clock:     a.clock,
		Metrics:   a.metrics,
		Logger:    a.logger,
		Tracer:    a.tracer,
	})
	if err != nil {
		return archive.Report{}, err
	}
	log.Info("archive run started", zap.Int("websites", len(sites)), zap.String("run_date", ctrl.RunDate()))

	for _, w := range sites {
		ctrl.Schedule(ctx, w)
	}
	done := make(chan archive.Report, 1)
	go func() { done <- ctrl.Wait() }()

	var (
		report  archive.Report
		runErr  error
		stopped bool
	)
	select {
	case report = <-done:
	case <-ctx.Done():
		report = ctrl.Snapshot()
		runErr = ctx.Err()
		stopped = true
		log.Warn("archive run interrupted", zap.Int64("in_flight", ctrl.InFlight()))
	}
	finished := a.clock.Now()

	a.metrics.ObserveRun(report, finished)
	a.recordHistory(ctx, report.Summary(started, finished, stopped), log)
	a.mu.Lock()
	a.last = &report
	a.mu.Unlock()

	log.Info("archive run finished",
		zap.Int("archived", report.Archived),
		zap.Int("dead", report.Dead),
		zap.Int("failed", report.Failed),
		zap.Bool("interrupted", stopped),
	)
	return report, runErr
}

func (a *App) recordHistory(ctx context.Context, summary archive.RunSummary, log *zap.Logger) {
	if a.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := a.history.RecordRun(ctx, summary); err != nil {
		log.Warn("record run history failed", zap.Error(err))
	}
}

// selectWebsites drops repeated ids (keeping the first) and applies the per-run limit.
func selectWebsites(sites []archive.Website, limit int, log *zap.Logger) []archive.Website {
	seen := make(map[string]struct{}, len(sites))
	out := make([]archive.Website, 0, len(sites))
	for _, w := range sites {
		if _, dup := seen[w.ID]; dup {
			log.Warn("duplicate website id skipped", zap.String("website_id", w.ID), zap.String("url", w.URL))
			continue
		}
		seen[w.ID] = struct{}{}
		out = append(out, w)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// IsInterrupted reports whether err came from a run cut short by its context.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

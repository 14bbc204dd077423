// Package scheduler triggers archive runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunFunc performs one archive run.
type RunFunc func(ctx context.Context) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler fires RunFunc on a cron expression. Overlapping firings are skipped.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	run      RunFunc
	logger   *zap.Logger
}

// New validates spec (standard five fields or a descriptor such as "@daily").
func New(spec string, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("run func is required")
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{spec: spec, schedule: schedule, run: run, logger: logger.Named("scheduler")}, nil
}

// Next returns the first firing after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks until ctx ends, firing runs on schedule. With runNow, one run starts immediately.
// It waits for an in-progress run before returning.
func (s *Scheduler) Run(ctx context.Context, runNow bool) error {
	log := cronLogger{l: s.logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	job := c.Schedule(s.schedule, cron.FuncJob(func() { s.fire(ctx) }))
	if runNow {
		c.Entry(job).WrappedJob.Run()
	}

	c.Start()
	s.logger.Info("scheduler started", zap.String("cron", s.spec), zap.Time("next_run", s.Next(time.Now())))
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := s.run(ctx); err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err), zap.Duration("dur", time.Since(started)))
		return
	}
	s.logger.Info("scheduled run finished", zap.Duration("dur", time.Since(started)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

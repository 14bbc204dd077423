// Package runner spawns the external archiving program.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

// URLPlaceholder is replaced, case-insensitively, by the resolved URL in argument templates.
const URLPlaceholder = "{url}"

const defaultKillGrace = 5 * time.Second

// Config controls how processes are started.
type Config struct {
	// WorkDir is the directory the program runs in when Run is given no dir; empty means the
	// current directory.
	WorkDir string
	// KillGrace is how long a cancelled process has to exit after SIGTERM before it is killed.
	KillGrace time.Duration
}

// Runner starts one process per call. It holds no per-run state.
type Runner struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Runner.
func New(cfg Config, logger *zap.Logger) *Runner {
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = defaultKillGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// SubstituteURL returns a copy of template with every argument equal to URLPlaceholder
// (ignoring case) replaced by rawURL. Other arguments are passed through unchanged.
func SubstituteURL(template []string, rawURL string) []string {
	out := make([]string, len(template))
	for i, arg := range template {
		if strings.EqualFold(arg, URLPlaceholder) {
			out[i] = rawURL
			continue
		}
		out[i] = arg
	}
	return out
}

// Run starts program with args in dir (WorkDir when empty), discarding its standard streams, and
// waits for it to exit. A context that has already ended is reported as killed without starting
// the program. A non-zero exit is reported through ExitStatus, not as an error. When ctx ends the
// process is sent SIGTERM, then killed once KillGrace has passed, and the status is marked Killed.
func (r *Runner) Run(ctx context.Context, dir, program string, args []string) (archive.ExitStatus, error) {
	if err := ctx.Err(); err != nil {
		r.logger.Debug("process not started", zap.String("program", program), zap.Error(err))
		return archive.ExitStatus{Code: -1, Killed: true}, nil
	}
	if dir == "" {
		dir = r.cfg.WorkDir
	}
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = dir
	// Nil Stdin/Stdout/Stderr connect the process to the null device.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = r.cfg.KillGrace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return archive.ExitStatus{Code: -1}, fmt.Errorf("%w: %s: %w", archive.ErrSpawn, program, err)
	}
	pid := cmd.Process.Pid
	r.logger.Debug("process started", zap.String("program", program), zap.Int("pid", pid))

	err := cmd.Wait()
	if cmd.ProcessState == nil {
		return archive.ExitStatus{Code: -1}, fmt.Errorf("wait for %s: %w", program, err)
	}
	status := archive.ExitStatus{Code: cmd.ProcessState.ExitCode()}
	if ctx.Err() != nil && !cmd.ProcessState.Success() {
		status.Killed = true
	}
	r.logger.Debug("process exited",
		zap.String("program", program),
		zap.Int("pid", pid),
		zap.Int("exit_code", status.Code),
		zap.Bool("killed", status.Killed),
		zap.Duration("dur", time.Since(start)),
	)

	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) || status.Killed {
		return status, nil
	}
	return status, fmt.Errorf("wait for %s: %w", program, err)
}

package archive

import (
	"context"
	"time"
)

// Store persists website records.
type Store interface {
	ListWebsites(ctx context.Context) ([]Website, error)
	UpdateStatus(ctx context.Context, id string, isValid bool) error
}

// RunHistory keeps finished run summaries, newest first.
type RunHistory interface {
	RecordRun(ctx context.Context, run RunSummary) error
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Checker checks a URL for liveness.
type Checker interface {
	Check(ctx context.Context, rawURL string) (Outcome, error)
}

// Runner executes an external program to completion.
type Runner interface {
	Run(ctx context.Context, dir, program string, args []string) (ExitStatus, error)
}

// Publisher pushes job result notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Mirror copies a relocated archive to remote storage and returns its URI.
type Mirror interface {
	Upload(ctx context.Context, localPath string, prefix string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Package checker implements the website liveness checker.
//
// A Checker is a single-consumer actor: it owns one HTTP client and serves check requests from a
// bounded channel, issuing exactly one outbound request per dequeued message before taking the
// next. Callers receive their outcome on a one-shot reply channel.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

// ErrStopped is returned once the actor loop has exited.
var ErrStopped = errors.New("checker stopped")

const (
	defaultTimeout      = 10 * time.Second
	defaultQueueSize    = 100
	defaultMaxRedirects = 10
	maxDrainBytes       = 64 << 10
)

// Config controls the checker's client and queue.
type Config struct {
	Timeout         time.Duration
	QueueSize       int
	UserAgent       string
	FollowRedirects bool
	MaxRedirects    int
}

type request struct {
	ctx   context.Context
	url   string
	reply chan archive.Outcome
}

// Checker serializes liveness checks through one HTTP client.
type Checker struct {
	cfg      Config
	client   *http.Client
	requests chan request
	done     chan struct{}
	logger   *zap.Logger
}

// New constructs a Checker. Run must be started before Check can make progress.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		cfg:      cfg,
		client:   newClient(cfg),
		requests: make(chan request, cfg.QueueSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

func newClient(cfg Config) *http.Client {
	client := &http.Client{Timeout: cfg.Timeout}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		return client
	}
	limit := cfg.MaxRedirects
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("stopped after %d redirects", limit)
		}
		return nil
	}
	return client
}

// Run serves check requests until ctx ends. It must be called exactly once.
func (c *Checker) Run(ctx context.Context) {
	defer close(c.done)
	c.logger.Debug("checker started", zap.Int("queue_size", c.cfg.QueueSize))
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("checker stopped", zap.Error(ctx.Err()))
			return
		case req := <-c.requests:
			// reply is buffered, so the send never blocks on an abandoned caller.
			req.reply <- c.check(req.ctx, req.url)
		}
	}
}

// Check enqueues a liveness check for rawURL and waits for its outcome. It blocks while the queue is
// full. The returned error is non-nil only when the request could not be queued or answered.
func (c *Checker) Check(ctx context.Context, rawURL string) (archive.Outcome, error) {
	reply := make(chan archive.Outcome, 1)
	select {
	case c.requests <- request{ctx: ctx, url: rawURL, reply: reply}:
	case <-ctx.Done():
		return archive.Outcome{}, fmt.Errorf("send check request: %w", ctx.Err())
	case <-c.done:
		return archive.Outcome{}, fmt.Errorf("send check request: %w", ErrStopped)
	}
	select {
	case outcome := <-reply:
		return outcome, nil
	case <-ctx.Done():
		return archive.Outcome{}, fmt.Errorf("receive check status: %w", ctx.Err())
	case <-c.done:
		return archive.Outcome{}, fmt.Errorf("receive check status: %w", ErrStopped)
	}
}

func (c *Checker) check(ctx context.Context, rawURL string) archive.Outcome {
	if ctx.Err() != nil {
		return archive.Failed(fmt.Errorf("%w: %w", archive.ErrNetwork, ctx.Err()))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return archive.Failed(fmt.Errorf("%w: build request: %w", archive.ErrNetwork, err))
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("check request failed", zap.String("url", rawURL), zap.Error(err))
		return archive.Failed(fmt.Errorf("%w: send request: %w", archive.ErrNetwork, err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		_ = resp.Body.Close()
	}()

	outcome := classify(resp)
	c.logger.Debug("check completed",
		zap.String("url", rawURL),
		zap.String("final_url", outcome.URL.String()),
		zap.Int("status_code", resp.StatusCode),
		zap.Stringer("outcome", outcome.Status),
		zap.Duration("dur", time.Since(start)),
	)
	return outcome
}

func classify(resp *http.Response) archive.Outcome {
	final := resp.Request.URL
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return archive.Valid(final)
	case code >= 300 && code < 400:
		return archive.Redirected(location(resp, final))
	default:
		return archive.Dead(final)
	}
}

// location returns the redirect target of an unfollowed 3xx response, or fallback.
func location(resp *http.Response, fallback *url.URL) *url.URL {
	loc, err := resp.Location()
	if err != nil {
		return fallback
	}
	return loc
}

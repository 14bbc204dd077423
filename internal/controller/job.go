package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-archiver/internal/archive"
	"github.com/JakeFAU/website-archiver/internal/runner"
)

// process runs one website through check, store sync and archive.
func (c *Controller) process(ctx context.Context, website archive.Website) archive.JobResult {
	res := c.newResult(website, c.clock.Now())
	log := c.logger.With(zap.String("website_id", website.ID), zap.String("url", website.URL))

	outcome, err := c.checker.Check(ctx, website.URL)
	if err != nil {
		c.metrics.ObserveCheck(archive.StatusFailed)
		res.State = archive.JobFailed
		res.Err = fmt.Errorf("check %s: %w", website.URL, err)
		return res
	}
	res.CheckStatus = outcome.Status.String()
	c.metrics.ObserveCheck(outcome.Status)

	resolved, isValid, ok := outcome.Resolve()
	if !ok {
		res.State = archive.JobFailed
		res.Err = outcome.Err
		return res
	}
	if resolved != nil {
		res.ResolvedURL = resolved.String()
	}

	if website.IsStale(isValid) {
		err := c.store.UpdateStatus(ctx, website.ID, isValid)
		c.metrics.ObserveStoreWrite(err)
		if err != nil {
			res.State = archive.JobFailed
			res.Err = fmt.Errorf("%w: website %s: %w", archive.ErrStoreWrite, website.ID, err)
			return res
		}
		res.StoreUpdated = true
		log.Debug("website status updated", zap.Bool("is_valid", isValid))
	}

	if !isValid {
		res.State = archive.JobDead
		return res
	}

	dest, err := c.archiveSite(ctx, website.ID, resolved, &res)
	if err != nil {
		res.State = archive.JobFailed
		res.Err = err
		return res
	}
	res.Destination = dest
	res.State = archive.JobArchived

	if c.mirror != nil {
		uri, err := c.mirror.Upload(ctx, dest, c.mirrorPrefix(website.ID))
		if err != nil {
			log.Warn("mirror upload failed", zap.String("destination", dest), zap.Error(err))
		} else {
			res.MirrorURI = uri
		}
	}
	return res
}

// archiveSite runs the archive program for resolved in a private work directory while holding a
// worker permit, then relocates its output. The permit is released and the work directory removed
// on every return path.
func (c *Controller) archiveSite(
	ctx context.Context,
	websiteID string,
	resolved *url.URL,
	res *archive.JobResult,
) (string, error) {
	jobDir, err := archive.JobWorkDir(c.cfg.WorkDir, c.runID, websiteID)
	if err != nil {
		return "", err
	}
	src, err := archive.SourcePath(jobDir, resolved, c.cfg.IncludePathSegments)
	if err != nil {
		return "", err
	}
	dest, err := archive.DestinationPath(c.cfg.OutputRoot, websiteID, c.runDate)
	if err != nil {
		return "", err
	}

	if err := c.acquire(ctx); err != nil {
		return "", fmt.Errorf("acquire worker permit: %w", err)
	}
	defer c.release()

	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create work dir %s: %w", archive.ErrSpawn, jobDir, err)
	}
	defer c.removeWorkDir(jobDir)

	args := runner.SubstituteURL(c.cfg.Args, resolved.String())
	started := c.clock.Now()
	status, err := c.runner.Run(ctx, jobDir, c.cfg.Program, args)
	c.metrics.ObserveProcess(status, err, c.clock.Now().Sub(started))
	res.ExitCode = status.Code
	if err != nil {
		return "", err
	}
	if status.Killed {
		return "", fmt.Errorf("%s killed: %w", c.cfg.Program, ctx.Err())
	}
	if !status.Success() {
		// Non-zero exits still relocate whatever the program managed to write.
		c.logger.Warn("archive program exited non-zero",
			zap.String("website_id", websiteID),
			zap.String("program", c.cfg.Program),
			zap.Int("exit_code", status.Code),
		)
	}

	moved, err := relocate(src, dest)
	if err != nil {
		if errors.Is(err, archive.ErrRelocation) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", archive.ErrRelocation, err)
	}
	return moved, nil
}

func (c *Controller) removeWorkDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		c.logger.Warn("remove work dir failed", zap.String("path", dir), zap.Error(err))
	}
}

func (c *Controller) acquire(ctx context.Context) error {
	if err := c.permits.Acquire(ctx, 1); err != nil {
		return err
	}
	c.permitsHeld.Add(1)
	c.permitsAcquired.Add(1)
	c.metrics.PermitAcquired()
	return nil
}

func (c *Controller) release() {
	c.permitsHeld.Add(-1)
	c.permitsReleased.Add(1)
	c.metrics.PermitReleased()
	c.permits.Release(1)
}

func (c *Controller) mirrorPrefix(websiteID string) string {
	prefix := websiteID + "/" + c.runDate
	if c.cfg.MirrorPrefix == "" {
		return prefix
	}
	return c.cfg.MirrorPrefix + "/" + prefix
}

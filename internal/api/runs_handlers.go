package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
	storeTimeout    = 3 * time.Second
)

// ErrRunInProgress is returned by Runs.Trigger when a run is already active.
var ErrRunInProgress = errors.New("run already in progress")

// listRuns handles GET /v1/runs?limit=. It returns {"runs": [...]}, 400 for a bad limit,
// or 503 when no history store is configured.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	runs, err := s.opts.History.ListRuns(ctx, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []archive.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// latestRun handles GET /v1/runs/latest with the full per-job report of the last run.
func (s *Server) latestRun(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.opts.Runs.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no run has finished yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toReportDTO(report)})
}

// triggerRun handles POST /v1/runs. It returns 202 with the run id or 409 while a run is active.
func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	runID, err := s.opts.Runs.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("trigger run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// listWebsites handles GET /v1/websites.
func (s *Server) listWebsites(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "website store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	sites, err := s.opts.Store.ListWebsites(ctx)
	if err != nil {
		s.logger.Error("list websites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list websites")
		return
	}
	if sites == nil {
		sites = []archive.Website{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"websites": sites})
}

type jobDTO struct {
	archive.JobResult
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

type reportDTO struct {
	RunID    string   `json:"run_id"`
	RunDate  string   `json:"run_date"`
	Archived int      `json:"archived"`
	Dead     int      `json:"dead"`
	Failed   int      `json:"failed"`
	Jobs     []jobDTO `json:"jobs"`
}

func toReportDTO(r archive.Report) reportDTO {
	out := reportDTO{
		RunID:    r.RunID,
		RunDate:  r.RunDate,
		Archived: r.Archived,
		Dead:     r.Dead,
		Failed:   r.Failed,
		Jobs:     make([]jobDTO, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		out.Jobs = append(out.Jobs, jobDTO{
			JobResult:  res,
			Error:      res.Error(),
			DurationMS: float64(res.Duration) / float64(time.Millisecond),
		})
	}
	return out
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

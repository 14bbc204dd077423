package archive

import (
	"net/url"
	"time"
)

// Website is a tracked URL together with its persisted liveness flag.
type Website struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	IsValid bool   `json:"is_valid"`
}

// IsStale reports whether the stored flag disagrees with a freshly observed one.
func (w Website) IsStale(isValid bool) bool {
	return w.IsValid != isValid
}

// Status classifies a single liveness check.
type Status int

// Supported check classifications.
const (
	StatusFailed Status = iota
	StatusValid
	StatusRedirected
	StatusDead
)

// String returns the lowercase label used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusRedirected:
		return "redirected"
	case StatusDead:
		return "dead"
	default:
		return "failed"
	}
}

// Outcome is the result of one check request. URL is the URL the check ended on; Err is only
// set for StatusFailed.
type Outcome struct {
	Status Status
	URL    *url.URL
	Err    error
}

// Valid builds a 2xx outcome.
func Valid(u *url.URL) Outcome { return Outcome{Status: StatusValid, URL: u} }

// Redirected builds a 3xx outcome.
func Redirected(u *url.URL) Outcome { return Outcome{Status: StatusRedirected, URL: u} }

// Dead builds an outcome for any other HTTP status.
func Dead(u *url.URL) Outcome { return Outcome{Status: StatusDead, URL: u} }

// Failed builds an outcome for a check that produced no HTTP response.
func Failed(err error) Outcome { return Outcome{Status: StatusFailed, Err: err} }

// Resolve maps the outcome to the URL to archive and the liveness flag to persist.
// Redirected sites count as live. The boolean ok is false for failed checks.
func (o Outcome) Resolve() (resolved *url.URL, isValid bool, ok bool) {
	switch o.Status {
	case StatusValid, StatusRedirected:
		return o.URL, true, true
	case StatusDead:
		return o.URL, false, true
	default:
		return nil, false, false
	}
}

// ExitStatus is how an external process terminated. Killed is set when the process was
// stopped because its context ended.
type ExitStatus struct {
	Code   int
	Killed bool
}

// Success reports a zero exit code.
func (e ExitStatus) Success() bool {
	return e.Code == 0 && !e.Killed
}

// JobState is the terminal state of one website's job.
type JobState string

// Supported job states.
const (
	JobArchived JobState = "archived"
	JobDead     JobState = "dead"
	JobFailed   JobState = "failed"
)

// JobResult is the structured outcome of one job.
type JobResult struct {
	RunID        string        `json:"run_id"`
	WebsiteID    string        `json:"website_id"`
	URL          string        `json:"url"`
	ResolvedURL  string        `json:"resolved_url,omitempty"`
	CheckStatus  string        `json:"check_status"`
	State        JobState      `json:"state"`
	Err          error         `json:"-"`
	StoreUpdated bool          `json:"store_updated"`
	ExitCode     int           `json:"exit_code"`
	Destination  string        `json:"destination,omitempty"`
	MirrorURI    string        `json:"mirror_uri,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// Error returns the failure text, or an empty string.
func (r JobResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Report aggregates the job results of one run.
type Report struct {
	RunID    string      `json:"run_id"`
	RunDate  string      `json:"run_date"`
	Archived int         `json:"archived"`
	Dead     int         `json:"dead"`
	Failed   int         `json:"failed"`
	Results  []JobResult `json:"results"`
}

// Add records a job result and updates the counters.
func (r *Report) Add(res JobResult) {
	switch res.State {
	case JobArchived:
		r.Archived++
	case JobDead:
		r.Dead++
	default:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// Total is the number of recorded jobs.
func (r Report) Total() int {
	return len(r.Results)
}

// RunSummary is the persisted record of one finished run.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	RunDate     string    `json:"run_date"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Archived    int       `json:"archived"`
	Dead        int       `json:"dead"`
	Failed      int       `json:"failed"`
	Interrupted bool      `json:"interrupted"`
}

// Summary condenses the report into a RunSummary.
func (r Report) Summary(started, finished time.Time, interrupted bool) RunSummary {
	return RunSummary{
		RunID:       r.RunID,
		RunDate:     r.RunDate,
		StartedAt:   started,
		FinishedAt:  finished,
		Archived:    r.Archived,
		Dead:        r.Dead,
		Failed:      r.Failed,
		Interrupted: interrupted,
	}
}

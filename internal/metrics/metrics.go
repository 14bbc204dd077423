// Package metrics exposes Prometheus collectors for the archive pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

// Recorder owns the archive collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	checksTotal      *prometheus.CounterVec
	storeWritesTotal *prometheus.CounterVec
	jobsTotal        *prometheus.CounterVec
	permitsInUse     prometheus.Gauge
	processesTotal   *prometheus.CounterVec
	processDuration  prometheus.Histogram
	runsTotal        prometheus.Counter
	lastRunTimestamp prometheus.Gauge
	lastRunJobs      *prometheus.GaugeVec
}

// NewRecorder registers the collectors against the provided registry.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_checks_total",
			Help: "Liveness checks partitioned by outcome.",
		}, []string{"outcome"}),
		storeWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_store_writes_total",
			Help: "Website status writes partitioned by result.",
		}, []string{"result"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_jobs_total",
			Help: "Completed jobs partitioned by final state.",
		}, []string{"state"}),
		permitsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archiver_worker_permits_in_use",
			Help: "Worker permits currently held by archive processes.",
		}),
		processesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_processes_total",
			Help: "Archive program invocations partitioned by result.",
		}, []string{"result"}),
		processDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "archiver_process_duration_seconds",
			Help:    "Wall time of archive program invocations.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_runs_total",
			Help: "Completed archive runs.",
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archiver_last_run_timestamp_seconds",
			Help: "Unix time the last archive run finished.",
		}),
		lastRunJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "archiver_last_run_jobs",
			Help: "Jobs of the last archive run partitioned by final state.",
		}, []string{"state"}),
	}
	for _, collector := range []prometheus.Collector{
		r.checksTotal,
		r.storeWritesTotal,
		r.jobsTotal,
		r.permitsInUse,
		r.processesTotal,
		r.processDuration,
		r.runsTotal,
		r.lastRunTimestamp,
		r.lastRunJobs,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register archive collector: %w", err)
		}
	}
	return r, nil
}

// Handler returns an http.Handler serving the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveCheck counts one check outcome.
func (r *Recorder) ObserveCheck(status archive.Status) {
	if r == nil {
		return
	}
	r.checksTotal.WithLabelValues(status.String()).Inc()
}

// ObserveStoreWrite counts one status write.
func (r *Recorder) ObserveStoreWrite(err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.storeWritesTotal.WithLabelValues(result).Inc()
}

// ObserveJob counts one finished job.
func (r *Recorder) ObserveJob(state archive.JobState) {
	if r == nil {
		return
	}
	r.jobsTotal.WithLabelValues(string(state)).Inc()
}

// PermitAcquired increments the permits gauge.
func (r *Recorder) PermitAcquired() {
	if r == nil {
		return
	}
	r.permitsInUse.Inc()
}

// PermitReleased decrements the permits gauge.
func (r *Recorder) PermitReleased() {
	if r == nil {
		return
	}
	r.permitsInUse.Dec()
}

// ObserveProcess records one program invocation.
func (r *Recorder) ObserveProcess(status archive.ExitStatus, err error, dur time.Duration) {
	if r == nil {
		return
	}
	r.processesTotal.WithLabelValues(processResult(status, err)).Inc()
	if err == nil {
		r.processDuration.Observe(dur.Seconds())
	}
}

func processResult(status archive.ExitStatus, err error) string {
	switch {
	case err != nil:
		return "spawn_error"
	case status.Killed:
		return "killed"
	case status.Success():
		return "success"
	default:
		return "nonzero"
	}
}

// ObserveRun records the totals of a finished run.
func (r *Recorder) ObserveRun(report archive.Report, finished time.Time) {
	if r == nil {
		return
	}
	r.runsTotal.Inc()
	r.lastRunTimestamp.Set(float64(finished.Unix()))
	r.lastRunJobs.WithLabelValues(string(archive.JobArchived)).Set(float64(report.Archived))
	r.lastRunJobs.WithLabelValues(string(archive.JobDead)).Set(float64(report.Dead))
	r.lastRunJobs.WithLabelValues(string(archive.JobFailed)).Set(float64(report.Failed))
}

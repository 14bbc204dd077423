package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

func TestRecorderCountsPipelineEvents(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObserveCheck(archive.StatusValid)
	r.ObserveCheck(archive.StatusValid)
	r.ObserveCheck(archive.StatusDead)
	r.ObserveStoreWrite(nil)
	r.ObserveStoreWrite(errors.New("db down"))
	r.ObserveJob(archive.JobArchived)
	r.ObserveProcess(archive.ExitStatus{Code: 0}, nil, time.Second)
	r.ObserveProcess(archive.ExitStatus{Code: 8}, nil, time.Second)
	r.ObserveProcess(archive.ExitStatus{Code: -1}, errors.New("no binary"), 0)
	r.PermitAcquired()
	r.PermitAcquired()
	r.PermitReleased()

	require.Equal(t, 2.0, testutil.ToFloat64(r.checksTotal.WithLabelValues("valid")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.checksTotal.WithLabelValues("dead")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.storeWritesTotal.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.storeWritesTotal.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.jobsTotal.WithLabelValues("archived")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.processesTotal.WithLabelValues("nonzero")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.processesTotal.WithLabelValues("spawn_error")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.permitsInUse))
}

func TestRecorderObserveRun(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	finished := time.Unix(1700000000, 0)
	r.ObserveRun(archive.Report{Archived: 3, Dead: 2, Failed: 1}, finished)

	require.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal))
	require.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.lastRunTimestamp))
	require.Equal(t, 3.0, testutil.ToFloat64(r.lastRunJobs.WithLabelValues("archived")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.lastRunJobs.WithLabelValues("failed")))
}

func TestRecorderDoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	require.Error(t, err)
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.ObserveCheck(archive.StatusDead)
	r.ObserveStoreWrite(nil)
	r.ObserveJob(archive.JobFailed)
	r.PermitAcquired()
	r.PermitReleased()
	r.ObserveProcess(archive.ExitStatus{}, nil, 0)
	r.ObserveRun(archive.Report{}, time.Now())
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)
	r.ObserveJob(archive.JobDead)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `archiver_jobs_total{state="dead"} 1`)
}

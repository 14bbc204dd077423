package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/website-archiver/internal/api"
	"github.com/JakeFAU/website-archiver/internal/archive"
	"github.com/JakeFAU/website-archiver/internal/clock/system"
	"github.com/JakeFAU/website-archiver/internal/config"
	pubmemory "github.com/JakeFAU/website-archiver/internal/publisher/memory"
	"github.com/JakeFAU/website-archiver/internal/storage/memory"
)

// fakeWget writes <host>/index.html into the working directory, like wget --mirror.
var fakeWget = []string{
	"sh", "-c",
	`host=$(echo "$1" | cut -d/ -f3); mkdir -p "$host" && echo archived > "$host/index.html"`,
	"sh", "{url}",
}

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	ok := func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}
	mux.HandleFunc("/ok", ok)
	mux.HandleFunc("/also-ok", ok)
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/slow", func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, sites []config.WebsiteSeed) config.Config {
	t.Helper()
	root := t.TempDir()
	return config.Config{
		Database: config.DatabaseConfig{Driver: "memory", Websites: sites},
		Checker: config.CheckerConfig{
			Timeout:         300 * time.Millisecond,
			QueueSize:       10,
			FollowRedirects: true,
			MaxRedirects:    5,
		},
		Archive: config.ArchiveConfig{
			Command:   fakeWget,
			OutputDir: filepath.Join(root, "archives"),
			WorkDir:   filepath.Join(root, "work"),
			KillGrace: time.Second,
		},
		Runner:   config.RunnerConfig{NumWorkers: 2},
		Schedule: config.ScheduleConfig{Cron: "@daily"},
		Server:   config.ServerConfig{Addr: "127.0.0.1:0"},
		Mirror:   config.MirrorConfig{Driver: "local", LocalDir: filepath.Join(root, "mirror"), Prefix: "web"},
		Logging:  config.LoggingConfig{Level: "info"},
	}
}

func newApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithClock(system.NewFixed(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))}, opts...)
	a, err := New(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a
}

func TestRunOnceEndToEnd(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	cfg := testConfig(t, []config.WebsiteSeed{
		{ID: "1", URL: srv.URL + "/ok", IsValid: true},
		{ID: "2", URL: srv.URL + "/missing", IsValid: true},
		{ID: "3", URL: srv.URL + "/slow", IsValid: true},
		{ID: "4", URL: srv.URL + "/also-ok", IsValid: true},
		{ID: "1", URL: srv.URL + "/ok", IsValid: true},
	})
	cfg.PubSub = config.PubSubConfig{ProjectID: "p", TopicID: "archive-results"}
	pub := pubmemory.New()
	a := newApp(t, cfg, WithPublisher(pub))

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)

	require.Equal(t, 4, report.Total())
	require.Equal(t, 2, report.Archived)
	require.Equal(t, 1, report.Dead)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, "2024-03-01", report.RunDate)

	// Websites 1 and 4 share a host but archive from their own work directories.
	host := strings.TrimPrefix(srv.URL, "http://")
	for _, id := range []string{"1", "4"} {
		require.FileExists(t, filepath.Join(cfg.Archive.OutputDir, id, "2024-03-01", host, "index.html"))
	}
	require.NoDirExists(t, filepath.Join(cfg.Archive.WorkDir, report.RunID))
	require.FileExists(t, filepath.Join(cfg.Mirror.LocalDir, "web", "1", "2024-03-01", host, "index.html"))

	store, ok := a.Store().(*memory.WebsiteStore)
	require.True(t, ok)
	require.Equal(t, 1, store.Writes())
	sites, err := store.ListWebsites(context.Background())
	require.NoError(t, err)
	for _, s := range sites {
		require.Equal(t, s.ID != "2", s.IsValid, "website %s", s.ID)
	}

	require.Len(t, pub.Topic("archive-results"), 4)

	last, ok := a.LastReport()
	require.True(t, ok)
	require.Equal(t, report.RunID, last.RunID)
	runs, err := a.History().ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 2, runs[0].Archived)
	require.False(t, runs[0].Interrupted)
}

func TestRunOnceHonoursNumRuns(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	cfg := testConfig(t, []config.WebsiteSeed{
		{ID: "1", URL: srv.URL + "/missing", IsValid: false},
		{ID: "2", URL: srv.URL + "/missing", IsValid: false},
		{ID: "3", URL: srv.URL + "/missing", IsValid: false},
	})
	cfg.Runner.NumRuns = 2
	a := newApp(t, cfg)

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Total())
	require.Equal(t, 2, report.Dead)
}

func TestRunOnceInterrupted(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	cfg := testConfig(t, []config.WebsiteSeed{{ID: "1", URL: srv.URL + "/ok", IsValid: true}})
	cfg.Archive.Command = []string{"sleep", "10"}
	a := newApp(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err := a.RunOnce(ctx)
	require.True(t, IsInterrupted(err))
	require.Less(t, time.Since(started), 5*time.Second)

	runs, err := a.History().ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.True(t, runs[0].Interrupted)
}

func TestTriggerRejectsOverlap(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	cfg := testConfig(t, []config.WebsiteSeed{{ID: "1", URL: srv.URL + "/slow", IsValid: true}})
	a := newApp(t, cfg, WithStore(
		memory.NewWebsiteStore([]archive.Website{{ID: "1", URL: srv.URL + "/slow", IsValid: true}}),
		memory.NewRunStore(),
	))

	runID, err := a.Trigger(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	_, err = a.Trigger(context.Background())
	require.ErrorIs(t, err, api.ErrRunInProgress)
	_, err = a.RunOnce(context.Background())
	require.ErrorIs(t, err, api.ErrRunInProgress)

	require.Eventually(t, func() bool {
		last, ok := a.LastReport()
		return ok && last.RunID == runID
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServerServesLatestRun(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	cfg := testConfig(t, []config.WebsiteSeed{{ID: "1", URL: srv.URL + "/missing", IsValid: true}})
	a := newApp(t, cfg)
	_, err := a.RunOnce(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"dead":1`)

	rec = httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `archiver_runs_total 1`)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, nil)
	cfg.Database.Driver = "sqlite"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = testConfig(t, []config.WebsiteSeed{{ID: "1", URL: "https://example.com"}})
	cfg.Mirror.Driver = "s3"
	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestSelectWebsites(t *testing.T) {
	t.Parallel()

	sites := []archive.Website{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}}
	require.Equal(t, []archive.Website{{ID: "a"}, {ID: "b"}, {ID: "c"}}, selectWebsites(sites, 0, zap.NewNop()))
	require.Equal(t, []archive.Website{{ID: "a"}, {ID: "b"}}, selectWebsites(sites, 2, zap.NewNop()))
}

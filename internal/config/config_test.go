package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ARCHIVER_DATABASE_URL", "postgres://localhost/archiver")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "Website", cfg.Database.Table)
	require.Equal(t, "postgres://localhost/archiver", cfg.Database.URL)
	require.Equal(t, 10*time.Second, cfg.Checker.Timeout)
	require.Equal(t, 100, cfg.Checker.QueueSize)
	require.Equal(t, 4, cfg.Runner.NumWorkers)
	require.Equal(t, "wget", cfg.Archive.Command[0])
	require.Equal(t, "{url}", cfg.Archive.Command[len(cfg.Archive.Command)-1])
	require.Equal(t, "none", cfg.Mirror.Driver)
	require.False(t, cfg.PubSub.Enabled())
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.toml")
	body := `
[database]
driver = "memory"

[[database.websites]]
id = "1"
url = "https://example.com"
is_valid = true

[[database.websites]]
id = "2"
url = "https://gone.example.com"

[checker]
timeout = "3s"
queue_size = 10
follow_redirects = false

[archive]
command = ["httrack", "{url}", "-O", "."]
output_dir = "/srv/archives"
include_path_segments = true
kill_grace = "1s"

[runner]
num_workers = 8
num_threads = 2
num_runs = 50

[schedule]
cron = "@daily"

[pubsub]
project_id = "proj"
topic_id = "archive-results"

[mirror]
driver = "gcs"
gcs_bucket = "snapshots"
prefix = "web"

[logging]
development = false
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("ARCHIVER_RUNNER_NUM_WORKERS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Database.Driver)
	require.Len(t, cfg.Database.Websites, 2)
	require.Equal(t, WebsiteSeed{ID: "1", URL: "https://example.com", IsValid: true}, cfg.Database.Websites[0])
	require.False(t, cfg.Database.Websites[1].IsValid)
	require.Equal(t, 3*time.Second, cfg.Checker.Timeout)
	require.False(t, cfg.Checker.FollowRedirects)
	require.Equal(t, []string{"httrack", "{url}", "-O", "."}, cfg.Archive.Command)
	require.True(t, cfg.Archive.IncludePathSegments)
	require.Equal(t, time.Second, cfg.Archive.KillGrace)
	require.Equal(t, 3, cfg.Runner.NumWorkers, "environment overrides the file")
	require.Equal(t, 50, cfg.Runner.NumRuns)
	require.Equal(t, "@daily", cfg.Schedule.Cron)
	require.True(t, cfg.PubSub.Enabled())
	require.Equal(t, "snapshots", cfg.Mirror.GCSBucket)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Database:  DatabaseConfig{Driver: "postgres", URL: "postgres://db", Table: "Website"},
			Checker:   CheckerConfig{Timeout: time.Second, QueueSize: 1},
			Archive:   ArchiveConfig{Command: DefaultCommand(), OutputDir: "out"},
			Runner:    RunnerConfig{NumWorkers: 1},
			Schedule:  ScheduleConfig{Cron: "0 3 * * *"},
			Server:    ServerConfig{Addr: ":8080"},
			Mirror:    MirrorConfig{Driver: "none"},
			Logging:   LoggingConfig{Level: "info"},
			Telemetry: TelemetryConfig{ServiceName: "website-archiver", SampleRatio: 1, Exporter: "none"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero workers", func(c *Config) { c.Runner.NumWorkers = 0 }, "runner.num_workers"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"bad table", func(c *Config) { c.Database.Table = "Web site" }, "database.table"},
		{"memory without websites", func(c *Config) { c.Database.Driver = "memory" }, "database.websites"},
		{"bad seed url", func(c *Config) {
			c.Database.Driver = "memory"
			c.Database.Websites = []WebsiteSeed{{ID: "1", URL: "not a url"}}
		}, "database.websites[0].url"},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "every day" }, "schedule.cron"},
		{"topic without project", func(c *Config) { c.PubSub.TopicID = "t" }, "pubsub.project_id"},
		{"gcs mirror without bucket", func(c *Config) { c.Mirror.Driver = "gcs" }, "mirror.gcs_bucket"},
		{"empty program", func(c *Config) { c.Archive.Command = []string{""} }, "archive.command"},
		{"zero timeout", func(c *Config) { c.Checker.Timeout = 0 }, "checker.timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"sample ratio above one", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, "telemetry.sample_ratio"},
		{"unknown exporter", func(c *Config) { c.Telemetry.Exporter = "jaeger" }, "telemetry.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

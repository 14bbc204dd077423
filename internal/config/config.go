// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "archive.toml"

// EnvPrefix prefixes every environment override, e.g. ARCHIVER_RUNNER_NUM_WORKERS=8.
const EnvPrefix = "ARCHIVER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Checker   CheckerConfig   `mapstructure:"checker"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Server    ServerConfig    `mapstructure:"server"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// DatabaseConfig selects and configures the website store.
type DatabaseConfig struct {
	Driver   string        `mapstructure:"driver" validate:"oneof=postgres memory"`
	URL      string        `mapstructure:"url" validate:"required_if=Driver postgres"`
	Table    string        `mapstructure:"table" validate:"omitempty,identifier"`
	RunTable string        `mapstructure:"run_table" validate:"omitempty,identifier"`
	MaxConns int32         `mapstructure:"max_conns" validate:"gte=0"`
	Websites []WebsiteSeed `mapstructure:"websites" validate:"dive"`
}

// WebsiteSeed is one website row for the memory driver.
type WebsiteSeed struct {
	ID      string `mapstructure:"id" validate:"required"`
	URL     string `mapstructure:"url" validate:"required,url"`
	IsValid bool   `mapstructure:"is_valid"`
}

// CheckerConfig controls the liveness check client.
type CheckerConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	QueueSize       int           `mapstructure:"queue_size" validate:"gt=0"`
	UserAgent       string        `mapstructure:"user_agent"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects" validate:"gte=0"`
}

// ArchiveConfig describes the external archiving program and where its output goes.
type ArchiveConfig struct {
	// Command is the program followed by its argument template; {url} is replaced per site.
	Command             []string      `mapstructure:"command"`
	OutputDir           string        `mapstructure:"output_dir" validate:"required"`
	WorkDir             string        `mapstructure:"work_dir"`
	IncludePathSegments bool          `mapstructure:"include_path_segments"`
	KillGrace           time.Duration `mapstructure:"kill_grace" validate:"gte=0"`
}

// RunnerConfig sizes a run.
type RunnerConfig struct {
	NumWorkers int `mapstructure:"num_workers" validate:"gt=0"`
	NumThreads int `mapstructure:"num_threads" validate:"gte=0"`
	// NumRuns caps how many websites one run processes; 0 means all.
	NumRuns int `mapstructure:"num_runs" validate:"gte=0"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron" validate:"required,cron"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// ServerConfig controls the status server.
type ServerConfig struct {
	Addr   string `mapstructure:"addr" validate:"required"`
	APIKey string `mapstructure:"api_key"`
}

// PubSubConfig enables per-job result notifications when TopicID is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id" validate:"required_with=TopicID"`
	TopicID   string `mapstructure:"topic_id"`
}

// Enabled reports whether results are published.
func (p PubSubConfig) Enabled() bool {
	return p.TopicID != ""
}

// MirrorConfig selects where relocated archives are copied to.
type MirrorConfig struct {
	Driver    string `mapstructure:"driver" validate:"oneof=none gcs local"`
	GCSBucket string `mapstructure:"gcs_bucket" validate:"required_if=Driver gcs"`
	LocalDir  string `mapstructure:"local_dir" validate:"required_if=Driver local"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig configures zap and the optional rotating log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups  int    `mapstructure:"max_backups" validate:"gte=0"`
}

// TelemetryConfig configures job tracing. With exporter "none" spans only feed trace ids into
// logs and Pub/Sub attributes; "log" also writes every finished span to the logger.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name" validate:"required"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	Exporter    string  `mapstructure:"exporter" validate:"oneof=none log"`
}

// Load builds a Config from defaults, an optional file and the environment. With an empty
// path, DefaultFile is used when it exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Archive.Command) == 0 {
		cfg.Archive.Command = DefaultCommand()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultCommand mirrors a site into a <host> directory of the working directory.
func DefaultCommand() []string {
	return []string{"wget", "--mirror", "--page-requisites", "--convert-links", "--adjust-extension", "--no-parent", "--quiet", "{url}"}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.table", "Website")
	v.SetDefault("database.run_table", "archive_runs")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("checker.timeout", 10*time.Second)
	v.SetDefault("checker.queue_size", 100)
	v.SetDefault("checker.user_agent", "website-archiver/1.0")
	v.SetDefault("checker.follow_redirects", true)
	v.SetDefault("checker.max_redirects", 10)
	v.SetDefault("archive.output_dir", "archives")
	v.SetDefault("archive.work_dir", ".")
	v.SetDefault("archive.include_path_segments", false)
	v.SetDefault("archive.kill_grace", 5*time.Second)
	v.SetDefault("runner.num_workers", 4)
	v.SetDefault("runner.num_threads", 0)
	v.SetDefault("runner.num_runs", 0)
	v.SetDefault("schedule.cron", "0 3 * * *")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.api_key", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_id", "")
	v.SetDefault("mirror.driver", "none")
	v.SetDefault("mirror.gcs_bucket", "")
	v.SetDefault("mirror.local_dir", "")
	v.SetDefault("mirror.prefix", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("telemetry.service_name", "website-archiver")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.exporter", "none")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(c.Archive.Command) == 0 || strings.TrimSpace(c.Archive.Command[0]) == "" {
		return fmt.Errorf("invalid config: archive.command must name a program")
	}
	if c.Database.Driver == "memory" && len(c.Database.Websites) == 0 {
		return fmt.Errorf("invalid config: database.websites must list at least one website for the memory driver")
	}
	return nil
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifier.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cronParser.Parse(fl.Field().String())
		return err == nil
	})
	return validate
}

var (
	identifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// fieldPath turns "Config.runner.num_workers" into "runner.num_workers".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

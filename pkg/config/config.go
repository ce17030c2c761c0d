package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration shared by the qaflow binaries.
type Config struct {
	Addr              string   `env:"ADDR,default=:8080"`
	DBDSN             string   `env:"DB_DSN"`
	NATSURL           string   `env:"NATS_URL"`
	OTLPEndpoint      string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	AllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RateLimit         int      `env:"HTTP_RATE_LIMIT,default=100"`
	LogLevel          string   `env:"LOG_LEVEL,default=info"`
	LogFormat         string   `env:"LOG_FORMAT,default=json"`
	TimelineRulesFile string   `env:"TIMELINE_RULES_FILE"`

	Poll     PollConfig     `env:",prefix=POLL_"`
	Archive  ArchiveConfig  `env:",prefix=ARCHIVE_"`
	Report   ReportConfig   `env:",prefix=REPORT_"`
	Executor ExecutorConfig `env:",prefix=TEST_EXECUTOR_"`
	S3       S3Config       `env:",prefix=S3_"`
}

// PollConfig controls the execution poller.
type PollConfig struct {
	Interval time.Duration `env:"INTERVAL,default=10s"`
	Timeout  time.Duration `env:"TIMEOUT,default=30m"`
}

// ArchiveConfig bounds archive downloads.
type ArchiveConfig struct {
	Timeout       time.Duration `env:"TIMEOUT,default=2m"`
	MaxBytes      int64         `env:"MAX_BYTES,default=268435456"`
	MaxEntryBytes int64         `env:"MAX_ENTRY_BYTES,default=33554432"`
	TempDir       string        `env:"TEMP_DIR"`
}

// ReportConfig controls report generation.
type ReportConfig struct {
	Title     string `env:"TITLE,default=Test Execution Report"`
	WrapWidth int    `env:"WRAP_WIDTH,default=80"`
	Upload    bool   `env:"UPLOAD,default=false"`
}

// ExecutorConfig points at the remote test executor.
type ExecutorConfig struct {
	URL     string        `env:"URL"`
	Timeout time.Duration `env:"TIMEOUT,default=30s"`
}

// S3Config configures the object store holding artifact archives and reports.
type S3Config struct {
	Endpoint       string        `env:"ENDPOINT"`
	AccessKey      string        `env:"ACCESS_KEY"`
	SecretKey      string        `env:"SECRET_KEY"`
	Region         string        `env:"REGION,default=us-east-1"`
	Bucket         string        `env:"BUCKET"`
	DisableTLS     bool          `env:"DISABLE_TLS,default=false"`
	ForcePathStyle bool          `env:"FORCE_PATH_STYLE,default=true"`
	PresignTTL     time.Duration `env:"PRESIGN_TTL,default=15m"`
}

// Enabled reports whether enough settings are present to build a client.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && c.Bucket != ""
}

// Load returns a Config populated from the process environment.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith returns a Config populated from l.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Poll.Timeout < c.Poll.Interval {
		errs = append(errs, errors.New("POLL_TIMEOUT must not be shorter than POLL_INTERVAL"))
	}
	if c.Archive.MaxBytes <= 0 {
		errs = append(errs, errors.New("ARCHIVE_MAX_BYTES must be positive"))
	}
	if c.Report.WrapWidth <= 0 {
		errs = append(errs, errors.New("REPORT_WRAP_WIDTH must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("HTTP_RATE_LIMIT must not be negative"))
	}
	if c.Executor.URL != "" {
		u, err := url.Parse(c.Executor.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("TEST_EXECUTOR_URL %q is not an http(s) URL", c.Executor.URL))
		}
	}
	if c.S3.Endpoint != "" && (c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		errs = append(errs, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required with S3_ENDPOINT"))
	}
	return errors.Join(errs...)
}

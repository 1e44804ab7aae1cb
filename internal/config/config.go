// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/fairyhunter13/browndog-tests/internal/poll"
)

// Config holds all harness configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`

	// Brown Dog endpoint and basic-auth account used to mint keys.
	Host     string `env:"BD_HOST" envDefault:"http://localhost:8080"`
	Username string `env:"BD_USERNAME" envDefault:"alice"`
	Password string `env:"BD_PASSWORD" envDefault:"fred"`

	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	ProcessingTimeout time.Duration `env:"PROCESSING_TIMEOUT" envDefault:"300s"`
	DownloadTimeout   time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"90s"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	DownloadChunkSize int           `env:"DOWNLOAD_CHUNK_SIZE" envDefault:"32768"`
	UploadBlockSize   int           `env:"UPLOAD_BLOCK_SIZE" envDefault:"1048576"`
	ScratchDir        string        `env:"SCRATCH_DIR"`
	TestdataDir       string        `env:"TESTDATA_DIR" envDefault:"testdata"`

	// Report tool
	ReportServer    string        `env:"REPORT_SERVER" envDefault:"PROD"`
	JUnitXML        string        `env:"JUNIT_XML" envDefault:"results.xml"`
	MailServer      string        `env:"MAIL_SERVER"`
	MailFrom        string        `env:"MAIL_FROM" envDefault:"devnull@ncsa.illinois.edu"`
	WatchersFile    string        `env:"WATCHERS_FILE" envDefault:"watchers.yml"`
	DBURL           string        `env:"DB_URL"`
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic      string        `env:"KAFKA_TOPIC" envDefault:"browndog-test-runs"`
	RedisURL        string        `env:"REDIS_URL"`
	ReportDedupeTTL time.Duration `env:"REPORT_DEDUPE_TTL" envDefault:"24h"`

	// Results API
	Port                  int           `env:"PORT" envDefault:"8080"`
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"browndog-tests"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	cfg.ReportServer = strings.ToUpper(cfg.ReportServer)
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// Scratch returns the directory for downloaded artifacts, defaulting to the OS temp dir.
func (c Config) Scratch() string {
	if c.ScratchDir != "" {
		return c.ScratchDir
	}
	return os.TempDir()
}

// PollSettings returns the retry interval and the readiness deadline for
// conversions and extractions. In test environments the values are shortened
// so suites against a local fake finish quickly.
func (c Config) PollSettings() (interval, processing, download time.Duration) {
	if c.IsTest() {
		return 10 * time.Millisecond, 2 * time.Second, 2 * time.Second
	}
	return c.PollInterval, c.ProcessingTimeout, c.DownloadTimeout
}

// ProcessingPolicy bounds the wait for a conversion or extraction result.
func (c Config) ProcessingPolicy() poll.Policy {
	interval, processing, _ := c.PollSettings()
	return poll.Policy{Interval: interval, Timeout: processing}
}

// DownloadPolicy bounds the 404 retries of a result download.
func (c Config) DownloadPolicy() poll.Policy {
	interval, _, download := c.PollSettings()
	return poll.Policy{Interval: interval, Timeout: download}
}

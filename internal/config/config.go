package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all suite configuration
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"` // console, json

	Suite   SuiteConfig
	Portal  PortalConfig
	Browser BrowserConfig
	Report  ReportConfig

	// Loaded with their own prefixes, see loadDatabases
	DB1 DatabaseConfig `ignored:"true"`
	DB2 DatabaseConfig `ignored:"true"`
	DB  DatabaseOptions

	Redis   RedisConfig
	Storage StorageConfig
	Metrics MetricsConfig
	Server  ServerConfig
}

// SuiteConfig holds run orchestration settings
type SuiteConfig struct {
	ReportsDir            string        `envconfig:"SUITE_REPORTS_DIR" default:"execution_reports"`
	KeepRuns              int           `envconfig:"SUITE_KEEP_RUNS" default:"10"`
	MaxAttempts           int           `envconfig:"SUITE_MAX_ATTEMPTS" default:"2"`
	TestTimeout           time.Duration `envconfig:"SUITE_TEST_TIMEOUT" default:"10m"`
	DataFile              string        `envconfig:"SUITE_DATA_FILE" default:"suite-data.json"`
	FallbackScreenshotDir string        `envconfig:"SUITE_FALLBACK_SCREENSHOT_DIR" default:"screenshots"`
	FailFastBackend       string        `envconfig:"SUITE_FAILFAST_BACKEND" default:"local"` // local, redis
	FailFastSession       string        `envconfig:"SUITE_FAILFAST_SESSION" default:""`
	FailFastSessionTTL    time.Duration `envconfig:"SUITE_FAILFAST_SESSION_TTL" default:"6h"`
	DisableFailFast       bool          `envconfig:"SUITE_DISABLE_FAILFAST" default:"false"`
}

// PortalConfig holds credentials and entry points of the portals under test
type PortalConfig struct {
	Username   string `envconfig:"TEST_USERNAME"`
	Password   string `envconfig:"TEST_PASSWORD"`
	Portal1URL string `envconfig:"PORTAL1_BASE_URL"`
	Portal2URL string `envconfig:"PORTAL2_BASE_URL"`
}

// BrowserConfig holds browser automation settings
type BrowserConfig struct {
	Names    []string `envconfig:"BROWSER_NAMES" default:"chromium"`
	Headless bool     `envconfig:"BROWSER_HEADLESS" default:"false"`
	SlowMo   float64  `envconfig:"BROWSER_SLOW_MO_MS" default:"0"`
	Install  bool     `envconfig:"BROWSER_INSTALL" default:"true"`

	OptimisticTimeout time.Duration `envconfig:"BROWSER_OPTIMISTIC_TIMEOUT" default:"5s"`
	VisibleTimeout    time.Duration `envconfig:"BROWSER_VISIBLE_TIMEOUT" default:"20s"`
	OverlayTimeout    time.Duration `envconfig:"BROWSER_OVERLAY_TIMEOUT" default:"120s"`
	ProcessingTimeout time.Duration `envconfig:"BROWSER_PROCESSING_TIMEOUT" default:"200s"`
	NavigationTimeout time.Duration `envconfig:"BROWSER_NAVIGATION_TIMEOUT" default:"60s"`
}

// ReportConfig holds report rendering settings
type ReportConfig struct {
	FetchAssets  bool          `envconfig:"REPORT_FETCH_ASSETS" default:"true"`
	CSSURL       string        `envconfig:"REPORT_CSS_URL" default:"https://cdn.jsdelivr.net/npm/bootstrap@5.3.2/dist/css/bootstrap.min.css"`
	JSURL        string        `envconfig:"REPORT_JS_URL" default:"https://cdn.jsdelivr.net/npm/bootstrap@5.3.2/dist/js/bootstrap.bundle.min.js"`
	AssetTimeout time.Duration `envconfig:"REPORT_ASSET_TIMEOUT" default:"10s"`
	Title        string        `envconfig:"REPORT_TITLE" default:"Portal Suite Report"`
	SourceExt    string        `envconfig:"ARTIFACT_SOURCE_EXT" default:".py"`
	WriteJSON    bool          `envconfig:"REPORT_WRITE_JSON" default:"true"`
}

// DatabaseConfig holds one fixture database connection. Keys are read with
// a DB1_ or DB2_ prefix.
type DatabaseConfig struct {
	Driver   string `split_words:"true" default:"sqlserver"` // sqlserver, postgres
	Server   string `split_words:"true"`
	Port     int    `split_words:"true"`
	Database string `split_words:"true"`
	Username string `split_words:"true"`
	Password string `split_words:"true"`
}

// Configured reports whether enough is set to open a connection
func (c DatabaseConfig) Configured() bool {
	return c.Server != "" && c.Database != ""
}

// DatabaseOptions holds settings shared by every fixture database
type DatabaseOptions struct {
	TrustServerCert   bool          `envconfig:"DB_TRUST_SERVER_CERT" default:"true"`
	TrustedConnection bool          `envconfig:"DB_TRUSTED_CONNECTION" default:"false"`
	ConnectTimeout    time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"30s"`
	PageSize          int           `envconfig:"DB_PAGE_SIZE" default:"500"`
	SSLMode           string        `envconfig:"DB_SSL_MODE" default:"disable"`
}

// DSN returns the driver-specific connection string
func (c DatabaseConfig) DSN(opts DatabaseOptions) string {
	switch c.Driver {
	case "postgres":
		port := c.Port
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
			c.Server, port, c.Username, c.Password, c.Database, opts.SSLMode, int(opts.ConnectTimeout.Seconds()),
		)
	default:
		q := url.Values{}
		q.Set("database", c.Database)
		q.Set("connection timeout", fmt.Sprintf("%d", int(opts.ConnectTimeout.Seconds())))
		if opts.TrustServerCert {
			q.Set("TrustServerCertificate", "true")
		}
		u := &url.URL{Scheme: "sqlserver", Host: c.Server, RawQuery: q.Encode()}
		if c.Port != 0 {
			u.Host = fmt.Sprintf("%s:%d", c.Server, c.Port)
		}
		if opts.TrustedConnection {
			q.Set("trusted_connection", "yes")
			u.RawQuery = q.Encode()
		} else {
			u.User = url.UserPassword(c.Username, c.Password)
		}
		return u.String()
	}
}

// RedisConfig holds Redis settings for the shared fail-fast flag
type RedisConfig struct {
	Host        string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port        int           `envconfig:"REDIS_PORT" default:"6379"`
	Password    string        `envconfig:"REDIS_PASSWORD" default:""`
	DB          int           `envconfig:"REDIS_DB" default:"0"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds object storage settings for report publishing
type StorageConfig struct {
	Enabled    bool   `envconfig:"STORAGE_ENABLED" default:"false"`
	Endpoint   string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey  string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey  string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket     string `envconfig:"STORAGE_BUCKET" default:"portal-reports"`
	UseSSL     bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	ReportPath string `envconfig:"STORAGE_REPORT_PATH" default:"reports"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	PushgatewayURL string `envconfig:"METRICS_PUSHGATEWAY_URL" default:""`
	Job            string `envconfig:"METRICS_JOB" default:"portalsuite"`
}

// ServerConfig holds settings of the report browser
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	RateLimitRPS    float64       `envconfig:"SERVER_RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst  int           `envconfig:"SERVER_RATE_LIMIT_BURST" default:"40"`
	CORSEnabled     bool          `envconfig:"SERVER_CORS_ENABLED" default:"true"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	if err := cfg.loadDatabases(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) loadDatabases() error {
	if err := envconfig.Process("DB1", &c.DB1); err != nil {
		return fmt.Errorf("processing DB1 config: %w", err)
	}
	if err := envconfig.Process("DB2", &c.DB2); err != nil {
		return fmt.Errorf("processing DB2 config: %w", err)
	}
	return nil
}

// Validate checks settings that are always required
func (c *Config) Validate() error {
	var errs []string

	if c.Suite.KeepRuns < 1 {
		errs = append(errs, "SUITE_KEEP_RUNS must be at least 1")
	}
	if c.Suite.MaxAttempts < 1 {
		errs = append(errs, "SUITE_MAX_ATTEMPTS must be at least 1")
	}
	switch c.Suite.FailFastBackend {
	case "local", "redis":
	default:
		errs = append(errs, fmt.Sprintf("SUITE_FAILFAST_BACKEND must be local or redis, got %q", c.Suite.FailFastBackend))
	}
	for _, db := range []struct {
		prefix string
		cfg    DatabaseConfig
	}{{"DB1", c.DB1}, {"DB2", c.DB2}} {
		if db.cfg.Driver != "sqlserver" && db.cfg.Driver != "postgres" {
			errs = append(errs, fmt.Sprintf("%s_DRIVER must be sqlserver or postgres, got %q", db.prefix, db.cfg.Driver))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MissingPortalVars returns the names of unset variables needed to drive
// the portals, in a fixed order.
func (c *Config) MissingPortalVars() []string {
	var missing []string
	for _, v := range []struct {
		name  string
		value string
	}{
		{"TEST_USERNAME", c.Portal.Username},
		{"TEST_PASSWORD", c.Portal.Password},
		{"PORTAL1_BASE_URL", c.Portal.Portal1URL},
		{"PORTAL2_BASE_URL", c.Portal.Portal2URL},
	} {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	return missing
}

// MissingDatabaseVars returns the names of unset variables needed for
// fixture lookups.
func (c *Config) MissingDatabaseVars() []string {
	var missing []string
	for _, db := range []struct {
		prefix string
		cfg    DatabaseConfig
	}{{"DB1", c.DB1}, {"DB2", c.DB2}} {
		if db.cfg.Server == "" {
			missing = append(missing, db.prefix+"_SERVER")
		}
		if db.cfg.Database == "" {
			missing = append(missing, db.prefix+"_DATABASE")
		}
		if !c.DB.TrustedConnection && db.cfg.Username == "" {
			missing = append(missing, db.prefix+"_USERNAME")
		}
	}
	return missing
}

// GetLogLevel returns the level to build the logger with
func (c *Config) GetLogLevel(verbose bool) string {
	if verbose {
		return "debug"
	}
	return c.LogLevel
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LUNARCAL_LISTEN.
const EnvPrefix = "LUNARCAL"

// StorageConfig selects the event store backend.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver      string `yaml:"driver" json:"driver"`
	SQLitePath  string `yaml:"sqlite_path" json:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty" json:"postgres_dsn,omitempty"`
}

// NotifyConfig controls where fired reminders go. The log and the in-memory
// inbox are always on.
type NotifyConfig struct {
	// WebhookURL, if set, receives every notification as a JSON POST.
	WebhookURL string `yaml:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	// InboxSize is how many notifications GET /api/notifications keeps.
	InboxSize int `yaml:"inbox_size" json:"inbox_size"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
// PasswordBcrypt takes precedence over Password when both are set.
type BasicAuthConfig struct {
	Username       string `yaml:"username" json:"username"`
	Password       string `yaml:"password,omitempty" json:"password,omitempty"`
	PasswordBcrypt string `yaml:"password_bcrypt,omitempty" json:"password_bcrypt,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	Notify  NotifyConfig  `yaml:"notify" json:"notify"`

	// Reconcile is a cron-style schedule string (e.g. "* * * * *") on which
	// the server re-reads the store and re-arms reminders changed by other
	// writers such as the CLI.
	Reconcile string `yaml:"reconcile" json:"reconcile"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format" json:"log_format"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen     = "127.0.0.1:8080"
	defaultSQLitePath = "./var/lunarcal.db"
	defaultInboxSize  = 100
	defaultReconcile  = "* * * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: defaultListen,
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: defaultSQLitePath,
		},
		Notify:    NotifyConfig{InboxSize: defaultInboxSize},
		Reconcile: defaultReconcile,
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = defaultSQLitePath
	}

	if c.Notify.InboxSize <= 0 {
		c.Notify.InboxSize = defaultInboxSize
	}

	c.Reconcile = strings.TrimSpace(c.Reconcile)
	if c.Reconcile == "" {
		c.Reconcile = defaultReconcile
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		c.LogFormat = "console"
	}

	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		c.BasicAuth = nil
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unsupported storage.driver %q", c.Storage.Driver)
	}
	if _, err := cron.ParseStandard(c.Reconcile); err != nil {
		return fmt.Errorf("config: reconcile %q: %w", c.Reconcile, err)
	}
	if a := c.BasicAuth; a != nil && a.Password == "" && a.PasswordBcrypt == "" {
		return errors.New("config: basic_auth needs password or password_bcrypt")
	}
	return nil
}

// envOverrides mirrors the settings that may come from the environment.
// Empty values leave the file setting alone.
type envOverrides struct {
	Listen             string `envconfig:"LISTEN"`
	StorageDriver      string `envconfig:"STORAGE_DRIVER"`
	SQLitePath         string `envconfig:"SQLITE_PATH"`
	PostgresDSN        string `envconfig:"POSTGRES_DSN"`
	WebhookURL         string `envconfig:"WEBHOOK_URL"`
	InboxSize          int    `envconfig:"INBOX_SIZE"`
	Reconcile          string `envconfig:"RECONCILE"`
	LogLevel           string `envconfig:"LOG_LEVEL"`
	LogFormat          string `envconfig:"LOG_FORMAT"`
	AuthUsername       string `envconfig:"AUTH_USERNAME"`
	AuthPassword       string `envconfig:"AUTH_PASSWORD"`
	AuthPasswordBcrypt string `envconfig:"AUTH_PASSWORD_BCRYPT"`
}

// ApplyEnv overlays LUNARCAL_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Listen, o.Listen)
	set(&c.Storage.Driver, o.StorageDriver)
	set(&c.Storage.SQLitePath, o.SQLitePath)
	set(&c.Storage.PostgresDSN, o.PostgresDSN)
	set(&c.Notify.WebhookURL, o.WebhookURL)
	if o.InboxSize > 0 {
		c.Notify.InboxSize = o.InboxSize
	}
	set(&c.Reconcile, o.Reconcile)
	set(&c.LogLevel, o.LogLevel)
	set(&c.LogFormat, o.LogFormat)

	if o.AuthUsername != "" {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		c.BasicAuth.Username = o.AuthUsername
	}
	if c.BasicAuth != nil {
		set(&c.BasicAuth.Password, o.AuthPassword)
		set(&c.BasicAuth.PasswordBcrypt, o.AuthPasswordBcrypt)
	}

	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path and applies
// environment overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are never written back to the file.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".lunarcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

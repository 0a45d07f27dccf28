package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.yaml.in/yaml/v3"

	"github.com/vadimtrunov/torrentdeck/internal/core"
)

// Defaults applied by setDefaults.
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultPollInterval   = "30s"
	DefaultBackendTimeout = 10 * time.Second
	DefaultAPIListen      = "127.0.0.1:8080"
)

// Config represents the main application configuration
type Config struct {
	// Application settings
	App AppConfig `yaml:"app"`

	// Torrent daemons, polled independently
	Backends []BackendConfig `yaml:"backends"`

	// HTTP JSON API
	API *APIConfig `yaml:"api,omitempty"`

	// Completion notifications
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	LogLevel     string `yaml:"log_level"`     // "debug", "info", "warn", "error"
	LogFormat    string `yaml:"log_format"`    // "json" or "text"
	LogFile      string `yaml:"log_file"`      // optional rotated log file
	PollInterval string `yaml:"poll_interval"` // duration ("30s") or cron expression ("*/5 * * * *")
}

// BackendConfig describes one torrent daemon instance
type BackendConfig struct {
	Name              string        `yaml:"name"`
	Type              string        `yaml:"type"`              // rtorrent, transmission, qbittorrent, restapi
	URL               string        `yaml:"url,omitempty"`     // HTTP backends
	Address           string        `yaml:"address,omitempty"` // rtorrent: host:port or unix socket path
	Username          string        `yaml:"username,omitempty"`
	Password          string        `yaml:"password,omitempty"`
	APIToken          string        `yaml:"api_token,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	RequestsPerSecond int           `yaml:"requests_per_second,omitempty"`
	MaxIdlePolls      int           `yaml:"max_idle_polls,omitempty"`
}

// Network returns "unix" for socket paths and "tcp" otherwise.
func (b BackendConfig) Network() string {
	if strings.HasPrefix(b.Address, "/") || strings.HasPrefix(b.Address, "./") {
		return "unix"
	}
	return "tcp"
}

// ConnectionEquals reports whether two configurations would open the same
// session. Name changes and tuning knobs are not connection settings.
func (b BackendConfig) ConnectionEquals(o BackendConfig) bool {
	return b.Type == o.Type &&
		b.URL == o.URL &&
		b.Address == o.Address &&
		b.Username == o.Username &&
		b.Password == o.Password &&
		b.APIToken == o.APIToken &&
		b.Timeout == o.Timeout &&
		b.RequestsPerSecond == o.RequestsPerSecond &&
		b.MaxIdlePolls == o.MaxIdlePolls
}

// APIConfig holds the HTTP API settings
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	AllowedUserIDs []int64 `yaml:"allowed_user_ids,omitempty"` // bot users and notification recipients; empty allows anyone
}

var backendNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Load loads configuration from a YAML file with environment variable overrides
func Load(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// validateConfigPath checks that path names a regular, readable file.
func validateConfigPath(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file not found: %s", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables
func (c *Config) applyEnvOverrides() {
	// App
	if v := os.Getenv("TORRENTDECK_LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv("TORRENTDECK_LOG_FORMAT"); v != "" {
		c.App.LogFormat = v
	}
	if v := os.Getenv("TORRENTDECK_LOG_FILE"); v != "" {
		c.App.LogFile = v
	}
	if v := os.Getenv("TORRENTDECK_POLL_INTERVAL"); v != "" {
		c.App.PollInterval = v
	}

	// Backends: secrets are usually injected per instance
	for i := range c.Backends {
		b := &c.Backends[i]
		prefix := "TORRENTDECK_" + EnvName(b.Name) + "_"
		if v := os.Getenv(prefix + "URL"); v != "" {
			b.URL = v
		}
		if v := os.Getenv(prefix + "USERNAME"); v != "" {
			b.Username = v
		}
		if v := os.Getenv(prefix + "PASSWORD"); v != "" {
			b.Password = v
		}
		if v := os.Getenv(prefix + "TOKEN"); v != "" {
			b.APIToken = v
		}
	}

	// API
	if v := os.Getenv("TORRENTDECK_API_LISTEN"); v != "" {
		if c.API == nil {
			c.API = &APIConfig{}
		}
		c.API.Listen = v
	}

	// Telegram
	if v := os.Getenv("TORRENTDECK_TELEGRAM_BOT_TOKEN"); v != "" {
		if c.Telegram == nil {
			c.Telegram = &TelegramConfig{}
		}
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TORRENTDECK_TELEGRAM_USER_IDS"); v != "" && c.Telegram != nil {
		c.Telegram.AllowedUserIDs = parseIDs(v)
	}
}

// EnvName converts a backend name into its environment variable infix,
// e.g. "home-nas" becomes "HOME_NAS".
func EnvName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

func parseIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// setDefaults fills in zero values
func (c *Config) setDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = DefaultLogLevel
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = DefaultLogFormat
	}
	if c.App.PollInterval == "" {
		c.App.PollInterval = DefaultPollInterval
	}
	for i := range c.Backends {
		if c.Backends[i].Timeout == 0 {
			c.Backends[i].Timeout = DefaultBackendTimeout
		}
	}
	if c.API != nil && c.API.Listen == "" {
		c.API.Listen = DefaultAPIListen
	}
}

// Validate validates the configuration and applies defaults
func (c *Config) Validate() error {
	c.setDefaults()

	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug, info, warn, error")
	}
	if c.App.LogFormat != "json" && c.App.LogFormat != "text" {
		return fmt.Errorf("app.log_format must be 'json' or 'text'")
	}
	if _, err := ParseSchedule(c.App.PollInterval); err != nil {
		return fmt.Errorf("app.poll_interval: %w", err)
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for i, b := range c.Backends {
		if err := b.validate(); err != nil {
			return fmt.Errorf("backends[%d]: %w", i, err)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = struct{}{}
	}

	if c.Telegram != nil && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}

	return nil
}

func (b BackendConfig) validate() error {
	if !backendNameRe.MatchString(b.Name) {
		return fmt.Errorf("name %q must be lowercase letters, digits, '-' or '_'", b.Name)
	}
	switch b.Type {
	case core.TypeRTorrent:
		if b.Address == "" {
			return fmt.Errorf("%s: address is required for rtorrent", b.Name)
		}
	case core.TypeTransmission, core.TypeQBittorrent, core.TypeRESTAPI:
		if err := validateURL(b.URL, b.Name+".url"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: type must be one of rtorrent, transmission, qbittorrent, restapi", b.Name)
	}
	if b.Timeout < 0 {
		return fmt.Errorf("%s: timeout must not be negative", b.Name)
	}
	if b.RequestsPerSecond < 0 {
		return fmt.Errorf("%s: requests_per_second must not be negative", b.Name)
	}
	if b.MaxIdlePolls < 0 {
		return fmt.Errorf("%s: max_idle_polls must not be negative", b.Name)
	}
	return nil
}

// validateURL checks that raw is an absolute http(s) URL with a host.
func validateURL(raw, field string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must use http or https", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing host", field)
	}
	return nil
}

// Schedule is a parsed poll interval: either a fixed duration or a cron expression.
type Schedule struct {
	Every time.Duration
	Cron  string
}

// ParseSchedule accepts a Go duration of at least one second or a standard
// five-field cron expression.
func ParseSchedule(s string) (Schedule, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < time.Second {
			return Schedule{}, fmt.Errorf("interval %s is shorter than 1s", d)
		}
		return Schedule{Every: d}, nil
	}
	if _, err := cron.ParseStandard(s); err != nil {
		return Schedule{}, fmt.Errorf("%q is neither a duration nor a cron expression: %w", s, err)
	}
	return Schedule{Cron: s}, nil
}

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type validateCase struct {
	name    string
	modify  func(*Config)
	wantErr string
}

// validConfig returns a minimal Config that passes Validate().
func validConfig() Config {
	return Config{
		Backends: []BackendConfig{
			{Name: "seedbox", Type: "rtorrent", Address: "127.0.0.1:5000"},
		},
		App: AppConfig{LogLevel: "info"},
	}
}

func TestValidate_CoreFields(t *testing.T) {
	t.Parallel()

	tests := []validateCase{
		{"valid", nil, ""},
		{"no_backends", func(c *Config) { c.Backends = nil }, "at least one backend"},
		{"invalid_log_level", func(c *Config) { c.App.LogLevel = "trace" }, "app.log_level must be one of"},
		{"warning_accepted", func(c *Config) { c.App.LogLevel = "warning" }, ""},
		{"invalid_log_format", func(c *Config) { c.App.LogFormat = "xml" }, "app.log_format must be"},
		{"poll_duration", func(c *Config) { c.App.PollInterval = "5m" }, ""},
		{"poll_cron", func(c *Config) { c.App.PollInterval = "*/5 * * * *" }, ""},
		{"poll_too_short", func(c *Config) { c.App.PollInterval = "100ms" }, "shorter than 1s"},
		{"poll_garbage", func(c *Config) { c.App.PollInterval = "often" }, "neither a duration nor a cron"},
		{"telegram_missing_token", func(c *Config) { c.Telegram = &TelegramConfig{} }, "telegram.bot_token is required"},
	}

	runValidateTests(t, tests)
}

func TestValidate_Backends(t *testing.T) {
	t.Parallel()

	tests := []validateCase{
		{"rtorrent_missing_address", func(c *Config) { c.Backends[0].Address = "" }, "address is required"},
		{"unknown_type", func(c *Config) { c.Backends[0].Type = "deluge" }, "type must be one of"},
		{"bad_name", func(c *Config) { c.Backends[0].Name = "Seed Box" }, "must be lowercase"},
		{"empty_name", func(c *Config) { c.Backends[0].Name = "" }, "must be lowercase"},
		{"duplicate_name", func(c *Config) {
			c.Backends = append(c.Backends, BackendConfig{Name: "seedbox", Type: "rtorrent", Address: "/run/rt.sock"})
		}, "duplicate name"},
		{"transmission_valid", func(c *Config) {
			c.Backends[0] = BackendConfig{Name: "nas", Type: "transmission", URL: "http://nas:9091/transmission/rpc"}
		}, ""},
		{"qbit_bad_scheme", func(c *Config) {
			c.Backends[0] = BackendConfig{Name: "qb", Type: "qbittorrent", URL: "ftp://qb"}
		}, "must use http or https"},
		{"restapi_no_host", func(c *Config) {
			c.Backends[0] = BackendConfig{Name: "api", Type: "restapi", URL: "http://"}
		}, "missing host"},
		{"negative_timeout", func(c *Config) { c.Backends[0].Timeout = -time.Second }, "timeout must not be negative"},
		{"negative_rps", func(c *Config) { c.Backends[0].RequestsPerSecond = -1 }, "requests_per_second"},
		{"negative_idle", func(c *Config) { c.Backends[0].MaxIdlePolls = -1 }, "max_idle_polls"},
	}

	runValidateTests(t, tests)
}

func runValidateTests(t *testing.T, tests []validateCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			if tt.modify != nil {
				tt.modify(&cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Backends: []BackendConfig{{Name: "a"}, {Name: "b", Timeout: 3 * time.Second}},
		API:      &APIConfig{},
	}
	cfg.setDefaults()

	if cfg.App.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.App.LogLevel)
	}
	if cfg.App.LogFormat != "json" {
		t.Errorf("expected default log format 'json', got %q", cfg.App.LogFormat)
	}
	if cfg.App.PollInterval != "30s" {
		t.Errorf("expected default poll interval 30s, got %q", cfg.App.PollInterval)
	}
	if cfg.Backends[0].Timeout != DefaultBackendTimeout {
		t.Errorf("expected default timeout, got %s", cfg.Backends[0].Timeout)
	}
	if cfg.Backends[1].Timeout != 3*time.Second {
		t.Errorf("expected timeout preserved, got %s", cfg.Backends[1].Timeout)
	}
	if cfg.API.Listen != DefaultAPIListen {
		t.Errorf("expected default listen address, got %q", cfg.API.Listen)
	}
}

func TestNetwork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		want    string
	}{
		{"127.0.0.1:5000", "tcp"},
		{"seedbox:5000", "tcp"},
		{"/run/rtorrent/rpc.sock", "unix"},
		{"./rpc.sock", "unix"},
	}
	for _, tt := range tests {
		if got := (BackendConfig{Address: tt.address}).Network(); got != tt.want {
			t.Errorf("Network(%q) = %s, want %s", tt.address, got, tt.want)
		}
	}
}

func TestConnectionEquals(t *testing.T) {
	t.Parallel()

	base := BackendConfig{Name: "a", Type: "qbittorrent", URL: "http://qb", Username: "u", Password: "p"}
	renamed := base
	renamed.Name = "b"
	if !base.ConnectionEquals(renamed) {
		t.Error("expected rename to keep the connection")
	}
	changed := base
	changed.Password = "other"
	if base.ConnectionEquals(changed) {
		t.Error("expected password change to require a new connection")
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	s, err := ParseSchedule("45s")
	if err != nil || s.Every != 45*time.Second || s.Cron != "" {
		t.Errorf("unexpected duration schedule: %+v, %v", s, err)
	}
	s, err = ParseSchedule("0 * * * *")
	if err != nil || s.Cron != "0 * * * *" || s.Every != 0 {
		t.Errorf("unexpected cron schedule: %+v, %v", s, err)
	}
}

func TestLoad_ValidMinimal(t *testing.T) {
	t.Parallel()
	path := writeTempYAML(t, minimalYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(cfg.Backends))
	}
	if cfg.Backends[0].Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.Backends[0].Timeout)
	}
	if cfg.Backends[1].Password != "yaml-pass" {
		t.Errorf("expected yaml-pass, got %q", cfg.Backends[1].Password)
	}
	if cfg.App.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.App.LogLevel)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	t.Run("invalid_yaml", func(t *testing.T) {
		t.Parallel()
		path := writeTempYAML(t, "{{invalid yaml}}")
		_, err := Load(path)
		if err == nil {
			t.Fatal("expected error for invalid YAML")
		}
		if !strings.Contains(err.Error(), "failed to parse") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("file_not_found", func(t *testing.T) {
		t.Parallel()
		_, err := Load("/nonexistent/path/config.yaml")
		if err == nil {
			t.Fatal("expected error for missing file")
		}
		if !strings.Contains(err.Error(), "config file not found") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("path_is_directory", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		_, err := Load(dir)
		if err == nil {
			t.Fatal("expected error for directory path")
		}
		if !strings.Contains(err.Error(), "directory") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("invalid_config", func(t *testing.T) {
		t.Parallel()
		path := writeTempYAML(t, "app:\n  log_level: info\n")
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Run("backend_secrets", func(t *testing.T) {
		path := writeTempYAML(t, minimalYAML)
		t.Setenv("TORRENTDECK_HOME_NAS_PASSWORD", "env-pass")
		t.Setenv("TORRENTDECK_HOME_NAS_USERNAME", "env-user")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Backends[1].Password != "env-pass" || cfg.Backends[1].Username != "env-user" {
			t.Errorf("expected env credentials, got %q/%q", cfg.Backends[1].Username, cfg.Backends[1].Password)
		}
	})

	t.Run("log_level_override", func(t *testing.T) {
		path := writeTempYAML(t, minimalYAML)
		t.Setenv("TORRENTDECK_LOG_LEVEL", "debug")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.App.LogLevel != "debug" {
			t.Errorf("expected debug, got %q", cfg.App.LogLevel)
		}
	})

	t.Run("telegram_created_from_env", func(t *testing.T) {
		path := writeTempYAML(t, minimalYAML)
		t.Setenv("TORRENTDECK_TELEGRAM_BOT_TOKEN", "123:TOKEN")
		t.Setenv("TORRENTDECK_TELEGRAM_USER_IDS", "42, 43,x")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Telegram == nil || cfg.Telegram.BotToken != "123:TOKEN" {
			t.Fatal("expected telegram created from env")
		}
		if len(cfg.Telegram.AllowedUserIDs) != 2 || cfg.Telegram.AllowedUserIDs[1] != 43 {
			t.Errorf("unexpected user ids: %v", cfg.Telegram.AllowedUserIDs)
		}
	})

	t.Run("api_created_from_env", func(t *testing.T) {
		path := writeTempYAML(t, minimalYAML)
		t.Setenv("TORRENTDECK_API_LISTEN", ":9999")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.API == nil || cfg.API.Listen != ":9999" {
			t.Errorf("expected api listen :9999, got %v", cfg.API)
		}
	})
}

func TestEnvName(t *testing.T) {
	t.Parallel()
	if got := EnvName("home-nas"); got != "HOME_NAS" {
		t.Errorf("EnvName = %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(AppConfig{LogLevel: "warn", LogFormat: "text"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "backend", "seedbox")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "backend=seedbox") {
		t.Errorf("expected text output, got %q", out)
	}
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "deck.log")
	var buf bytes.Buffer
	logger := NewLogger(AppConfig{LogLevel: "info", LogFile: path}, &buf)
	logger.Info("to both")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to both"`) {
		t.Errorf("expected JSON record in file, got %q", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Error("expected record on the console writer too")
	}
}

func TestValidateConfigPath(t *testing.T) {
	t.Parallel()

	t.Run("valid_file", func(t *testing.T) {
		t.Parallel()
		path := writeTempYAML(t, "test")
		if err := validateConfigPath(path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()
		err := validateConfigPath("/nonexistent/file.yaml")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "config file not found") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

const minimalYAML = `
backends:
  - name: seedbox
    type: rtorrent
    address: 127.0.0.1:5000
    timeout: 5s
  - name: home-nas
    type: transmission
    url: http://nas:9091/transmission/rpc
    username: admin
    password: yaml-pass
`

// writeTempYAML creates a temporary YAML file and returns its path.
func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp yaml: %v", err)
	}
	return path
}

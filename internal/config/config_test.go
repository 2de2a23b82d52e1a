package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "roomchat.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	def := Default()
	if cfg.ChannelURL != def.ChannelURL || cfg.ReconnectDelay != 5*time.Second || cfg.MaxReconnectAttempts != 5 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	// The written file must load back to the same values.
	again, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again != cfg {
		t.Fatalf("reloaded config differs:\n%+v\n%+v", again, cfg)
	}
}

func TestLoadReadsBackCreatedDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomchat.yaml")
	t.Setenv("ROOMCHAT_IDENTITY", "env@example.com")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	cfg, _, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	logs := buf.String()
	if !strings.Contains(logs, "created default config") {
		t.Fatalf("expected creation to be logged, got %q", logs)
	}
	if strings.Contains(logs, "failed to read config after writing default") {
		t.Fatalf("written default must read back cleanly, got %q", logs)
	}
	if cfg.Identity != "env@example.com" {
		t.Fatalf("env must override the created file, got %q", cfg.Identity)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	if strings.Contains(string(written), "env@example.com") {
		t.Fatalf("env values must not be persisted into the default file")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomchat.yaml")
	data := []byte(`
channel_url: wss://chat.example.com/ws
dialect: simple
reconnect_delay: 2s
max_reconnect_attempts: 3
optimistic_echo: true
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ROOMCHAT_TOKEN", "from-env")
	t.Setenv("ROOMCHAT_MAX_RECONNECT_ATTEMPTS", "7")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChannelURL != "wss://chat.example.com/ws" || cfg.Dialect != "simple" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ReconnectDelay != 2*time.Second || !cfg.OptimisticEcho {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Token != "from-env" || cfg.MaxReconnectAttempts != 7 {
		t.Errorf("env must override file: token=%q attempts=%d", cfg.Token, cfg.MaxReconnectAttempts)
	}
	if cfg.APIBaseURL != Default().APIBaseURL {
		t.Errorf("missing keys must keep defaults, got %q", cfg.APIBaseURL)
	}
}

func TestResolveConfigPathFromEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	t.Setenv(envConfigDefaultPath, dir)

	if got := resolveConfigPath(""); got != filepath.Join(dir, defaultConfigName) {
		t.Fatalf("unexpected path %q", got)
	}
	if got := resolveConfigPath("/explicit.yaml"); got != "/explicit.yaml" {
		t.Fatalf("explicit path must win, got %q", got)
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Token: "t", Dialect: "simple", AnnounceJoin: true})

	if cfg.Token != "t" || cfg.Dialect != "simple" || !cfg.AnnounceJoin {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ChannelURL != Default().ChannelURL {
		t.Fatalf("zero values must not overwrite, got %q", cfg.ChannelURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"http channel", func(c *Config) { c.ChannelURL = "http://localhost/ws" }, false},
		{"ws api", func(c *Config) { c.APIBaseURL = "ws://localhost/api" }, false},
		{"unknown dialect", func(c *Config) { c.Dialect = "sockjs" }, false},
		{"negative attempts", func(c *Config) { c.MaxReconnectAttempts = -1 }, false},
		{"negative delay", func(c *Config) { c.ReconnectDelay = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

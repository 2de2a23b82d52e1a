package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "ROOMCHAT"
	envConfigDefaultPath = "ROOMCHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "roomchat.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaults(cfg) {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if err := readOrCreate(v, configPath, cfg, logger); err != nil {
		return cfg, configPath, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// readOrCreate reads the config file. A missing file is replaced by one holding
// cfg and read back, so env overrides still layer on top of it. Failing to
// write it is not fatal: defaults and env still apply.
func readOrCreate(v *viper.Viper, path string, cfg Config, logger *zerolog.Logger) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	if err := writeDefaultConfig(path, cfg); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to write default config")
		return nil
	}
	logger.Info().Str("path", path).Msg("created default config")

	if err := v.ReadInConfig(); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to read config after writing default")
	}
	return nil
}

// defaults registers every key with viper so AutomaticEnv can see it.
func defaults(cfg Config) map[string]any {
	return map[string]any{
		"api_base_url":           cfg.APIBaseURL,
		"channel_url":            cfg.ChannelURL,
		"dialect":                cfg.Dialect,
		"token":                  cfg.Token,
		"identity":               cfg.Identity,
		"reconnect_delay":        cfg.ReconnectDelay,
		"max_reconnect_attempts": cfg.MaxReconnectAttempts,
		"heartbeat_incoming":     cfg.HeartbeatIncoming,
		"heartbeat_outgoing":     cfg.HeartbeatOutgoing,
		"request_timeout":        cfg.RequestTimeout,
		"shutdown_timeout":       cfg.ShutdownTimeout,
		"announce_join":          cfg.AnnounceJoin,
		"optimistic_echo":        cfg.OptimisticEcho,
		"transcript_path":        cfg.TranscriptPath,
		"status_addr":            cfg.StatusAddr,
		"log_level":              cfg.LogLevel,
	}
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

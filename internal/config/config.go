package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds client configuration values.
type Config struct {
	APIBaseURL           string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	ChannelURL           string        `mapstructure:"channel_url" yaml:"channel_url"`
	Dialect              string        `mapstructure:"dialect" yaml:"dialect"`
	Token                string        `mapstructure:"token" yaml:"token"`
	Identity             string        `mapstructure:"identity" yaml:"identity"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	HeartbeatIncoming    time.Duration `mapstructure:"heartbeat_incoming" yaml:"heartbeat_incoming"`
	HeartbeatOutgoing    time.Duration `mapstructure:"heartbeat_outgoing" yaml:"heartbeat_outgoing"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AnnounceJoin         bool          `mapstructure:"announce_join" yaml:"announce_join"`
	OptimisticEcho       bool          `mapstructure:"optimistic_echo" yaml:"optimistic_echo"`
	TranscriptPath       string        `mapstructure:"transcript_path" yaml:"transcript_path"`
	StatusAddr           string        `mapstructure:"status_addr" yaml:"status_addr"`
	LogLevel             string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration matching a local development server.
func Default() Config {
	return Config{
		APIBaseURL:           "http://localhost:8080/api",
		ChannelURL:           "ws://localhost:8080/ws",
		Dialect:              "app",
		ReconnectDelay:       5 * time.Second,
		MaxReconnectAttempts: 5,
		HeartbeatIncoming:    4 * time.Second,
		HeartbeatOutgoing:    4 * time.Second,
		RequestTimeout:       10 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		LogLevel:             "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Booleans can only be switched on this way.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.ChannelURL != "" {
		c.ChannelURL = other.ChannelURL
	}
	if other.Dialect != "" {
		c.Dialect = other.Dialect
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.Identity != "" {
		c.Identity = other.Identity
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.MaxReconnectAttempts != 0 {
		c.MaxReconnectAttempts = other.MaxReconnectAttempts
	}
	if other.HeartbeatIncoming != 0 {
		c.HeartbeatIncoming = other.HeartbeatIncoming
	}
	if other.HeartbeatOutgoing != 0 {
		c.HeartbeatOutgoing = other.HeartbeatOutgoing
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.AnnounceJoin {
		c.AnnounceJoin = true
	}
	if other.OptimisticEcho {
		c.OptimisticEcho = true
	}
	if other.TranscriptPath != "" {
		c.TranscriptPath = other.TranscriptPath
	}
	if other.StatusAddr != "" {
		c.StatusAddr = other.StatusAddr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Validate checks the values a session cannot run without.
func (c Config) Validate() error {
	if err := checkURL("api_base_url", c.APIBaseURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("channel_url", c.ChannelURL, "ws", "wss"); err != nil {
		return err
	}
	switch c.Dialect {
	case "", "app", "simple":
	default:
		return fmt.Errorf("dialect must be app or simple, got %q", c.Dialect)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must not be negative")
	}
	if c.ReconnectDelay < 0 || c.RequestTimeout < 0 || c.HeartbeatIncoming < 0 || c.HeartbeatOutgoing < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s: invalid url %q", field, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s: scheme must be one of %v, got %q", field, schemes, u.Scheme)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/config"
	applog "github.com/vovakirdan/roomchat/internal/log"
)

var rootCmd = &cobra.Command{
	Use:           "roomchat",
	Short:         "Terminal client for STOMP room chat",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagConfig   string
	flagLogLevel string
	flagToken    string
	flagIdentity string
	flagDialect  string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "path to config file (default ./roomchat.yaml or $ROOMCHAT_CONFIG_DEFAULT_PATH)")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error, off")
	flags.StringVar(&flagToken, "token", "", "bearer token (overrides config and ROOMCHAT_TOKEN)")
	flags.StringVar(&flagIdentity, "identity", "", "sender identity, defaults to the token's email claim")
	flags.StringVar(&flagDialect, "dialect", "", "wire dialect: app or simple")

	rootCmd.AddCommand(newJoinCmd(), newHistoryCmd(), newProbeCmd(), newTranscriptCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration (defaults < file < env < flags) and builds the logger.
func loadConfig() (config.Config, *zerolog.Logger, error) {
	bootLogger := applog.New(flagLogLevel)
	cfg, path, err := config.Load(bootLogger, flagConfig)
	if err != nil {
		return cfg, bootLogger, err
	}
	cfg.UpdateFrom(config.Config{
		Token:    flagToken,
		Identity: flagIdentity,
		Dialect:  flagDialect,
		LogLevel: flagLogLevel,
	})

	logger := applog.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Str("dialect", cfg.Dialect).Msg("configuration loaded")
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

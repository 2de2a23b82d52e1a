package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/app"
	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/render"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <room>",
		Short: "Print the stored history of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			creds := auth.Resolve(cfg.Token, cfg.Identity)
			if err := auth.Check(creds, timeNow()); err != nil {
				return fmt.Errorf("login required: %w", err)
			}

			client, err := app.NewAPIClient(&cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			msgs, err := client.History(ctx, args[0], creds)
			if err != nil {
				return err
			}
			if limit > 0 && len(msgs) > limit {
				msgs = msgs[len(msgs)-limit:]
			}

			out := cmd.OutOrStdout()
			for _, m := range msgs {
				fmt.Fprintln(out, render.Line(m))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "print only the last N messages")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/app"
	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/render"
)

var timeNow = time.Now

func newProbeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe <room>",
		Short: "Check the token, connect once with a JOIN announcement and report the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			describeToken(out, cfg.Token)

			cfg.AnnounceJoin = true
			a, err := app.New(args[0], &cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var outcome *core.StateEvent
			runErr := a.Run(ctx, func(ev core.Event) {
				printEvent(out, ev)
				if ev.Kind != core.EventStateChanged || ev.State == nil || outcome != nil {
					return
				}
				if ev.State.NewState == core.StateConnected || ev.State.NewState == core.StateFailed {
					state := *ev.State
					outcome = &state
					cancel()
				}
			})
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}

			switch {
			case outcome == nil:
				return fmt.Errorf("no outcome within %s, last state %s", timeout, a.Session().State())
			case outcome.NewState == core.StateFailed:
				return fmt.Errorf("connection failed: %w", outcome.Error)
			default:
				fmt.Fprintln(out, "probe ok")
				return nil
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for connected or failed")
	return cmd
}

func describeToken(w io.Writer, token string) {
	if token == "" {
		fmt.Fprintln(w, render.NoticeLine(core.Notice{Text: "no token configured"}))
		return
	}
	claims, err := auth.Inspect(token)
	if err != nil {
		fmt.Fprintln(w, "token: opaque (not a JWT)")
		return
	}
	fmt.Fprintf(w, "token: subject=%q email=%q\n", claims.Subject, claims.Email)
	if claims.ExpiresAt == nil {
		fmt.Fprintln(w, "token: no expiry")
		return
	}
	exp := claims.ExpiresAt.Time
	if exp.Before(timeNow()) {
		fmt.Fprintf(w, "token: expired at %s\n", exp.Format(time.RFC3339))
		return
	}
	fmt.Fprintf(w, "token: valid until %s\n", exp.Format(time.RFC3339))
}

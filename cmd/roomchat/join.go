package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/app"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/render"
)

func newJoinCmd() *cobra.Command {
	var statusAddr string
	var transcript string

	cmd := &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room: lines from stdin are sent, messages are printed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if statusAddr != "" {
				cfg.StatusAddr = statusAddr
			}
			if transcript != "" {
				cfg.TranscriptPath = transcript
			}

			a, err := app.New(args[0], &cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Joining room %s as %s. Type messages and press Enter; /quit or Ctrl+C to leave.\n",
				args[0], a.Credentials().Identity)

			go func() {
				defer stop()
				readInput(cmd.InOrStdin(), func(line string) bool {
					if strings.TrimSpace(line) == "/quit" {
						return false
					}
					if err := a.Send(ctx, line); err != nil && !errors.Is(err, core.ErrEmptyInput) {
						fmt.Fprintln(cmd.ErrOrStderr(), render.NoticeLine(core.Notice{Text: err.Error()}))
					}
					return true
				})
			}()

			failed := &failureWatch{cancel: stop}
			if err := a.Run(ctx, func(ev core.Event) {
				printEvent(out, ev)
				failed.observe(ev)
			}); err != nil {
				return err
			}
			return failed.Err()
		},
	}
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve session status on this address, e.g. 127.0.0.1:8090")
	cmd.Flags().StringVar(&transcript, "transcript", "", "record messages into this sqlite file")
	return cmd
}

// failureWatch ends the join once the session gives up, so the command exits
// non-zero instead of idling until Ctrl+C.
type failureWatch struct {
	cancel func()
	err    error
}

func (w *failureWatch) observe(ev core.Event) {
	if ev.Kind != core.EventStateChanged || ev.State == nil || ev.State.NewState != core.StateFailed {
		return
	}
	w.err = ev.State.Error
	if w.err == nil {
		w.err = errors.New("session failed")
	}
	w.cancel()
}

// Err explains the failure, if any, with the next step for the user.
func (w *failureWatch) Err() error {
	if w.err == nil {
		return nil
	}
	if errors.Is(w.err, core.ErrAuthExpired) {
		return fmt.Errorf("%w (log in again and pass a fresh --token)", w.err)
	}
	return fmt.Errorf("gave up on the room: %w", w.err)
}

// readInput calls fn per line until fn returns false or input ends.
func readInput(r io.Reader, fn func(string) bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if !fn(scanner.Text()) {
			return
		}
	}
}

func printEvent(w io.Writer, ev core.Event) {
	switch ev.Kind {
	case core.EventMessage:
		fmt.Fprintln(w, render.Line(ev.Message))
	case core.EventHistory:
		for _, m := range ev.Messages {
			fmt.Fprintln(w, render.Line(m))
		}
	case core.EventStateChanged:
		if ev.State != nil {
			fmt.Fprintln(w, render.StateLine(*ev.State))
		}
	case core.EventNotice:
		if ev.Notice != nil {
			fmt.Fprintln(w, render.NoticeLine(*ev.Notice))
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/render"
	"github.com/vovakirdan/roomchat/internal/store/sqlite"
)

func newTranscriptCmd() *cobra.Command {
	var path string
	var limit int

	cmd := &cobra.Command{
		Use:   "transcript [room]",
		Short: "Print the local transcript of a room, or list recorded rooms",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if path != "" {
				cfg.TranscriptPath = path
			}
			if cfg.TranscriptPath == "" {
				return errors.New("no transcript configured, set transcript_path or --path")
			}

			st, err := sqlite.New(cfg.TranscriptPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				rooms, err := st.Rooms(ctx)
				if err != nil {
					return err
				}
				for _, room := range rooms {
					fmt.Fprintln(out, room)
				}
				return nil
			}

			entries, err := st.List(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(out, render.Line(e.Message()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "transcript sqlite file (overrides transcript_path)")
	cmd.Flags().IntVar(&limit, "limit", 0, "print only the last N entries")
	return cmd
}

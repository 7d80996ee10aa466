package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/chandler767/live-debate-arena/pkg/kafka"
	"github.com/chandler767/live-debate-arena/pkg/types"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print debate transcripts published to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(cmd, "")
			if err != nil {
				return err
			}
			defer a.Close()

			kcfg := a.cfg.Kafka
			if !kcfg.Enabled() {
				return fmt.Errorf("watch needs SEED_BROKERS")
			}
			kcfg.Topics = []string{kcfg.Topic()}

			client, err := kafka.NewClient(&kcfg, true, a.logger.Logger)
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			err = client.Consume(ctx, func(msg kafka.Message) error {
				rec, err := kafka.Decode(msg)
				if err != nil {
					a.logger.Warn("skipping record", "key", msg.Key, "error", err)
					return nil
				}
				printRecord(out, rec)
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func printRecord(w io.Writer, rec kafka.Record) {
	switch {
	case rec.Summary != nil:
		s := rec.Summary
		line := fmt.Sprintf("[%s] ended: %s after %d turns", short(s.DebateID), s.Outcome, s.Turns)
		if s.Error != "" {
			line += " (" + s.Error + ")"
		}
		fmt.Fprintln(w, line)
	case rec.Message != nil:
		m := rec.Message
		switch m.Kind {
		case types.KindTopic:
			fmt.Fprintf(w, "[%s] topic: %s\n", short(m.DebateID), m.Content)
		default:
			fmt.Fprintf(w, "[%s] #%d %s: %s\n", short(m.DebateID), m.Turn, m.AgentID, m.Content)
		}
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

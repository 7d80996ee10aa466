package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chandler767/live-debate-arena/pkg/ui"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		opts   controllerOptions
		random bool
	)
	cmd := &cobra.Command{
		Use:   "run [topic]",
		Short: "Run a debate in the terminal arena",
		Long: `run opens the terminal arena. With a topic argument (or --random-topic)
the debate starts right away; otherwise type a topic and press Enter.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// The terminal belongs to tview, so logs go to a file.
			a, err := loadApp(cmd, ".")
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl, err := a.controller(ctx, opts)
			if err != nil {
				a.logger.Error("failed to build debate controller", "error", err)
				return err
			}

			arena := ui.NewUI(ctrl, a.topicSource(), a.logger.Logger)
			switch {
			case len(args) > 0:
				arena.Submit(ui.CmdStart + " " + strings.Join(args, " "))
			case random:
				arena.Submit(ui.CmdRandom)
			}

			a.logger.Info("starting arena", "left", ctrl.State().Left.Profile.ID, "right", ctrl.State().Right.Profile.ID)
			return arena.Start(ctx)
		},
	}
	addControllerFlags(cmd, &opts)
	cmd.Flags().BoolVar(&random, "random-topic", false, "start with a generated topic (needs OPENAI_API_KEY)")
	return cmd
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arena",
		Short: "Live Debate Arena - two live AI agents argue a topic out loud",
		Long: `arena connects two live speech agents, gives one a topic to argue for,
and forwards every finished turn to the other as something to rebut.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("env-file", "", "env file to load (default .env)")
	root.PersistentFlags().String("log-dir", "", "directory for arena.log (overrides LOG_DIR)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newWatchCmd(),
		newTopicCmd(),
	)
	return root
}

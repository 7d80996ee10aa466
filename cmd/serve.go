package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		opts controllerOptions
		addr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the arena over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(cmd, "")
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl, err := a.controller(ctx, opts)
			if err != nil {
				return err
			}

			sopts := server.Options{
				Topics: a.topicSource(),
				Logger: a.logger.Logger,
			}
			if a.history != nil {
				sopts.History = a.history
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           server.New(ctrl, sopts).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("serving arena", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			ctrl.Stop()
			return srv.Shutdown(shutdownCtx)
		},
	}
	addControllerFlags(cmd, &opts)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

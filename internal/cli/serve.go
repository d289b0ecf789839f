package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/neurapath/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API from a sqlite or postgres backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			backend, ok := a.remote.(server.Backend)
			if !ok {
				return fmt.Errorf("backend %q cannot be served; use sqlite or postgres", a.cfg.Backend.Kind)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           server.NewServer(backend, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.logger.Info("Starting server", "addr", srv.Addr, "backend", a.cfg.Backend.Kind)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down server: %w", err)
			}
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Keep the session open and save whenever the last sync is stale",
		Long: `Log in, then retry queued operations and save the database every
sync.interval once it is older than sync.stale-after. Stops on interrupt after
a final save.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(cmd, func(_ context.Context, a *app) error {
				if a.remote == nil {
					return errNeedsRemote
				}
				if a.cfg.Sync.Interval <= 0 {
					return errors.New("sync.interval must be positive")
				}
				a.logger.Info("Syncing", "every", a.cfg.Sync.Interval, "user", a.ctrl.CurrentUserID())
				if err := a.ctrl.Run(ctx, a.cfg.Sync.Interval); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				a.fullSave = true
				return nil
			})
		},
	}
}

package cmd

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
	"go.uber.org/zap"

	"github.com/khanhnv2901/webposture/internal/api"
	"github.com/khanhnv2901/webposture/internal/shared/constants"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scanner as a REST API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		authToken, _ := cmd.Flags().GetString("auth-token")
		shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
		rateLimit, _ := cmd.Flags().GetInt("rate-limit")
		rateBurst, _ := cmd.Flags().GetInt("rate-burst")

		// Initialize structured logger
		apiLogger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() {
			if err := apiLogger.Sync(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
			}
		}()

		stack, err := newScanStack(dbPath, apiLogger)
		if err != nil {
			return err
		}
		defer func() {
			if err := stack.Close(); err != nil {
				apiLogger.Warn("closing scan database", zap.Error(err))
			}
		}()

		server := api.NewServer(api.Config{
			Scans:       stack.Service,
			AuthToken:   authToken,
			Logger:      apiLogger,
			CORSOrigins: corsOrigins,
			RateLimit:   rateLimit,
			RateBurst:   rateBurst,
		})

		httpServer := &http.Server{
			Addr:         addr,
			Handler:      server,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		// Background maintenance: drop stale progress sessions and
		// rate-limit admissions.
		maintDone := make(chan struct{})
		go maintenanceLoop(stack, apiLogger, maintDone)
		defer close(maintDone)

		// Channel to listen for errors from the server
		serverErrors := make(chan error, 1)

		// Start server in a goroutine
		go func() {
			fmt.Printf("%s API server listening on %s (database: %s)\n", colorInfo("→"), addr, dbPath)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		// Channel to listen for interrupt signals
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Block until we receive a signal or an error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			// Create context with timeout for shutdown
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			// Attempt graceful shutdown
			if err := httpServer.Shutdown(ctx); err != nil {
				// Force close if graceful shutdown fails
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}

			fmt.Printf("%s Server shutdown complete\n", colorSuccess("✓"))
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Optional shared secret for API requests")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", 10, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", 20, "Rate limit burst size")
	rootCmd.AddCommand(serveCmd)
}

// maintenanceLoop prunes in-memory progress sessions, persisted progress
// rows, and expired rate-limit admissions once an hour.
func maintenanceLoop(stack *scanStack, l *zap.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := stack.Tracker.Cleanup(constants.ProgressRetention)
			stack.Gate.Limiter.Purge()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			pruned, err := stack.Store.PruneProgress(ctx, time.Now().Add(-constants.ProgressRetention))
			cancel()
			if err != nil {
				l.Warn("pruning stored progress", zap.Error(err))
				continue
			}
			l.Info("maintenance sweep",
				zap.Int("sessions_removed", removed),
				zap.Int64("progress_rows_pruned", pruned))
		case <-done:
			return
		}
	}
}

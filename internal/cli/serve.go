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
	"go.uber.org/zap"

	"github.com/lazypower/seedbed/internal/engine"
	"github.com/lazypower/seedbed/internal/moderation"
	"github.com/lazypower/seedbed/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the lifecycle driver",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.cfg

	mod, err := moderation.NewClient(cfg.Moderation)
	if err != nil {
		return fmt.Errorf("moderation: %w", err)
	}
	fmt.Fprintf(os.Stderr, "  moderation: %s\n", cfg.Moderation.Provider)

	eng := newEngine(rt, mod)
	eng.Start(cfg.Lifecycle.Interval, cfg.Lifecycle.ArchiveInterval)
	defer eng.Stop()

	feeds, closeFeeds, err := rt.feedBuilder(cmd.Context())
	if err != nil {
		return fmt.Errorf("recents cache: %w", err)
	}
	defer closeFeeds()

	srv := server.New(rt.db, eng, feeds, rt.logger, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "seedbed serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", rt.db.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		rt.logger.Error("server error", zap.Error(err))
		return err
	}
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

func newEngine(rt *runtime, mod moderation.Client) *engine.Engine {
	return engine.New(rt.db, mod, rt.logger,
		engine.WithWorkers(rt.cfg.Lifecycle.Workers),
		engine.WithMarkerRetention(rt.cfg.Lifecycle.MarkerRetention),
	)
}

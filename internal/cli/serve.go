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

	"github.com/lazypower/totemic/internal/engine"
	"github.com/lazypower/totemic/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Sync()

	st, desc, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	pub, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer pub.Close()

	coord, err := newCoordinator(cfg, st, log, pub)
	if err != nil {
		return err
	}

	if mode, _ := engine.ParseRelationsMode(cfg.Engine.Relations); mode == engine.RelationsDeferred {
		worker, err := engine.NewRelationsWorker(engine.RelationsWorkerConfig{
			Recomputer: coord,
			Logger:     log,
		})
		if err != nil {
			return err
		}
		coord.SetRelationsScheduler(worker)
		defer worker.Close()
	}

	srv := server.New(coord, st, VersionString(), log)
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
		log.Info("totemic serving",
			zap.String("addr", addr),
			zap.String("store", desc),
			zap.String("events", cfg.Events.Driver),
			zap.String("relations", cfg.Engine.Relations),
			zap.String("policy", coord.Policy().String()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/docxconversionflow/internal/worker"
)

func main() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	// Error ignored: maxprocs.Set only fails on an invalid GOMAXPROCS env,
	// in which case the runtime default applies.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		slog.Info(fmt.Sprintf(format, args...))
	}))

	cfg, err := worker.LoadServerConfig(os.Args)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		slog.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg worker.ServerConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := worker.NewSofficeEngine(cfg.SofficePath)
	w := worker.New(engine, cfg.Worker)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           worker.NewHandler(w, cfg.Handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Must outlast the gateway's 60s client budget so a rendering timeout
		// is still reported as JSON.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.Info("Conversion worker listening.",
			"addr", srv.Addr,
			"soffice", cfg.SofficePath,
			"timeout", cfg.Worker.Timeout.String(),
			"maxConcurrent", cfg.Worker.MaxConcurrent,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down conversion worker.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		w.Flush()
		return err
	})
	return eg.Wait()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/xtrntr/bazaar/internal/api"
	"github.com/xtrntr/bazaar/internal/app"
	"github.com/xtrntr/bazaar/internal/config"
	"github.com/xtrntr/bazaar/internal/logger"
)

func main() {
	cliApp := &cli.App{
		Name:  "bazaar-server",
		Usage: "serve the escrow marketplace API",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "how long to wait for in-flight requests on shutdown",
				Value: 15 * time.Second,
			},
		},
		Action: serve,
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(cctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, logCloser, err := logger.New(cfg.Logger(), os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, logCloser)
	if err != nil {
		logCloser.Close()
		return fmt.Errorf("failed to start: %w", err)
	}

	router := api.NewRouter(a.Handler(), api.RouterOptions{
		AllowedOrigins: cfg.CORSOrigins,
		Metrics:        cfg.Metrics,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).WithField("store", cfg.Store).
			WithField("escrow", a.Bazaar.Escrow().Address()).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var result *multierror.Error
	select {
	case err := <-errCh:
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("server failed: %w", err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cctx.Duration("shutdown-timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to shut down http: %w", err))
	}
	if err := a.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

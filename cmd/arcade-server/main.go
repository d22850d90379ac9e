// Command arcade-server runs the arcade without a window and serves it over
// HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/MJE43/emoji-arcade/internal/api"
	"github.com/MJE43/emoji-arcade/internal/config"
	"github.com/MJE43/emoji-arcade/internal/daemon"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", api.EngineVersion, api.GitCommit, api.BuildTime)
		os.Exit(0)
	}

	xlog.Configure(xlog.Config{Level: "info", Service: "arcade-server"})
	logger := xlog.WithComponent("server")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).
			Str(xlog.FieldEvent, "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	if err := xlog.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level; keeping info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	logger := xlog.WithComponent("server")

	app, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}

	srv := api.NewServer(app.Hub, app.History, cfg.HTTP).HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Without a watcher the pack just stops hot-reloading.
		if err := app.Run(gctx); err != nil {
			logger.Warn().Err(err).Msg("content watcher stopped")
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().
			Str(xlog.FieldEvent, "http.listen").
			Str("addr", srv.Addr).
			Msg("serving arcade API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if cerr := app.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// Package daemon wires configuration into a running arcade: record backend,
// content pack, session history and the game hub. Both the desktop app and
// the headless server start from here.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MJE43/emoji-arcade/internal/arcade"
	"github.com/MJE43/emoji-arcade/internal/autoplay"
	"github.com/MJE43/emoji-arcade/internal/config"
	"github.com/MJE43/emoji-arcade/internal/content"
	"github.com/MJE43/emoji-arcade/internal/history"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/records"
	"github.com/MJE43/emoji-arcade/internal/session"
)

// App is a bootstrapped arcade.
type App struct {
	Config  config.Config
	Hub     *arcade.Hub
	Records *records.Book
	Content *content.Holder
	// History is nil when disabled or when the database could not be opened.
	History *history.Store

	backend  records.Backend
	recorder *history.Recorder
	logger   zerolog.Logger
}

// Bootstrap opens every store named by cfg and builds the hub. A history
// database that fails to open is logged and skipped; play does not depend
// on it.
func Bootstrap(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg, logger: xlog.WithComponent("daemon")}

	if needsDataDir(cfg) {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, err
		}
	}

	holder, err := content.NewHolder(cfg.ContentPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load content: %w", err)
	}
	a.Content = holder

	backend, err := records.Open(cfg.RecordOptions())
	if err != nil {
		return nil, fmt.Errorf("daemon: open records: %w", err)
	}
	a.backend = backend
	a.Records = records.NewBook(backend, cfg.Records.Prefix)

	var listeners []session.Listener
	if cfg.History.Enabled {
		if store, err := openHistory(ctx, cfg.History.Path); err != nil {
			a.logger.Warn().Err(err).
				Str(xlog.FieldEvent, "history.disabled").
				Str("path", cfg.History.Path).
				Msg("history unavailable; continuing without it")
		} else {
			a.History = store
			a.recorder = history.NewRecorder(store, cfg.History.BufferSize, 0)
			listeners = append(listeners, a.recorder)
		}
	}

	a.Hub = arcade.New(arcade.Options{
		Records:   a.Records,
		Content:   holder,
		Settings:  cfg.Games,
		Listeners: listeners,
		Autoplay: autoplay.Config{
			Timeout: cfg.Autoplay.Timeout,
			Delay:   cfg.Autoplay.Delay,
		},
	})

	a.logger.Info().
		Str(xlog.FieldEvent, "daemon.ready").
		Str("records_driver", cfg.Records.Driver).
		Bool("history", a.History != nil).
		Str("content", contentSource(cfg.ContentPath)).
		Int("games", len(a.Hub.Games())).
		Msg("arcade ready")
	return a, nil
}

func openHistory(ctx context.Context, path string) (*history.Store, error) {
	store, err := history.New(path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Run watches the content pack until ctx is done.
func (a *App) Run(ctx context.Context) error {
	return a.Content.Watch(ctx)
}

// Close stops the hub and then flushes and closes the stores.
func (a *App) Close() error {
	a.Hub.Close()
	var errs []error
	if a.recorder != nil {
		a.recorder.Close()
		if n := a.recorder.Dropped(); n > 0 {
			a.logger.Warn().Int64("dropped", n).Msg("history events dropped during run")
		}
	}
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if err := a.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close records: %w", err))
	}
	return errors.Join(errs...)
}

func needsDataDir(cfg config.Config) bool {
	switch strings.ToLower(cfg.Records.Driver) {
	case records.DriverSQLite, records.DriverFile:
		return true
	}
	return cfg.History.Enabled
}

func contentSource(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

package content

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xlog "github.com/MJE43/emoji-arcade/internal/log"
)

// DefaultDebounce collapses bursts of editor writes into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Holder owns the active pack and swaps it atomically on reload. Games read
// the pack once per session start, so a reload never changes a running
// session.
type Holder struct {
	mu      sync.RWMutex
	current *Pack
	path    string
	logger  zerolog.Logger

	Debounce time.Duration

	listenersMu sync.Mutex
	listeners   []func(*Pack)
}

// NewHolder loads path (or the built-in pack when path is empty).
func NewHolder(path string) (*Holder, error) {
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Holder{
		current:  p,
		path:     path,
		logger:   xlog.WithComponent("content"),
		Debounce: DefaultDebounce,
	}, nil
}

// Static wraps a fixed pack.
func Static(p *Pack) *Holder {
	return &Holder{current: p, logger: xlog.WithComponent("content"), Debounce: DefaultDebounce}
}

// Get returns the active pack.
func (h *Holder) Get() *Pack {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to be called with each successfully reloaded pack.
func (h *Holder) OnReload(fn func(*Pack)) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload re-reads the pack file. An invalid file keeps the previous pack.
func (h *Holder) Reload() error {
	if h.path == "" {
		return nil
	}
	p, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).
			Str(xlog.FieldEvent, "content.reload_failed").
			Str("path", h.path).
			Msg("content reload failed; keeping previous pack")
		return err
	}

	h.mu.Lock()
	h.current = p
	h.mu.Unlock()

	h.listenersMu.Lock()
	listeners := append([]func(*Pack){}, h.listeners...)
	h.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(p)
	}

	h.logger.Info().
		Str(xlog.FieldEvent, "content.reloaded").
		Int("questions", len(p.Quiz)).
		Int("notes", len(p.Rhythm.Notes)).
		Msg("content pack reloaded")
	return nil
}

// Watch reloads the pack whenever its file changes, until ctx is done. It
// watches the parent directory so atomic replace-by-rename is seen too.
// Without a path it just waits for ctx.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("content: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		return fmt.Errorf("content: watch %s: %w", h.path, err)
	}
	h.logger.Info().
		Str(xlog.FieldEvent, "content.watcher_started").
		Str("path", h.path).
		Msg("watching content pack")

	target := filepath.Clean(h.path)
	var (
		debounce *time.Timer
		fire     = make(chan struct{}, 1)
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(h.Debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			_ = h.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn().Err(err).
				Str(xlog.FieldEvent, "content.watcher_error").
				Msg("content watcher error")
		}
	}
}

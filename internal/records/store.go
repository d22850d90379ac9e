// Package records persists best-score values under a fixed application prefix.
//
// Values are JSON-encoded integers or booleans. Reads validate the schema and
// fall back to the caller's default; writes never fail the caller.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/metrics"
)

// DefaultPrefix namespaces every key written by the arcade.
const DefaultPrefix = "arcade_"

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("records: store closed")

// Backend is a flat key/value store.
type Backend interface {
	// Get returns the raw value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Keys lists keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Book gives typed, namespaced, improve-only access to a Backend.
type Book struct {
	backend Backend
	prefix  string
	logger  zerolog.Logger

	// mu serialises read-modify-write in Improve.
	mu sync.Mutex
}

// NewBook wraps backend. An empty prefix selects DefaultPrefix.
func NewBook(backend Backend, prefix string) *Book {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Book{
		backend: backend,
		prefix:  prefix,
		logger:  xlog.WithComponent("records"),
	}
}

// Key returns the namespaced storage key for name.
func (b *Book) Key(name string) string {
	return b.prefix + name
}

// Int reads an integer record, returning fallback when the key is absent,
// unreadable, or not a non-negative JSON integer.
func (b *Book) Int(ctx context.Context, name string, fallback int) int {
	if v, ok := b.lookupInt(ctx, name); ok {
		return v
	}
	return fallback
}

// Bool reads a boolean flag with the same fallback rules as Int.
func (b *Book) Bool(ctx context.Context, name string, fallback bool) bool {
	raw, ok := b.read(ctx, name)
	if !ok {
		return fallback
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		b.schemaMismatch(name, "bool", err)
		return fallback
	}
	return v
}

// SetInt writes an integer record unconditionally. Failures are logged.
func (b *Book) SetInt(ctx context.Context, name string, value int) {
	if value < 0 {
		value = 0
	}
	b.write(ctx, name, value)
}

// SetBool writes a boolean flag. Failures are logged.
func (b *Book) SetBool(ctx context.Context, name string, value bool) {
	b.write(ctx, name, value)
}

// Improve stores value only when it beats the current record. For
// higher-is-better records an absent key counts as zero; for lower-is-better
// records any first value wins. It returns the best value after the call.
func (b *Book) Improve(ctx context.Context, name string, value int, lowerIsBetter bool) (best int, improved bool) {
	if value < 0 {
		value = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.lookupInt(ctx, name)
	switch {
	case lowerIsBetter:
		improved = !ok || value < current
	default:
		improved = value > current
	}
	if !improved {
		return current, false
	}

	b.write(ctx, name, value)
	metrics.RecordImproved(name)
	return value, true
}

// All returns every integer record under the prefix, keyed by name.
func (b *Book) All(ctx context.Context) map[string]int {
	out := make(map[string]int)
	keys, err := b.backend.Keys(ctx, b.prefix)
	if err != nil {
		metrics.RecordStoreError("keys")
		b.logger.Warn().Err(err).Str(xlog.FieldEvent, "records.keys_failed").Msg("listing records failed")
		return out
	}
	sort.Strings(keys)
	for _, key := range keys {
		name := strings.TrimPrefix(key, b.prefix)
		if v, ok := b.lookupInt(ctx, name); ok {
			out[name] = v
		}
	}
	return out
}

func (b *Book) lookupInt(ctx context.Context, name string) (int, bool) {
	raw, ok := b.read(ctx, name)
	if !ok {
		return 0, false
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		b.schemaMismatch(name, "int", err)
		return 0, false
	}
	if v < 0 {
		b.schemaMismatch(name, "int", fmt.Errorf("negative value %d", v))
		return 0, false
	}
	return v, true
}

func (b *Book) read(ctx context.Context, name string) ([]byte, bool) {
	raw, ok, err := b.backend.Get(ctx, b.Key(name))
	if err != nil {
		metrics.RecordStoreError("get")
		b.logger.Warn().Err(err).
			Str(xlog.FieldKey, b.Key(name)).
			Str(xlog.FieldEvent, "records.read_failed").
			Msg("record store unavailable; using fallback")
		return nil, false
	}
	return raw, ok
}

func (b *Book) write(ctx context.Context, name string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := b.backend.Set(ctx, b.Key(name), raw); err != nil {
		metrics.RecordStoreError("set")
		b.logger.Warn().Err(err).
			Str(xlog.FieldKey, b.Key(name)).
			Str(xlog.FieldEvent, "records.write_failed").
			Msg("record write dropped")
	}
}

func (b *Book) schemaMismatch(name, want string, err error) {
	b.logger.Debug().Err(err).
		Str(xlog.FieldKey, b.Key(name)).
		Str("want", want).
		Str(xlog.FieldEvent, "records.schema_mismatch").
		Msg("stored value does not match schema; using fallback")
}

package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// FileStore keeps all records in one JSON object on disk. Every Set
// rewrites the file through a pending file so a crash never leaves a
// truncated record file behind.
type FileStore struct {
	path string

	mu     sync.Mutex
	data   map[string]json.RawMessage
	closed bool
}

// NewFileStore loads path if it exists. A corrupt file is treated as empty so
// the arcade keeps working; the next write replaces it.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("records: create dir: %w", err)
	}
	fs := &FileStore{path: path, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("records: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(raw, &fs.data); err != nil {
			fs.data = make(map[string]json.RawMessage)
		}
	}
	return fs, nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false, ErrClosed
	}
	v, ok := f.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if !json.Valid(value) {
		return fmt.Errorf("records: value for %q is not JSON", key)
	}
	prev, had := f.data[key]
	f.data[key] = append(json.RawMessage(nil), value...)
	if err := f.flushLocked(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	var out []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FileStore) flushLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("records: encode: %w", err)
	}

	pending, err := renameio.NewPendingFile(f.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("records: create pending file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after CloseAtomicallyReplace

	if _, err := pending.Write(raw); err != nil {
		return fmt.Errorf("records: write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("records: replace %s: %w", f.path, err)
	}
	return nil
}

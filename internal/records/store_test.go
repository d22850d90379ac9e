package records

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendFactory opens a fresh backend and a function that reopens the same
// underlying storage, simulating a page reload.
type backendFactory func(t *testing.T) (open func() Backend)

func factories() map[string]backendFactory {
	return map[string]backendFactory{
		"sqlite": func(t *testing.T) func() Backend {
			path := filepath.Join(t.TempDir(), "records.db")
			return func() Backend {
				s, err := NewSQLiteStore(path)
				require.NoError(t, err)
				return s
			}
		},
		"file": func(t *testing.T) func() Backend {
			path := filepath.Join(t.TempDir(), "records.json")
			return func() Backend {
				s, err := NewFileStore(path)
				require.NoError(t, err)
				return s
			}
		},
		"redis": func(t *testing.T) func() Backend {
			mr := miniredis.RunT(t)
			return func() Backend {
				return NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
			}
		},
	}
}

func TestRecordRoundTripAcrossReload(t *testing.T) {
	ctx := context.Background()
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			open := factory(t)

			first := open()
			book := NewBook(first, "")
			assert.Equal(t, 5, book.Int(ctx, "quiz_record", 5), "unset key returns fallback")
			assert.True(t, book.Bool(ctx, "sound_muted", true), "unset flag returns fallback")

			book.SetInt(ctx, "quiz_record", 12)
			book.SetBool(ctx, "sound_muted", false)
			assert.Equal(t, 12, book.Int(ctx, "quiz_record", 0))
			require.NoError(t, first.Close())

			second := open()
			defer second.Close()
			reloaded := NewBook(second, "")
			assert.Equal(t, 12, reloaded.Int(ctx, "quiz_record", 0))
			assert.False(t, reloaded.Bool(ctx, "sound_muted", true))
			assert.Equal(t, map[string]int{"quiz_record": 12}, reloaded.All(ctx))
		})
	}
}

func TestImproveIsMonotonic(t *testing.T) {
	ctx := context.Background()
	book := NewBook(NewMemoryStore(), "")

	best, improved := book.Improve(ctx, "quiz_record", 0, false)
	assert.False(t, improved, "zero never beats an empty higher-is-better record")
	assert.Equal(t, 0, best)

	best, improved = book.Improve(ctx, "quiz_record", 8, false)
	assert.True(t, improved)
	assert.Equal(t, 8, best)

	best, improved = book.Improve(ctx, "quiz_record", 5, false)
	assert.False(t, improved)
	assert.Equal(t, 8, best)
	assert.Equal(t, 8, book.Int(ctx, "quiz_record", 0))

	best, improved = book.Improve(ctx, "quiz_record", 8, false)
	assert.False(t, improved, "ties do not overwrite")
	assert.Equal(t, 8, best)
}

func TestImproveLowerIsBetter(t *testing.T) {
	ctx := context.Background()
	book := NewBook(NewMemoryStore(), "")

	_, improved := book.Improve(ctx, "collector_best_ms", 9000, true)
	assert.True(t, improved, "first value always wins")

	_, improved = book.Improve(ctx, "collector_best_ms", 12000, true)
	assert.False(t, improved)

	best, improved := book.Improve(ctx, "collector_best_ms", 7000, true)
	assert.True(t, improved)
	assert.Equal(t, 7000, best)
}

func TestSchemaMismatchFallsBack(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	book := NewBook(mem, "")

	require.NoError(t, mem.Set(ctx, book.Key("quiz_record"), []byte(`"twelve"`)))
	require.NoError(t, mem.Set(ctx, book.Key("simon_record"), []byte(`true`)))
	require.NoError(t, mem.Set(ctx, book.Key("rhythm_record"), []byte(`-4`)))
	require.NoError(t, mem.Set(ctx, book.Key("flag"), []byte(`3`)))

	assert.Equal(t, 1, book.Int(ctx, "quiz_record", 1))
	assert.Equal(t, 2, book.Int(ctx, "simon_record", 2))
	assert.Equal(t, 3, book.Int(ctx, "rhythm_record", 3))
	assert.True(t, book.Bool(ctx, "flag", true))

	_, improved := book.Improve(ctx, "quiz_record", 1, false)
	assert.True(t, improved, "corrupt record is replaced by any valid improvement")
	assert.Equal(t, 1, book.Int(ctx, "quiz_record", 0))
}

type failingBackend struct{ MemoryStore }

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("storage unavailable")
}

func (failingBackend) Set(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

func TestUnavailableStorageIsSwallowed(t *testing.T) {
	ctx := context.Background()
	book := NewBook(&failingBackend{}, "")

	assert.NotPanics(t, func() {
		book.SetInt(ctx, "quiz_record", 4)
		book.SetBool(ctx, "seen_intro", true)
	})
	assert.Equal(t, 7, book.Int(ctx, "quiz_record", 7))

	best, improved := book.Improve(ctx, "quiz_record", 9, false)
	assert.True(t, improved, "improvement is reported even when the write is dropped")
	assert.Equal(t, 9, best)
}

func TestPrefixNamespacing(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	a := NewBook(mem, "site_a_")
	b := NewBook(mem, "site_b_")

	a.SetInt(ctx, "quiz_record", 3)
	assert.Equal(t, "site_a_quiz_record", a.Key("quiz_record"))
	assert.Equal(t, 0, b.Int(ctx, "quiz_record", 0))
	assert.Empty(t, b.All(ctx))
}

func TestKeysMatchLiteralPrefix(t *testing.T) {
	ctx := context.Background()
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)()
			defer backend.Close()

			for _, prefix := range []string{"räk_", "a*[b]?_"} {
				book := NewBook(backend, prefix)
				book.SetInt(ctx, "quiz_record", 7)
			}
			NewBook(backend, "räz_").SetInt(ctx, "quiz_record", 1)
			NewBook(backend, "aX[b]?_").SetInt(ctx, "quiz_record", 2)
			NewBook(backend, "ab_").SetInt(ctx, "quiz_record", 3)

			assert.Equal(t, map[string]int{"quiz_record": 7}, NewBook(backend, "räk_").All(ctx))
			assert.Equal(t, map[string]int{"quiz_record": 7}, NewBook(backend, "a*[b]?_").All(ctx))
		})
	}
}

func TestOpen(t *testing.T) {
	b, err := Open(Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, b)

	_, err = Open(Options{Driver: DriverSQLite})
	assert.Error(t, err)

	_, err = Open(Options{Driver: "leveldb"})
	assert.Error(t, err)

	fs, err := Open(Options{Driver: DriverFile, Path: filepath.Join(t.TempDir(), "r.json")})
	require.NoError(t, err)
	assert.NoError(t, fs.Close())
}

package records

import (
	"fmt"
	"strings"
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// Options select and configure a backend.
type Options struct {
	Driver string
	Path   string // sqlite database or JSON file
	Redis  RedisConfig
}

// Open constructs the backend named by opts.Driver.
func Open(opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("records: sqlite driver requires a path")
		}
		return NewSQLiteStore(opts.Path)
	case DriverFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("records: file driver requires a path")
		}
		return NewFileStore(opts.Path)
	case DriverRedis:
		if opts.Redis.Addr == "" {
			return nil, fmt.Errorf("records: redis driver requires an address")
		}
		return NewRedisStore(opts.Redis)
	default:
		return nil, fmt.Errorf("records: unknown driver %q", opts.Driver)
	}
}

// Package config loads the arcade configuration.
//
// Precedence is environment over file over defaults. The YAML file is decoded
// strictly on top of the defaults, so it only needs the keys it changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MJE43/emoji-arcade/internal/games"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/records"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

const appDirName = "emoji-arcade"

// Config is the full arcade configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	// DataDir holds the default record and history databases.
	DataDir string `yaml:"data_dir"`
	// ContentPath points at a YAML content pack; empty uses the built-in pack.
	ContentPath string `yaml:"content_path"`

	Records  RecordsConfig  `yaml:"records"`
	History  HistoryConfig  `yaml:"history"`
	HTTP     HTTPConfig     `yaml:"http"`
	Autoplay AutoplayConfig `yaml:"autoplay"`
	Games    games.Settings `yaml:"games"`
}

// RecordsConfig selects the record backend.
type RecordsConfig struct {
	Driver string      `yaml:"driver"` // memory, sqlite, file or redis
	Path   string      `yaml:"path"`
	Prefix string      `yaml:"prefix"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig addresses the Redis record backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HistoryConfig controls session history persistence.
type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	BufferSize int    `yaml:"buffer_size"`
}

// HTTPConfig controls the headless API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	RateLimit       int           `yaml:"rate_limit"` // requests per minute per client, 0 disables
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AutoplayConfig bounds scripted strategies.
type AutoplayConfig struct {
	Timeout time.Duration `yaml:"timeout"` // per choose() call
	Delay   time.Duration `yaml:"delay"`   // pause between moves
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		LogLevel: "info",
		DataDir:  DefaultDataDir(),
		Records: RecordsConfig{
			Driver: records.DriverSQLite,
			Prefix: records.DefaultPrefix,
		},
		History: HistoryConfig{Enabled: true, BufferSize: 256},
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:17888",
			RateLimit:       600,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Autoplay: AutoplayConfig{Timeout: 250 * time.Millisecond, Delay: 200 * time.Millisecond},
		Games:    games.DefaultSettings(),
	}
}

// DefaultDataDir returns an OS-appropriate writable directory.
func DefaultDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appDirName)
	}
	return "."
}

// Loader builds a Config from defaults, an optional file and the environment.
type Loader struct {
	Path string
	// Lookup replaces os.LookupEnv, mainly for tests.
	Lookup func(string) (string, bool)
}

// Load reads path (optional) and the process environment.
func Load(path string) (Config, error) {
	return Loader{Path: path}.Load()
}

// Load applies defaults, then the file, then ARCADE_* variables, and
// validates the result.
func (l Loader) Load() (Config, error) {
	cfg := Default()
	if l.Path != "" {
		data, err := os.ReadFile(l.Path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", l.Path, err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", l.Path, err)
		}
	}

	env := newEnvReader(xlog.WithComponent("config"), l.Lookup)
	applyEnv(env, &cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(e *envReader, cfg *Config) {
	e.string("ARCADE_LOG_LEVEL", &cfg.LogLevel)
	e.string("ARCADE_DATA_DIR", &cfg.DataDir)
	e.string("ARCADE_CONTENT", &cfg.ContentPath)

	e.string("ARCADE_RECORDS_DRIVER", &cfg.Records.Driver)
	e.string("ARCADE_RECORDS_PATH", &cfg.Records.Path)
	e.string("ARCADE_RECORDS_PREFIX", &cfg.Records.Prefix)
	e.string("ARCADE_REDIS_ADDR", &cfg.Records.Redis.Addr)
	e.string("ARCADE_REDIS_PASSWORD", &cfg.Records.Redis.Password)
	e.int("ARCADE_REDIS_DB", &cfg.Records.Redis.DB)

	e.bool("ARCADE_HISTORY", &cfg.History.Enabled)
	e.string("ARCADE_HISTORY_PATH", &cfg.History.Path)

	e.string("ARCADE_HTTP_ADDR", &cfg.HTTP.Addr)
	e.int("ARCADE_RATE_LIMIT", &cfg.HTTP.RateLimit)

	e.duration("ARCADE_AUTOPLAY_TIMEOUT", &cfg.Autoplay.Timeout)
	e.duration("ARCADE_AUTOPLAY_DELAY", &cfg.Autoplay.Delay)

	e.duration("ARCADE_COLLECTOR_TIME_LIMIT", &cfg.Games.Collector.TimeLimit)
	e.int("ARCADE_PENALTY_SHOTS", &cfg.Games.Penalty.Shots)
}

// resolvePaths fills database paths left empty from DataDir.
func (c *Config) resolvePaths() {
	if abs, err := filepath.Abs(c.DataDir); err == nil {
		c.DataDir = abs
	}
	if c.Records.Path == "" {
		switch strings.ToLower(c.Records.Driver) {
		case records.DriverSQLite:
			c.Records.Path = filepath.Join(c.DataDir, "records.db")
		case records.DriverFile:
			c.Records.Path = filepath.Join(c.DataDir, "records.json")
		}
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.DataDir, "history.db")
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Records.Driver) {
	case records.DriverMemory, records.DriverSQLite, records.DriverFile:
	case records.DriverRedis:
		if c.Records.Redis.Addr == "" {
			errs = append(errs, errors.New("records.redis.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("records.driver %q is not one of memory, sqlite, file, redis", c.Records.Driver))
	}
	if c.History.BufferSize < 1 {
		errs = append(errs, errors.New("history.buffer_size must be positive"))
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("http.rate_limit must not be negative"))
	}
	if c.Autoplay.Timeout <= 0 {
		errs = append(errs, errors.New("autoplay.timeout must be positive"))
	}
	if c.Autoplay.Delay < 0 {
		errs = append(errs, errors.New("autoplay.delay must not be negative"))
	}
	if err := c.Games.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RecordOptions converts the records section for records.Open.
func (c Config) RecordOptions() records.Options {
	return records.Options{
		Driver: c.Records.Driver,
		Path:   c.Records.Path,
		Redis: records.RedisConfig{
			Addr:     c.Records.Redis.Addr,
			Password: c.Records.Redis.Password,
			DB:       c.Records.Redis.DB,
		},
	}
}

// EnsureDataDir creates DataDir when a file-backed store needs it.
func (c Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("config: create data dir: %w", err)
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// envReader reads ARCADE_* overrides and remembers which keys it consumed.
type envReader struct {
	logger   zerolog.Logger
	lookup   func(string) (string, bool)
	consumed map[string]struct{}
}

func newEnvReader(logger zerolog.Logger, lookup func(string) (string, bool)) *envReader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &envReader{logger: logger, lookup: lookup, consumed: make(map[string]struct{})}
}

func (e *envReader) value(key string) (string, bool) {
	e.consumed[key] = struct{}{}
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "token")
}

func (e *envReader) string(key string, dst *string) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	ev := e.logger.Debug().Str("key", key).Str("source", "environment")
	if e.sensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	*dst = v
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.logger.Warn().Str("key", key).Str("value", v).Int("default", *dst).Msg("invalid integer in environment variable, keeping configured value")
		return
	}
	e.logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	*dst = i
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.logger.Warn().Str("key", key).Str("value", v).Bool("default", *dst).Msg("invalid boolean in environment variable, keeping configured value")
		return
	}
	e.logger.Debug().Str("key", key).Bool("value", b).Str("source", "environment").Msg("using environment variable")
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.logger.Warn().Str("key", key).Str("value", v).Dur("default", *dst).Msg("invalid duration in environment variable, keeping configured value")
		return
	}
	e.logger.Debug().Str("key", key).Dur("value", d).Str("source", "environment").Msg("using environment variable")
	*dst = d
}

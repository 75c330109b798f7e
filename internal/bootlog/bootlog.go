// Package bootlog constructs the single root zerolog.Logger each process
// derives its per-component loggers from.
package bootlog

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a root logger at the given level, writing pretty console output
// when pretty is true (local/dev) and structured JSON otherwise (containers,
// where a log collector expects one JSON object per line).
func New(level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if pretty {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		base = zerolog.New(os.Stderr)
	}
	return base.Level(lvl).With().Timestamp().Logger()
}

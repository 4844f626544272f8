// Package streamlog centralizes the zerolog setup shared by every component
// in the module: one global logger, scoped per component via With().
package streamlog

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var once sync.Once

// Init configures the global zerolog logger with a console writer when
// pretty is true, otherwise structured JSON to stdout. Safe to call more
// than once; only the first call takes effect.
func Init(level zerolog.Level, pretty bool) {
	once.Do(func() {
		zerolog.SetGlobalLevel(level)
		if pretty {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		}
	})
}

// Component returns a logger scoped to name, e.g. streamlog.Component("rtsp.session").
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// Nop returns a logger that discards everything, used as the zero-value
// default for components constructed without an explicit logger option.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the process logger for env. Development logs at debug level to
// a console writer; every other environment logs JSON at info level.
func New(env string) zerolog.Logger {
	return newLogger(env, os.Stdout)
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if isDevelopment(env) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
		return zerolog.New(out).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

func isDevelopment(env string) bool {
	switch env {
	case "", "dev", "development", "local":
		return true
	}
	return false
}

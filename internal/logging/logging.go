package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the process logger. LOG_LEVEL and LOG_PRETTY are read here so
// logging works before config.Load has run.
func New(service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			level = l
		}
	}

	var w = zerolog.NewConsoleWriter()
	w.TimeFormat = time.RFC3339
	if os.Getenv("LOG_PRETTY") != "true" {
		return zerolog.New(os.Stderr).Level(level).With().
			Timestamp().Str("service", service).Logger()
	}
	return zerolog.New(w).Level(level).With().
		Timestamp().Str("service", service).Logger()
}

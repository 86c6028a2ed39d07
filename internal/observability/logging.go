package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a structured JSON logger on stdout at the level named
// by VAULT_LOG_LEVEL (default info).
func NewLogger(component string) zerolog.Logger {
	return New(os.Stdout, component, os.Getenv("VAULT_LOG_LEVEL"))
}

// New creates a JSON logger on w tagged with component.
func New(w io.Writer, component, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Component derives a child logger for a subsystem.
func Component(parent zerolog.Logger, component string) zerolog.Logger {
	return parent.With().Str("component", component).Logger()
}

func parseLogLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

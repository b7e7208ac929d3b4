// Package logger builds the zerolog logger used for operational logs.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/rs/zerolog"
)

// New builds a structured logger with RFC3339 timestamps. Pretty output
// uses the console writer; otherwise lines are JSON.
func New(w io.Writer, level zerolog.Level, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ForStderr returns a logger on stderr, pretty when stderr is a terminal.
func ForStderr(level string) zerolog.Logger {
	return New(os.Stderr, ParseLevel(level), IsTerminal(os.Stderr))
}

// ParseLevel maps a config string to a level. Unknown or empty values
// give warn, which keeps one-shot CLI commands quiet.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.WarnLevel
	}
	return lvl
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

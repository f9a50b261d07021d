package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// New builds the process logger. Console output keeps the emoji markers in
// the message text; json output is one object per line.
func New(w io.Writer, format Format, verbose bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	if format == FormatJSON {
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}

	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// Nop is used by tests and library callers that do not care about output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

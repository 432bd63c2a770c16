package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console logger at the given level. Unknown level strings fall
// back to info.
func New(levelStr string) zerolog.Logger {
	return NewWithOutput(levelStr, os.Stderr)
}

// NewWithOutput is New with an explicit destination writer.
func NewWithOutput(levelStr string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

package logging

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

// Level picks the log level from the configured name and the number of -v
// flags. Each -v lowers the level one step below the configured one.
func Level(name string, verbosity int) log.Level {
	level, err := log.ParseLevel(name)
	if err != nil {
		level = log.WarnLevel
	}
	for i := 0; i < verbosity && level > log.DebugLevel; i++ {
		switch level {
		case log.FatalLevel:
			level = log.ErrorLevel
		case log.ErrorLevel:
			level = log.WarnLevel
		case log.WarnLevel:
			level = log.InfoLevel
		default:
			level = log.DebugLevel
		}
	}
	return level
}

// New returns a slog.Logger writing human-readable lines to w.
func New(w io.Writer, level log.Level) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Prefix:          "rc4me",
		Level:           level,
		ReportTimestamp: level <= log.DebugLevel,
	})
	return slog.New(handler)
}

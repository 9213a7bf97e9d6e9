// logger.go - Structured logging for the zeth client
package main

import (
	"io"
	"os"
	"time"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Logger owns the process logger and the files behind it.
type Logger struct {
	zerolog.Logger
	files []*os.File
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// NewLogger writes to the console, to logFile when set, and WARN and above
// to auditFile when set. gnark's compile and prove output goes to the same
// sinks.
func NewLogger(level, logFile, auditFile string) (*Logger, error) {
	l := &Logger{}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}}

	if logFile != "" {
		file, err := openAppend(logFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		l.files = append(l.files, file)
		writers = append(writers, file)
	}

	if auditFile != "" {
		file, err := openAppend(auditFile)
		if err != nil {
			l.Close()
			return nil, errors.Wrap(err, "failed to open audit file")
		}
		l.files = append(l.files, file)
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: file},
			Level:  zerolog.WarnLevel,
		})
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(level)).
		With().Timestamp().Logger()
	gnarklogger.Set(l.Logger.With().Str("module", "gnark").Logger())
	return l, nil
}

// Close closes the log files.
func (l *Logger) Close() error {
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Package logger provides the structured logging interface used across the
// supervisor, backed by zerolog. Entries go to stderr, since stdout is
// inherited by the supervised child, and optionally to a daily rotated file.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Logger is an interface for structured, levelled logging. Loggers may be
// derived with With for component-scoped or connection-scoped fields.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a Logger that adds fields to every entry. The receiver
	// is unchanged.
	With(fields ...Field) Logger

	// Close releases the log file, if any. It is safe to call multiple times.
	Close() error
}

// Options configures NewLogger.
type Options struct {
	// Service is added as the "service" field to every entry.
	Service string
	// Level is a zerolog level name ("debug", "info", ...). Empty means info.
	Level string
	// Dir enables daily rotated log files named {Service}_{date}.log in Dir.
	Dir string
	// Output overrides stderr; mostly useful in tests.
	Output io.Writer
}

type zerologLogger struct {
	logger     zerolog.Logger
	fileWriter *DailyFileWriter
}

// NewLogger builds a Logger from opts.
//
// Returns:
//   - The Logger, or an error if the level is unknown or the log
//     directory cannot be prepared
func NewLogger(opts Options) (Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}

		level = parsed
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var fileWriter *DailyFileWriter
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		w, err := NewDailyFileWriter(opts.Service, opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create file writer: %w", err)
		}

		fileWriter = w
		out = io.MultiWriter(out, fileWriter)
	}

	return &zerologLogger{
		logger:     zerolog.New(out).With().Str("service", opts.Service).Timestamp().Logger().Level(level),
		fileWriter: fileWriter,
	}, nil
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With derives a logger sharing the file writer but not owning it.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
	}
}

func (z *zerologLogger) Close() error {
	if z.fileWriter != nil {
		return z.fileWriter.Close()
	}

	return nil
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}

// Err is shorthand for the conventional "error" field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

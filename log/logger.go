// Package log provides structured logging with invocation context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the parser and script runner (structured fields)
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/otacore/types"
)

// Logger provides structured logging with invocation context.
// All log entries include the invocation identity fields.
type Logger struct {
	zap   *zap.Logger
	meta  *types.InvocationMeta
	extra []zap.Field
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with invocation context.
// Output defaults to os.Stderr.
func NewLogger(meta *types.InvocationMeta) *Logger {
	return newLoggerWithWriter(meta, os.Stderr)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// WithOutput returns a new logger with a different output writer.
// Context fields are rebuilt on the new core.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	nl := newLoggerWithWriter(l.meta, w)
	if len(l.extra) > 0 {
		nl.extra = append([]zap.Field(nil), l.extra...)
		nl.zap = nl.zap.With(nl.extra...)
	}
	return nl
}

// With returns a child logger carrying an extra context field.
func (l *Logger) With(key string, value any) *Logger {
	f := zap.Any(key, value)
	extra := append(append([]zap.Field(nil), l.extra...), f)
	return &Logger{zap: l.zap.With(f), meta: l.meta, extra: extra}
}

func newLoggerWithWriter(meta *types.InvocationMeta, w io.Writer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)

	if meta == nil {
		return &Logger{zap: zap.New(core)}
	}

	contextFields := []zap.Field{
		zap.String("invocation_id", meta.InvocationID),
		zap.String("component", meta.Component),
	}
	if meta.State != nil {
		contextFields = append(contextFields, zap.String("state", meta.State.String()))
	}
	if meta.Action != nil {
		contextFields = append(contextFields, zap.String("action", meta.Action.String()))
	}
	if meta.ArtifactName != nil {
		contextFields = append(contextFields, zap.String("artifact", *meta.ArtifactName))
	}

	return &Logger{zap: zap.New(core).With(contextFields...), meta: meta}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}

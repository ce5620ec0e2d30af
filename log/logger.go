// Package log provides structured logging with session context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the acquisition loop (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels accepted on the command line.
const (
	VerbosityNone   = 0 // errors only
	VerbosityLow    = 1 // warnings
	VerbosityMedium = 2 // informational
	VerbosityHigh   = 3 // per-buffer diagnostics
)

// SessionMeta identifies the acquisition session a logger reports for.
// Empty fields are omitted from log entries.
type SessionMeta struct {
	SessionID string
	Detector  string
	Device    string
}

// Logger provides structured logging with session context.
// All log entries include the session identity fields.
type Logger struct {
	zap   *zap.Logger
	level zapcore.Level
	meta  SessionMeta
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// LevelForVerbosity maps a 0..3 verbosity to a zap level.
func LevelForVerbosity(v int) (zapcore.Level, error) {
	switch v {
	case VerbosityNone:
		return zapcore.ErrorLevel, nil
	case VerbosityLow:
		return zapcore.WarnLevel, nil
	case VerbosityMedium:
		return zapcore.InfoLevel, nil
	case VerbosityHigh:
		return zapcore.DebugLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("verbosity %d out of range 0..3", v)
	}
}

// NewLogger creates a new logger with session context at the given level.
// Output defaults to os.Stderr.
func NewLogger(meta SessionMeta, level zapcore.Level) *Logger {
	return newLoggerWithWriter(meta, level, os.Stderr)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zapcore.DebugLevel}
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return newLoggerWithWriter(l.meta, l.level, w)
}

// WithSession returns a new logger carrying meta instead of the current
// session context, keeping level and output.
func (l *Logger) WithSession(meta SessionMeta) *Logger {
	return &Logger{
		zap:   l.zap.With(metaFields(meta)...),
		level: l.level,
		meta:  meta,
	}
}

func newLoggerWithWriter(meta SessionMeta, level zapcore.Level, w io.Writer) *Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)

	return &Logger{
		zap:   zap.New(core).With(metaFields(meta)...),
		level: level,
		meta:  meta,
	}
}

func metaFields(meta SessionMeta) []zap.Field {
	var fields []zap.Field
	if meta.SessionID != "" {
		fields = append(fields, zap.String("session_id", meta.SessionID))
	}
	if meta.Detector != "" {
		fields = append(fields, zap.String("detector", meta.Detector))
	}
	if meta.Device != "" {
		fields = append(fields, zap.String("device", meta.Device))
	}
	return fields
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
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

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
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

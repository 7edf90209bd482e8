// Package logger provides structured logging for the campaign engine.
// It supports multiple log levels, output formats, and contextual fields.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry so contextual fields accumulate through
// WithModule/WithField chains without mutating the parent.
type Logger struct {
	entry *logrus.Entry
}

// Config holds logger configuration
type Config struct {
	Level      string
	Format     string
	OutputFile string
}

// New creates a new logger instance with the given configuration
func New(cfg Config) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}

	writers := []io.Writer{os.Stdout}

	if cfg.OutputFile != "" {
		logDir := filepath.Dir(cfg.OutputFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}

		file, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	log.SetOutput(io.MultiWriter(writers...))

	return &Logger{entry: logrus.NewEntry(log)}, nil
}

// WithField returns a new logger with the given field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a new logger with multiple fields added
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithModule returns a new logger with the module field set
func (l *Logger) WithModule(module string) *Logger {
	return l.WithField("module", module)
}

// WithError returns a new logger with the error field added
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

// Debug logs a debug message with context fields
func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

// Info logs an info message with context fields
func (l *Logger) Info(msg string) { l.entry.Info(msg) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

// Warn logs a warning message with context fields
func (l *Logger) Warn(msg string) { l.entry.Warn(msg) }

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

// Error logs an error message with context fields
func (l *Logger) Error(msg string) { l.entry.Error(msg) }

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// ActionOutcome logs the recorded outcome of a campaign action
func (l *Logger) ActionOutcome(targetKey, kind, outcome, reason string) {
	fields := map[string]interface{}{
		"target":  targetKey,
		"kind":    kind,
		"outcome": outcome,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	l.WithFields(fields).Info("Action outcome")
}

// RateLimit logs rate limit events
func (l *Logger) RateLimit(kind string, used int, cap int) {
	l.WithFields(map[string]interface{}{
		"kind": kind,
		"used": used,
		"cap":  cap,
	}).Warn("Daily cap reached")
}

// SecurityEvent logs security-related events (challenge pages, logouts)
func (l *Logger) SecurityEvent(eventType string, details string) {
	l.WithFields(map[string]interface{}{
		"security_event": eventType,
		"details":        details,
	}).Warn("Security event detected")
}

// HumanizePlan logs a generated timing/motion plan at debug level
func (l *Logger) HumanizePlan(planType string, details map[string]interface{}) {
	fields := map[string]interface{}{"plan": planType}
	for k, v := range details {
		fields[k] = v
	}
	l.WithFields(fields).Debug("Humanize plan generated")
}

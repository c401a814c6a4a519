// Package logging provides the structured logger shared by every component of
// the service, together with the trace ID plumbing used by HTTP middleware.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultLogFile    = "todo-service.log"
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

// Config configures log level, encoding and destination.
type Config struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // json or text
	Output string `yaml:"output" env:"LOG_OUTPUT"` // stdout, stderr or file
	File   string `yaml:"file" env:"LOG_FILE"`

	MaxSizeMB  int  `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int  `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAgeDays int  `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS"`
	Compress   bool `yaml:"compress" env:"LOG_COMPRESS"`
}

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// New builds a logger for the named component.
func New(component string, cfg Config) *Logger {
	base := logrus.New()
	base.SetLevel(parseLevel(cfg.Level))

	switch strings.ToLower(cfg.Format) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	base.SetOutput(openOutput(cfg))
	return wrap(base, component)
}

// NewDefault returns an info-level JSON logger writing to stdout.
func NewDefault(component string) *Logger {
	return New(component, Config{})
}

// NewNop returns a logger that discards everything. Tests use it to keep output quiet.
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return wrap(base, "nop")
}

func wrap(base *logrus.Logger, component string) *Logger {
	if component == "" {
		return &Logger{Entry: logrus.NewEntry(base)}
	}
	return &Logger{Entry: base.WithField("component", component)}
}

// Named returns a child logger for a sub-component sharing the same sink.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}

// WithTrace returns an entry annotated with the trace ID carried by ctx, if any.
func (l *Logger) WithTrace(ctx context.Context) *logrus.Entry {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return l.Entry.WithField("trace_id", traceID)
	}
	return l.Entry
}

// LogRequest records a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithTrace(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Info("request completed")
	}
}

// LogSecurityEvent records events such as rate limiting.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithTrace(ctx).WithFields(fields).WithField("event", event).Warn("security event")
}

func parseLevel(raw string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func openOutput(cfg Config) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr
	case "file":
		path := cfg.File
		if path == "" {
			path = DefaultLogFile
		}
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return os.Stdout
			}
		}
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    orDefault(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
	default:
		return os.Stdout
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

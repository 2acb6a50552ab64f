// Package logger wraps logrus with the configuration shape shared across
// Kartograph's components (outbox worker, bulk-loading strategy, staging
// manager).
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a wrapper around logrus.Logger.
type Logger struct {
	*logrus.Logger
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePrefix string `mapstructure:"file_prefix"`
}

// New creates a new logger instance from configuration.
func New(cfg LoggingConfig) *Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.FilePrefix == "" {
			cfg.FilePrefix = "kartograph"
		}
		logDir := "logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			logger.Errorf("failed to create logs directory: %v", err)
			break
		}
		logPath := filepath.Join(logDir, cfg.FilePrefix+".log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.Errorf("failed to open log file: %v", err)
			break
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
	default:
		logger.SetOutput(os.Stdout)
	}

	return &Logger{Logger: logger}
}

// NewDefault creates a logger with default configuration, tagged with a
// "component" field so its output is attributable when multiple components
// share one process (worker, staging manager, strategy).
func NewDefault(component string) *Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stdout)
	if component != "" {
		logger.AddHook(staticFieldHook{key: "component", value: component})
	}
	return &Logger{Logger: logger}
}

// staticFieldHook injects a constant field into every entry fired by the
// logger it's attached to.
type staticFieldHook struct {
	key   string
	value string
}

func (h staticFieldHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h staticFieldHook) Fire(entry *logrus.Entry) error {
	entry.Data[h.key] = h.value
	return nil
}

// WithField returns a new log entry with a field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a new log entry with multiple fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

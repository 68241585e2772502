// Package logger wraps logrus with the configuration used across the
// transactor.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a wrapper around logrus.Logger
type Logger struct {
	*logrus.Logger
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	Output     string
	FilePrefix string
}

// New creates a new logger instance
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
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.FilePrefix == "" {
			cfg.FilePrefix = "transactor"
		}
		logDir := "logs"
		err := os.MkdirAll(logDir, 0755)
		if err != nil {
			logger.Errorf("Failed to create logs directory: %v", err)
		} else {
			logPath := filepath.Join(logDir, cfg.FilePrefix+".log")
			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				logger.Errorf("Failed to open log file: %v", err)
			} else {
				logger.SetOutput(io.MultiWriter(os.Stdout, file))
			}
		}
	default:
		logger.SetOutput(os.Stdout)
	}

	return &Logger{
		Logger: logger,
	}
}

// NewDefault creates a new logger instance with default configuration
func NewDefault(name string) *Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stdout)
	return &Logger{Logger: logger}
}

// WithGame returns an entry scoped to one game address.  Long addresses are
// shortened to keep log lines readable.
func (l *Logger) WithGame(addr string) *logrus.Entry {
	return l.WithField("game", Shorthand(addr))
}

// WithComponent returns an entry scoped to a game address and a component
// name.  All component loops log through this.
func (l *Logger) WithComponent(addr, component string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"game":      Shorthand(addr),
		"component": component,
	})
}

// Shorthand compresses an address for log output, e.g. "3pNa..c1Ws".
func Shorthand(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:4] + ".." + addr[len(addr)-4:]
}

package log

import (
	"io"
	"os"

	"github.com/deploymenttheory/go-cryptodisk/internal/config"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a new logger. LOG_LEVEL overrides the configured level.
// With a log file configured, entries are appended there as JSON; otherwise
// they go to stderr as text.
func NewLogger(cfg *config.Config, version string) *logrus.Entry {
	if cfg == nil {
		cfg = config.Default()
	}

	log := logrus.New()
	log.SetLevel(getLogLevel(cfg.LogLevel))
	log.SetOutput(os.Stderr)
	log.Formatter = &logrus.TextFormatter{DisableTimestamp: true}

	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			log.Warnf("unable to log to file %s: %v", cfg.LogFile, err)
		} else {
			log.SetOutput(file)
			log.Formatter = &logrus.JSONFormatter{}
		}
	}

	return log.WithFields(logrus.Fields{
		"debug":   log.IsLevelEnabled(logrus.DebugLevel),
		"version": version,
	})
}

// NewDiscardLogger returns a logger that drops everything
func NewDiscardLogger() *logrus.Entry {
	log := logrus.New()
	log.Out = io.Discard
	return logrus.NewEntry(log)
}

func getLogLevel(configured string) logrus.Level {
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		return level
	}
	if level, err := logrus.ParseLevel(configured); err == nil {
		return level
	}
	return logrus.InfoLevel
}

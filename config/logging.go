package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logrus logger from c and returns it.
// Outside development, logs go to both stdout and LogFile.
func SetupLogging(c *Config) *logrus.Logger {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(strings.TrimSpace(c.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.AppEnv == "development" || c.LogFile == "" {
		logger.SetOutput(os.Stdout)
		return logger
	}
	if err := os.MkdirAll(filepath.Dir(c.LogFile), 0755); err != nil {
		logger.WithError(err).Warn("could not create logs directory, logging to stdout")
		return logger
	}
	file, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logger.WithError(err).Warn("could not open log file, logging to stdout")
		return logger
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return logger
}

package config

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/domain"
)

// NewLogger builds the process logger. Agents talking KQML over stdout must
// log elsewhere, so the output is passed in.
func NewLogger(cfg domain.LoggingConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if strings.ToLower(cfg.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Package log builds picotin's logger: a *logrus.Entry pre-populated with
// build metadata, switched between a verbose development logger and a
// quiet production one by AppConfig.Debug.
//
// picotin is a CLI that owns its stderr outright, so both loggers here
// write to stderr, the same destination env_logger used in the original
// Rust implementation.
package log

import (
	"os"

	"github.com/kazurin775/picotin/pkg/config"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a new logger carrying the build/version fields that
// every log line picks up.
func NewLogger(cfg *config.AppConfig) *logrus.Entry {
	var l *logrus.Logger
	if cfg.Debug {
		l = newDevelopmentLogger()
	} else {
		l = newProductionLogger()
	}

	return l.WithFields(logrus.Fields{
		"debug":     cfg.Debug,
		"version":   cfg.Version,
		"commit":    cfg.Commit,
		"buildDate": cfg.BuildDate,
	})
}

func getLogLevel() logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDevelopmentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(getLogLevel())
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	return l
}

func newProductionLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetLevel(logrus.ErrorLevel)
	return l
}

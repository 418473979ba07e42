package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the application logger for the given environment.
func New(environment string) (*zap.Logger, error) {
	var cfg zap.Config

	switch environment {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid environment: %s, must be 'production' or 'development'", environment)
	}

	return cfg.Build()
}

// NewContainerLog returns the logger used for container operations. Output goes
// to path, or to stderr when path is empty.
func NewContainerLog(path string, debug bool) (*logrus.Logger, error) {
	log := logrus.New()
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	if path == "" {
		log.SetOutput(os.Stderr)
		return log, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}
	logFile, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}
	log.SetOutput(logFile)
	return log, nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	logger  = newBaseLogger(os.Stdout)
	logFile *os.File
)

func newBaseLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	return l
}

// InitLogger mirrors every log line to the console and to an append-only log file.
func InitLogger(path, level string) error {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		logger.Warnf("Invalid log level '%s', defaulting to 'info'", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	CloseLogger()
	logFile = f
	logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
	return nil
}

func CloseLogger() {
	if logFile != nil {
		logger.SetOutput(os.Stdout)
		logFile.Close()
		logFile = nil
	}
}

func Log(level, message string) {
	switch strings.ToLower(level) {
	case "debug":
		logger.Debug(message)
	case "info":
		logger.Info(message)
	case "warn", "warning":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	case "critical":
		logger.WithField("severity", "critical").Error(message)
	default:
		logger.Info(message)
	}
}

func Logf(level, format string, args ...interface{}) {
	Log(level, fmt.Sprintf(format, args...))
}

package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the global log level, e.g. logrus.DebugLevel during development.
func SetLevel(level logrus.Level) {
	logger.SetLevel(level)
}

func Debugf(format string, a ...interface{}) {
	logger.Debugf(format, a...)
}

func Infof(format string, a ...interface{}) {
	logger.Infof(format, a...)
}

func Warnf(format string, a ...interface{}) {
	logger.Warnf(format, a...)
}

func Errorf(format string, a ...interface{}) {
	logger.Errorf(format, a...)
}

// Fatalf logs then exits, only for errors the process cannot run past.
func Fatalf(format string, a ...interface{}) {
	logger.Fatalf(format, a...)
}

// WithFields logs a message at info level with structured fields.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return logger.WithFields(fields)
}

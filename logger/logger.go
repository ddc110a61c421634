package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logger tagged with the service name. The level comes from LOG_LEVEL.
func New(serviceName string) *logrus.Entry {
	return NewWithOutput(serviceName, os.Stdout, os.Getenv("LOG_LEVEL"))
}

func NewWithOutput(serviceName string, out io.Writer, level string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(out)

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log.WithField("service", serviceName)
}

// Discard returns a logger that writes nothing. Used by tests.
func Discard() *logrus.Entry {
	return NewWithOutput("test", io.Discard, "error")
}

package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. Level and format come from the arguments,
// falling back to LOG_LEVEL / LOG_FORMAT environment variables.
func New(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)

	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

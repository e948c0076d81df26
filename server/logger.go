package server

import (
	"fmt"
	"io"
	"os"

	"github.com/odpf/salt/log"
	"github.com/sirupsen/logrus"

	"github.com/raystack/scale/config"
)

type defaultLogger struct {
	logger *log.Logrus
}

func (d defaultLogger) Debug(msg string, args ...interface{}) {
	d.logger.Debug(fmt.Sprintf(msg, args...))
}

func (d defaultLogger) Info(msg string, args ...interface{}) {
	d.logger.Info(fmt.Sprintf(msg, args...))
}

func (d defaultLogger) Warn(msg string, args ...interface{}) {
	d.logger.Warn(fmt.Sprintf(msg, args...))
}

func (d defaultLogger) Error(msg string, args ...interface{}) {
	d.logger.Error(fmt.Sprintf(msg, args...))
}

func (d defaultLogger) Fatal(msg string, args ...interface{}) {
	d.logger.Fatal(fmt.Sprintf(msg, args...))
}

func (d defaultLogger) Level() string {
	return d.logger.Level()
}

func (d defaultLogger) Writer() io.Writer {
	return d.logger.Writer()
}

type plainFormatter int

func (*plainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("%s %-5s %s\n",
		entry.Time.Format("2006-01-02T15:04:05.000Z07:00"), entry.Level.String(), entry.Message)), nil
}

// NewLogger returns a printf style logger writing to stderr.
func NewLogger(conf config.LogConfig) log.Logger {
	level := conf.Level
	if level == "" {
		level = config.LogLevelInfo
	}

	var formatter logrus.Formatter = new(plainFormatter)
	if conf.Format == config.LogFormatJSON {
		formatter = &logrus.JSONFormatter{}
	}

	return &defaultLogger{
		logger: log.NewLogrus(
			log.LogrusWithLevel(level.String()),
			log.LogrusWithWriter(os.Stderr),
			log.LogrusWithFormatter(formatter),
		),
	}
}

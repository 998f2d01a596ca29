// Package logging provides structured logging for the Keepsake client core.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger with the context-map convention used
// throughout the client core.
type Logger struct {
	l *logrus.Logger
}

var (
	global *Logger
	once   sync.Once
)

// Init initializes the global logger. Subsequent calls are no-ops.
func Init(out io.Writer, level logrus.Level) {
	once.Do(func() {
		global = newLogger(out, level)
	})
}

// Get returns the global logger instance, initializing a default one
// (JSON to stdout, info level) if Init was never called.
func Get() *Logger {
	if global == nil {
		Init(os.Stdout, logrus.InfoLevel)
	}
	return global
}

func newLogger(out io.Writer, level logrus.Level) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{})
	return &Logger{l: l}
}

func (lg *Logger) entry(context ...map[string]interface{}) *logrus.Entry {
	if len(context) == 0 {
		return logrus.NewEntry(lg.l)
	}
	fields := logrus.Fields{}
	for _, c := range context {
		for k, v := range c {
			fields[k] = v
		}
	}
	return lg.l.WithFields(fields)
}

// Debug logs a debug message.
func (lg *Logger) Debug(message string, context ...map[string]interface{}) {
	lg.entry(context...).Debug(message)
}

// Info logs an info message.
func (lg *Logger) Info(message string, context ...map[string]interface{}) {
	lg.entry(context...).Info(message)
}

// Warn logs a warning message.
func (lg *Logger) Warn(message string, context ...map[string]interface{}) {
	lg.entry(context...).Warn(message)
}

// Error logs an error message with its cause attached.
func (lg *Logger) Error(message string, err error, context ...map[string]interface{}) {
	e := lg.entry(context...)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
}

// ErrorWithCode logs an error message tagged with an application error code.
func (lg *Logger) ErrorWithCode(message, code string, err error, context ...map[string]interface{}) {
	e := lg.entry(context...).WithField("error_code", code)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
}

// Convenience functions using the global logger.

func Debug(message string, context ...map[string]interface{}) {
	Get().Debug(message, context...)
}

func Info(message string, context ...map[string]interface{}) {
	Get().Info(message, context...)
}

func Warn(message string, context ...map[string]interface{}) {
	Get().Warn(message, context...)
}

func Error(message string, err error, context ...map[string]interface{}) {
	Get().Error(message, err, context...)
}

func ErrorWithCode(message, code string, err error, context ...map[string]interface{}) {
	Get().ErrorWithCode(message, code, err, context...)
}

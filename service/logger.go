package service

import log "github.com/sirupsen/logrus"

// Logger is the ambient logging interface a Service uses for its debug
// callback (spec §4.5): structured, leveled, and field-decorated, rather
// than a bare func(string).
type Logger interface {
	Log(level log.Level, fields log.Fields, message string) error
	Level() log.Level
}

// NewLoggerWithFields wraps delegate, adding add to every subsequent Log
// call's fields.
func NewLoggerWithFields(delegate Logger, add log.Fields) Logger {
	return &withFieldsLogger{delegate: delegate, add: add}
}

type withFieldsLogger struct {
	delegate Logger
	add      log.Fields
}

func (l *withFieldsLogger) Level() log.Level { return l.delegate.Level() }

func (l *withFieldsLogger) Log(level log.Level, fields log.Fields, message string) error {
	var final log.Fields
	if len(fields) > 0 {
		final = make(log.Fields, len(l.add)+len(fields))
		for k, v := range l.add {
			final[k] = v
		}
		for k, v := range fields {
			final[k] = v
		}
	} else {
		final = l.add
	}
	return l.delegate.Log(level, final, message)
}

type stdLogger struct{}

func (stdLogger) Level() log.Level { return log.GetLevel() }

func (l stdLogger) Log(level log.Level, fields log.Fields, message string) error {
	if level > l.Level() {
		return nil
	}
	log.WithFields(fields).Log(level, message)
	return nil
}

// StdLogger returns a Logger that forwards to the sirupsen/logrus package
// default logger, for use outside of any richer host application.
func StdLogger() Logger {
	return stdLogger{}
}

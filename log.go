package iec104

import "github.com/sirupsen/logrus"

var _lg = newDefaultLogger()

func newDefaultLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetLevel(logrus.InfoLevel)
	return lg
}

// SetLogger replaces the package logger. Passing nil is a no-op.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		_lg = logger
	}
}

// internal/util/log.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package util

import (
	"os"
	"path"
	"runtime"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Logger provides the leveled-logging methods of the original tool's
// hand-rolled logger (Debug/Verbose/Warning/Error/Fatal), but backs each
// call with a structured logrus entry instead of raw fmt.Fprint. It has no
// Check/CheckError methods. Fatal is reserved for startup-time invariants;
// request-handling code should never call it.
type Logger struct {
	entry         *logrus.Entry
	debug, verbose bool
	NErrors       int
}

// NewLogger builds a Logger writing to stderr with the given verbosity.
func NewLogger(verbose, debug bool) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else if verbose {
		l.SetLevel(logrus.InfoLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return &Logger{entry: l.WithField("component", "mirrormediad"), debug: debug, verbose: verbose}
}

// With returns a child logger with additional structured fields attached,
// e.g. conn id, verb, or logical path, so that every line logged through
// it can be correlated.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields)), debug: l.debug, verbose: l.verbose}
}

func (l *Logger) site() string {
	_, fn, line, _ := runtime.Caller(2)
	return path.Base(path.Dir(fn)) + "/" + path.Base(fn) + ":" + strconv.Itoa(line)
}

func (l *Logger) Debug(f string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.WithField("site", l.site()).Debugf(f, args...)
}

func (l *Logger) Verbose(f string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.WithField("site", l.site()).Infof(f, args...)
}

func (l *Logger) Warning(f string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.WithField("site", l.site()).Warnf(f, args...)
}

func (l *Logger) Error(f string, args ...interface{}) {
	if l == nil {
		return
	}
	l.NErrors++
	l.entry.WithField("site", l.site()).Errorf(f, args...)
}

// Fatal logs at error level and exits the process. Only startup code
// (socket create/bind/listen) may call this; request handlers must
// return an error instead so a single failed operation never takes
// down the daemon.
func (l *Logger) Fatal(code int, f string, args ...interface{}) {
	if l != nil {
		l.NErrors++
		l.entry.WithField("site", l.site()).Errorf(f, args...)
	}
	os.Exit(code)
}

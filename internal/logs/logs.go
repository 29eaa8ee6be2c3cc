// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logs is the leveled logging core internal/logger builds
// subsystem loggers on top of. It carries no separate module path to fetch,
// so it lives here as workspace code rather than an import, kept in its own
// package so callers can use the Logger type without needing rotation or
// subsystem bookkeeping.
package logs

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a logging priority, ordered so that LevelOff suppresses
// everything and LevelTrace is the most verbose.
type Level uint32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelStrings = map[Level]string{
	LevelTrace:    "TRC",
	LevelDebug:    "DBG",
	LevelInfo:     "INF",
	LevelWarn:     "WRN",
	LevelError:    "ERR",
	LevelCritical: "CRT",
	LevelOff:      "OFF",
}

func (l Level) String() string {
	if s, ok := levelStrings[l]; ok {
		return s
	}
	return "UNK"
}

// LevelFromString maps a config-file/CLI level name to a Level. An unknown
// name falls back to LevelInfo rather than an error.
func LevelFromString(s string) (Level, bool) {
	switch s {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "critical":
		return LevelCritical, true
	default:
		return LevelInfo, false
	}
}

// BackendWriter pairs an io.Writer with the minimum level it accepts,
// allowing one backend to carry all levels and another to carry errors
// only, each against its own log file.
type BackendWriter struct {
	w        io.Writer
	minLevel Level
}

// NewAllLevelsBackendWriter builds a BackendWriter that receives every
// logged line regardless of level.
func NewAllLevelsBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelTrace}
}

// NewErrorBackendWriter builds a BackendWriter that only receives
// LevelError and LevelCritical lines.
func NewErrorBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelError}
}

// Backend fans a formatted log line out to every configured BackendWriter
// above that writer's minimum level, and mints per-subsystem Loggers that
// share it.
type Backend struct {
	writers []*BackendWriter
	mu      sync.Mutex
}

// NewBackend builds a Backend writing to the given BackendWriters.
func NewBackend(writers []*BackendWriter) *Backend {
	return &Backend{writers: writers}
}

// Logger returns a new Logger tagged with subsystemTag, defaulting to
// LevelInfo until SetLevel is called.
func (b *Backend) Logger(subsystemTag string) Logger {
	l := &logger{backend: b, tag: subsystemTag}
	l.level.Store(uint32(LevelInfo))
	return l
}

func (b *Backend) write(level Level, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.writers {
		if level < w.minLevel {
			continue
		}
		_, _ = io.WriteString(w.w, line)
	}
}

// Logger is the per-subsystem leveled logging surface every core package
// is handed at construction.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})
	SetLevel(level Level)
	Level() Level
}

type logger struct {
	backend *Backend
	tag     string
	level   atomic.Uint32
}

func (l *logger) SetLevel(level Level) { l.level.Store(uint32(level)) }
func (l *logger) Level() Level         { return Level(l.level.Load()) }

func (l *logger) log(level Level, format string, args ...interface{}) {
	if level < l.Level() {
		return
	}
	line := fmt.Sprintf("%s [%s] %s %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), level, l.tag, fmt.Sprintf(format, args...))
	l.backend.write(level, line)
}

func (l *logger) Tracef(format string, args ...interface{})    { l.log(LevelTrace, format, args...) }
func (l *logger) Debugf(format string, args ...interface{})    { l.log(LevelDebug, format, args...) }
func (l *logger) Infof(format string, args ...interface{})     { l.log(LevelInfo, format, args...) }
func (l *logger) Warnf(format string, args ...interface{})     { l.log(LevelWarn, format, args...) }
func (l *logger) Errorf(format string, args ...interface{})    { l.log(LevelError, format, args...) }
func (l *logger) Criticalf(format string, args ...interface{}) { l.log(LevelCritical, format, args...) }

// Disabled is a Logger that discards everything, handed to packages in
// tests or tools that never call InitLogRotators.
var Disabled Logger = disabledLogger{}

type disabledLogger struct{}

func (disabledLogger) Tracef(string, ...interface{})    {}
func (disabledLogger) Debugf(string, ...interface{})    {}
func (disabledLogger) Infof(string, ...interface{})     {}
func (disabledLogger) Warnf(string, ...interface{})     {}
func (disabledLogger) Errorf(string, ...interface{})    {}
func (disabledLogger) Criticalf(string, ...interface{}) {}
func (disabledLogger) SetLevel(Level)                   {}
func (disabledLogger) Level() Level                     { return LevelOff }

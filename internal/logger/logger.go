// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger wires internal/logs into one backend per process, mints a
// fixed set of subsystem loggers, and exposes the rotation/level-parsing
// helpers cmd/ghostkasd's startup and -debuglevel flag need. Adapted from
// logger/logger.go, with the subsystem tag set replaced to match this
// core's own module layout.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jrick/logrotate/rotator"

	"github.com/ghostkasd/ghostkasd/internal/logs"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

// errLogWriter implements an io.Writer that outputs to both standard output
// and the write-end pipe of an initialized log rotator.
type errLogWriter struct{}

func (errLogWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		ErrLogRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it write to the backend. When adding a
// new subsystem, add its logger variable here and to subsystemLoggers.
//
// Loggers must not be used before the log rotator has been initialized
// with a log file; InitLogRotators performs that setup early during
// application startup.
var (
	backendLog = logs.NewBackend([]*logs.BackendWriter{
		logs.NewAllLevelsBackendWriter(logWriter{}),
		logs.NewErrorBackendWriter(errLogWriter{}),
	})

	// LogRotator and ErrLogRotator back the two logging outputs. Both
	// should be closed on application shutdown.
	LogRotator    *rotator.Rotator
	ErrLogRotator *rotator.Rotator

	nodeLog = backendLog.Logger("NODE") // cmd/ghostkasd daemon lifecycle
	dagsLog = backendLog.Logger("DAGS") // internal/dagstore
	gdagLog = backendLog.Logger("GDAG") // internal/ghostdag
	trieLog = backendLog.Logger("TRIE") // internal/trie
	execLog = backendLog.Logger("EXEC") // internal/executor
	mmplLog = backendLog.Logger("MEMP") // internal/mempool
	prodLog = backendLog.Logger("PROD") // internal/producer
	kvstLog = backendLog.Logger("STOR") // internal/kvstore
	ingrLog = backendLog.Logger("INGR") // internal/ingress
	cnfgLog = backendLog.Logger("CNFG") // cmd/ghostkasd config parsing

	initiated = false
)

// SubsystemTags is an enum of all supported subsystem tags.
var SubsystemTags = struct {
	NODE,
	DAGS,
	GDAG,
	TRIE,
	EXEC,
	MEMP,
	PROD,
	STOR,
	INGR,
	CNFG string
}{
	NODE: "NODE",
	DAGS: "DAGS",
	GDAG: "GDAG",
	TRIE: "TRIE",
	EXEC: "EXEC",
	MEMP: "MEMP",
	PROD: "PROD",
	STOR: "STOR",
	INGR: "INGR",
	CNFG: "CNFG",
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]logs.Logger{
	SubsystemTags.NODE: nodeLog,
	SubsystemTags.DAGS: dagsLog,
	SubsystemTags.GDAG: gdagLog,
	SubsystemTags.TRIE: trieLog,
	SubsystemTags.EXEC: execLog,
	SubsystemTags.MEMP: mmplLog,
	SubsystemTags.PROD: prodLog,
	SubsystemTags.STOR: kvstLog,
	SubsystemTags.INGR: ingrLog,
	SubsystemTags.CNFG: cnfgLog,
}

// InitLogRotators initializes the logging rotators to write logs to
// logFile and errLogFile, rolling files in the same directory. It must be
// called before any subsystem logger is used.
func InitLogRotators(logFile, errLogFile string) {
	initiated = true
	LogRotator = initLogRotator(logFile)
	ErrLogRotator = initLogRotator(errLogFile)
}

func initLogRotator(logFile string) *rotator.Rotator {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %s\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %s\n", err)
		os.Exit(1)
	}
	return r
}

// SetLogLevel sets the logging level for the given subsystem. Invalid
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	// Defaults to info if the log level is invalid.
	level, _ := logs.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted slice of the supported subsystem
// tags, for -debuglevel usage text.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// Get returns the logger registered for the given subsystem tag.
func Get(tag string) (logger logs.Logger, ok bool) {
	logger, ok = subsystemLoggers[tag]
	return
}

// ParseAndSetDebugLevels parses a -debuglevel value, either a single level
// applied to every subsystem or a comma-separated list of subsystem=level
// pairs, and applies it.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", logLevelPair)
		}

		fields := strings.SplitN(logLevelPair, "=", 2)
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := Get(subsysID); !exists {
			return fmt.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", logLevel)
		}
		SetLogLevel(subsysID, logLevel)
	}

	return nil
}

func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghostkasd/ghostkasd/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %s\n", err)
		return 1
	}

	logger.InitLogRotators(cfg.logFile(), cfg.errLogFile())
	defer logger.LogRotator.Close()
	defer logger.ErrLogRotator.Close()

	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set debug level: %s\n", err)
		return 1
	}

	node, err := newGhostkasd(cfg)
	if err != nil {
		log.Errorf("failed to initialize node: %+v", err)
		return 1
	}

	node.start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	if err := node.stop(); err != nil {
		log.Errorf("error during shutdown: %+v", err)
		return 1
	}
	return 0
}

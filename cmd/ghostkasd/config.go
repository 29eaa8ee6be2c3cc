// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultNetwork        = "mainnet"
	defaultDebugLevel     = "info"
	defaultLogFilename    = "ghostkasd.log"
	defaultErrLogFilename = "ghostkasd_err.log"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultRPCListen      = "127.0.0.1:8334"
)

var defaultHomeDir = defaultAppDir("ghostkasd")

// config holds the flags a ghostkasd process is started with, parsed by
// parseConfig the way cmd/kaspawallet/config.go and
// mining/simulator/config.go parse theirs: a single flags.NewParser over a
// struct of long/short-tagged fields, no subcommands (this daemon has one
// job).
type config struct {
	DataDir    string `long:"datadir" short:"b" description:"Directory to store data"`
	Network    string `long:"network" short:"n" description:"Network to run on (mainnet, testnet, devnet)"`
	DebugLevel string `long:"debuglevel" short:"d" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- Alternatively, level can be defined by subsystem-tag/level pairs, e.g: NODE=trace,PROD=debug"`

	// RPCListen names the address an RPC server would bind to. No RPC
	// server exists yet; the flag is kept so operators and config files
	// written against this daemon do not need to change shape the day
	// RPC lands.
	RPCListen string `long:"rpclisten" description:"Address to listen for JSON-RPC connections (reserved -- no RPC server is wired up yet)"`

	TreasuryAddressHex string `long:"treasury-address" description:"Hex-encoded address credited the treasury share of block fees" required:"true"`
	ProducerKeyFile    string `long:"producer-key" description:"Path to the producer's hex-encoded secp256k1 private key; generated on first run if it does not exist"`

	Mining bool `long:"mining" description:"Run the block production loop. A node started without this flag only runs the ingress path: it validates, re-executes and admits incoming blocks and transactions, but never produces one itself"`
}

func defaultAppDir(appName string) string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, "."+appName)
	}
	return "." + appName
}

func parseConfig() (*config, error) {
	cfg := &config{
		DataDir:    filepath.Join(defaultHomeDir, defaultDataDirname),
		Network:    defaultNetwork,
		DebugLevel: defaultDebugLevel,
		RPCListen:  defaultRPCListen,
	}

	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	_, err := parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	switch cfg.Network {
	case "mainnet", "testnet", "devnet":
	default:
		return nil, errors.Errorf("unknown --network %q (want mainnet, testnet or devnet)", cfg.Network)
	}

	if cfg.ProducerKeyFile == "" {
		cfg.ProducerKeyFile = filepath.Join(cfg.DataDir, "producer.key")
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	return cfg, nil
}

func (c *config) logDir() string {
	return filepath.Join(c.DataDir, defaultLogDirname)
}

func (c *config) logFile() string {
	return filepath.Join(c.logDir(), defaultLogFilename)
}

func (c *config) errLogFile() string {
	return filepath.Join(c.logDir(), defaultErrLogFilename)
}

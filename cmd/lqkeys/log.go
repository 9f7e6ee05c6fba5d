package main

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/lqwallet/lqkeys/address"
	"github.com/lqwallet/lqkeys/build"
	"github.com/lqwallet/lqkeys/confidential"
	"github.com/lqwallet/lqkeys/keychain"
	"github.com/lqwallet/lqkeys/liquid"
	"github.com/lqwallet/lqkeys/session"
	"github.com/lqwallet/lqkeys/slip77"
	"github.com/lqwallet/lqkeys/zkp"
)

// Subsystem is the logging code of the command itself.
const Subsystem = "LQKS"

// log is the logger of the command. It is replaced once logging is set up.
var log btclog.Logger = build.NewSubLogger(Subsystem, nil)

// setupLoggers wires every package logger to the root logger manager.
func setupLoggers(root *build.SubLoggerManager) {
	log = build.NewSubLogger(Subsystem, root.GenSubLogger)

	addSubLogger(root, keychain.Subsystem, keychain.UseLogger)
	addSubLogger(root, slip77.Subsystem, slip77.UseLogger)
	addSubLogger(root, address.Subsystem, address.UseLogger)
	addSubLogger(root, confidential.Subsystem, confidential.UseLogger)
	addSubLogger(root, zkp.Subsystem, zkp.UseLogger)
	addSubLogger(root, session.Subsystem, session.UseLogger)
	addSubLogger(root, liquid.Subsystem, liquid.UseLogger)
}

// addSubLogger creates a logger for the subsystem and hands it to every
// passed UseLogger function.
func addSubLogger(root *build.SubLoggerManager, subsystem string,
	useLoggers ...func(btclog.Logger)) {

	logger := build.NewSubLogger(subsystem, root.GenSubLogger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}

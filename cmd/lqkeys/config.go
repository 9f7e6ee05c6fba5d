package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lqwallet/lqkeys/address"
	"github.com/lqwallet/lqkeys/build"
)

const (
	defaultLogDirname  = "logs"
	defaultLogFilename = "lqkeys.log"
	defaultLogLevel    = "info"
	defaultNetwork     = "liquid"
)

var (
	defaultAppDir = btcutil.AppDataDir("lqkeys", false)
	defaultLogDir = filepath.Join(defaultAppDir, defaultLogDirname)
)

// config holds the options shared by every command.
//
//nolint:lll
type config struct {
	Network        string `long:"network" description:"The network addresses are built for." choice:"liquid" choice:"regtest"`
	MnemonicFile   string `long:"mnemonicfile" description:"File holding the BIP-0039 mnemonic of the device."`
	PassphraseFile string `long:"passphrasefile" description:"File holding the BIP-0039 passphrase; an empty passphrase is used if unset."`

	LogDir     string `long:"logdir" description:"Directory to log output."`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	Logging *build.LogConfig `group:"logging" namespace:"logging"`
}

// defaultConfig returns the config with every default applied.
func defaultConfig() *config {
	return &config{
		Network:    defaultNetwork,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Logging:    build.DefaultLogConfig(),
	}
}

// validate checks the parsed options and resolves the network parameters.
func (c *config) validate() (*address.Params, error) {
	if c.MnemonicFile == "" {
		return nil, fmt.Errorf("--mnemonicfile is required")
	}

	if err := c.Logging.Validate(); err != nil {
		return nil, err
	}

	c.LogDir = cleanAndExpandPath(c.LogDir)
	c.MnemonicFile = cleanAndExpandPath(c.MnemonicFile)
	c.PassphraseFile = cleanAndExpandPath(c.PassphraseFile)

	return address.ParamsByName(c.Network)
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// readSecretFile returns the first line of a secret file without the
// trailing line break.
func readSecretFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read %s: %w", path, err)
	}

	line, _, _ := strings.Cut(string(content), "\n")

	return strings.TrimRight(line, "\r"), nil
}

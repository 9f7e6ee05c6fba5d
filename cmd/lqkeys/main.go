package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/lqwallet/lqkeys/build"
	"github.com/lqwallet/lqkeys/liquid"
	"github.com/lqwallet/lqkeys/session"
	"github.com/lqwallet/lqkeys/zkp"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	cfg *config
}

// filePassphrase reads the passphrase from a file when it is first needed.
// An empty path yields the empty passphrase.
type filePassphrase string

// Passphrase returns the passphrase stored in the file.
func (f filePassphrase) Passphrase(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f == "" {
		return "", nil
	}

	return readSecretFile(string(f))
}

// setupLogging creates the log handlers and wires every subsystem to them.
// The returned function closes the log file.
func (a *app) setupLogging() (func(), error) {
	logWriter := build.NewRotatingLogWriter()
	logMgr := build.NewSubLoggerManager(
		build.NewDefaultLogHandlers(a.cfg.Logging, logWriter)...,
	)
	setupLoggers(logMgr)

	if a.cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			logMgr.SupportedSubsystems())
		os.Exit(0)
	}

	err := logWriter.InitLogRotator(
		a.cfg.Logging.File,
		filepath.Join(a.cfg.LogDir, defaultLogFilename),
	)
	if err != nil {
		return nil, fmt.Errorf("log rotation setup failed: %w", err)
	}

	err = build.ParseAndSetDebugLevels(a.cfg.DebugLevel, logMgr)
	if err != nil {
		_ = logWriter.Close()
		return nil, err
	}

	return func() { _ = logWriter.Close() }, nil
}

// run sets up logging, the session and the commitment engine, hands the
// handlers to f and tears everything down afterwards. Failures are printed
// as JSON with their failure code.
func (a *app) run(f func(context.Context, *liquid.Handlers) error) error {
	params, err := a.cfg.validate()
	if err != nil {
		return err
	}

	closeLog, err := a.setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	mnemonic, err := readSecretFile(a.cfg.MnemonicFile)
	if err != nil {
		return err
	}

	sess := session.New(&session.Config{
		Storage:    session.NewMnemonicStorage(mnemonic),
		Passphrase: filePassphrase(a.cfg.PassphraseFile),
	})
	defer sess.Close()

	engine, err := zkp.NewSecp256k1ZKP()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	log.Debugf("%s serving request on %v", build.UserAgent(), params.Name)

	handlers := liquid.New(&liquid.Config{
		Session: sess,
		Engine:  engine,
		Params:  params,
	})
	if err := f(ctx, handlers); err != nil {
		log.Errorf("Request failed: %v", err)

		if perr := printJSON(newFailureResponse(err)); perr != nil {
			return perr
		}

		return err
	}

	return nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to encode response: %w", err)
	}

	_, err = fmt.Println(string(b))

	return err
}

func main() {
	cfg := defaultConfig()
	a := &app{cfg: cfg}

	parser := flags.NewParser(cfg, flags.Default)
	for _, cmd := range commands(a) {
		if err := cmd.Register(parser); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if _, err := parser.Parse(); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		os.Exit(1)
	}
}

// Package session holds the per-device secret state requests are served
// from. It owns the seed cache and hands out keychains that own their own
// copy of the seed.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/keychain"
	"github.com/lqwallet/lqkeys/lnutils"
	"github.com/tyler-smith/go-bip39"
)

var (
	// ErrUninitialized is returned when the storage holds no mnemonic.
	ErrUninitialized = errorcodes.New(
		errorcodes.ErrCodeUninitializedDevice, "device is not "+
			"initialized",
	)

	// ErrInvalidMnemonic is returned when the stored mnemonic does not
	// pass the BIP-0039 checksum.
	ErrInvalidMnemonic = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "invalid mnemonic",
	)

	// ErrClosed is returned once the session has been closed.
	ErrClosed = errorcodes.New(
		errorcodes.ErrCodeUninitializedDevice, "session closed",
	)
)

// Storage is the persistent store of the device's mnemonic.
type Storage interface {
	// IsInitialized returns true if a mnemonic has been stored.
	IsInitialized() bool

	// Mnemonic returns the stored mnemonic.
	Mnemonic() (string, error)
}

// PassphrasePrompter asks the user for the BIP-0039 passphrase.
type PassphrasePrompter interface {
	// Passphrase blocks until the user entered the passphrase or the
	// context is done.
	Passphrase(ctx context.Context) (string, error)
}

// Config holds the collaborators of a Session.
type Config struct {
	// Storage provides the mnemonic.
	Storage Storage

	// Passphrase is asked for the passphrase the first time a seed is
	// needed.
	Passphrase PassphrasePrompter
}

// Session caches the seed of a device between requests. It is safe for
// concurrent use; Close must be called to wipe the cache.
type Session struct {
	cfg *Config

	mu         sync.Mutex
	seed       []byte
	passphrase fn.Option[string]
	closed     bool
}

// New creates a session with an empty cache.
func New(cfg *Config) *Session {
	return &Session{
		cfg:        cfg,
		passphrase: fn.None[string](),
	}
}

// Keychain returns a keychain granted the given namespaces. The seed is
// computed on first use, prompting for the passphrase if needed, and cached
// for later requests. Prompting happens strictly before the keychain exists.
// The caller must zero the returned keychain.
func (s *Session) Keychain(ctx context.Context,
	namespaces []keychain.Namespace) (*keychain.Keychain, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if !s.cfg.Storage.IsInitialized() {
		return nil, ErrUninitialized
	}

	if s.seed == nil {
		seed, err := s.deriveSeed(ctx)
		if err != nil {
			return nil, err
		}
		s.seed = seed

		log.Debugf("Seed cached for session")
	}

	return keychain.New(s.seed, namespaces)
}

// deriveSeed computes the BIP-0039 seed from the stored mnemonic and the
// cached or prompted passphrase. The caller must hold mu.
func (s *Session) deriveSeed(ctx context.Context) ([]byte, error) {
	passphrase, err := s.passphrase.UnwrapOrFuncErr(
		func() (string, error) {
			return s.cfg.Passphrase.Passphrase(ctx)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to get passphrase: %w", err)
	}
	s.passphrase = fn.Some(passphrase)

	mnemonic, err := s.cfg.Storage.Mnemonic()
	if err != nil {
		return nil, fmt.Errorf("unable to read mnemonic: %w", err)
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	return seed, nil
}

// Close wipes the cached seed. Keychains handed out before remain usable
// until zeroed by their owners.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	lnutils.Zero(s.seed)
	s.seed = nil
	s.passphrase = fn.None[string]()
	s.closed = true

	log.Debugf("Session closed")
}

// MnemonicStorage is a Storage holding the mnemonic in memory.
type MnemonicStorage struct {
	mnemonic string
}

// NewMnemonicStorage creates a storage around the mnemonic. An empty
// mnemonic marks an uninitialized device.
func NewMnemonicStorage(mnemonic string) *MnemonicStorage {
	return &MnemonicStorage{mnemonic: mnemonic}
}

// IsInitialized returns true if a mnemonic is stored.
func (m *MnemonicStorage) IsInitialized() bool {
	return m.mnemonic != ""
}

// Mnemonic returns the stored mnemonic.
func (m *MnemonicStorage) Mnemonic() (string, error) {
	if m.mnemonic == "" {
		return "", ErrUninitialized
	}

	return m.mnemonic, nil
}

// StaticPassphrase is a PassphrasePrompter that always answers with the same
// passphrase.
type StaticPassphrase string

// Passphrase returns the static passphrase unless the context is done.
func (p StaticPassphrase) Passphrase(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return string(p), nil
	}
}

var _ Storage = (*MnemonicStorage)(nil)
var _ PassphrasePrompter = StaticPassphrase("")

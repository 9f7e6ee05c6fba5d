package session

import (
	"context"
	"encoding/hex"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/keychain"
	"github.com/stretchr/testify/require"
)

const (
	// testMnemonic and testPassphrase are taken from the BIP-0039 test
	// vectors.
	testMnemonic = "abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon abandon about"

	testPassphrase = "TREZOR"

	testSeedHex = "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa" +
		"3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c8" +
		"1b2f001698e7463b04"
)

var rootNamespace = []keychain.Namespace{{Curve: keychain.CurveSecp256k1}}

// countingPrompter counts how often the passphrase was asked for.
type countingPrompter struct {
	calls atomic.Int32
	err   error
}

func (c *countingPrompter) Passphrase(ctx context.Context) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}

	return StaticPassphrase(testPassphrase).Passphrase(ctx)
}

func masterPubKey(t *testing.T, k *keychain.Keychain) []byte {
	t.Helper()

	node, err := k.Derive(keychain.Path{}, keychain.CurveSecp256k1)
	require.NoError(t, err)
	defer node.Zero()

	pub, err := node.PublicKey()
	require.NoError(t, err)

	return pub
}

// TestKeychainFromMnemonic asserts the keychain is built from the BIP-0039
// seed and the passphrase is only asked for once.
func TestKeychainFromMnemonic(t *testing.T) {
	t.Parallel()

	prompter := &countingPrompter{}
	s := New(&Config{
		Storage:    NewMnemonicStorage(testMnemonic),
		Passphrase: prompter,
	})
	defer s.Close()

	seed, err := hex.DecodeString(testSeedHex)
	require.NoError(t, err)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	want, err := master.ECPubKey()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		k, err := s.Keychain(context.Background(), rootNamespace)
		require.NoError(t, err)

		require.Equal(t, want.SerializeCompressed(), masterPubKey(t, k))
		k.Zero()
	}

	require.EqualValues(t, 1, prompter.calls.Load())
}

// TestKeychainOutlivesSessionCache asserts a keychain owns its seed copy.
func TestKeychainOutlivesSessionCache(t *testing.T) {
	t.Parallel()

	s := New(&Config{
		Storage:    NewMnemonicStorage(testMnemonic),
		Passphrase: StaticPassphrase(testPassphrase),
	})

	k, err := s.Keychain(context.Background(), rootNamespace)
	require.NoError(t, err)
	defer k.Zero()

	before := masterPubKey(t, k)
	s.Close()
	require.Equal(t, before, masterPubKey(t, k))

	_, err = s.Keychain(context.Background(), rootNamespace)
	require.ErrorIs(t, err, ErrClosed)
}

// TestKeychainFailures exercises the error paths.
func TestKeychainFailures(t *testing.T) {
	t.Parallel()

	errPrompt := errors.New("user cancelled")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	testCases := []struct {
		name     string
		ctx      context.Context
		mnemonic string
		prompter PassphrasePrompter
		err      error
	}{{
		name:     "uninitialized",
		ctx:      context.Background(),
		prompter: StaticPassphrase(""),
		err:      errorcodes.ErrUninitializedDevice,
	}, {
		name:     "prompt failure",
		ctx:      context.Background(),
		mnemonic: testMnemonic,
		prompter: &countingPrompter{err: errPrompt},
		err:      errPrompt,
	}, {
		name:     "cancelled",
		ctx:      cancelled,
		mnemonic: testMnemonic,
		prompter: StaticPassphrase(""),
		err:      context.Canceled,
	}, {
		name: "bad checksum",
		ctx:  context.Background(),
		mnemonic: "abandon abandon abandon abandon abandon abandon " +
			"abandon abandon abandon abandon abandon abandon",
		prompter: StaticPassphrase(""),
		err:      ErrInvalidMnemonic,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(&Config{
				Storage:    NewMnemonicStorage(tc.mnemonic),
				Passphrase: tc.prompter,
			})
			defer s.Close()

			k, err := s.Keychain(tc.ctx, rootNamespace)
			require.ErrorIs(t, err, tc.err)
			require.Nil(t, k)
		})
	}
}

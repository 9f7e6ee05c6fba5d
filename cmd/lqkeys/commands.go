package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lqwallet/lqkeys/address"
	"github.com/lqwallet/lqkeys/keychain"
	"github.com/lqwallet/lqkeys/liquid"
)

// command is a subcommand that registers itself with the parser.
type command interface {
	Register(parser *flags.Parser) error
}

func commands(a *app) []command {
	return []command{
		&addressCommand{app: a},
		&blindingKeyCommand{app: a},
		&nonceCommand{app: a},
		&blindCommand{app: a},
		&unblindCommand{app: a},
		&verifyBalanceCommand{app: a},
	}
}

// readRequest reads a request document from a file, or from stdin if the
// path is "-".
func readRequest(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}

	return os.ReadFile(path)
}

//nolint:lll
type addressCommand struct {
	Path       string `long:"path" description:"The BIP-0044 path of the key, e.g. m/49'/1776'/0'/0/0" required:"true"`
	ScriptType string `long:"scripttype" description:"The output script type" choice:"p2pkh" choice:"p2sh-p2wpkh" default:"p2sh-p2wpkh"`

	app *app
}

func (x *addressCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"address",
		"Show the confidential address at a path",
		"Derive the key at --path and print the confidential address "+
			"paying to it, blinded with the wallet's blinding key",
		x,
	)
	return err
}

func (x *addressCommand) Execute(_ []string) error {
	path, err := keychain.ParsePath(x.Path)
	if err != nil {
		return err
	}

	scriptType, err := address.ParseScriptType(x.ScriptType)
	if err != nil {
		return err
	}

	return x.app.run(func(ctx context.Context, h *liquid.Handlers) error {
		addr, err := h.GetBlindedAddress(
			ctx, &liquid.GetBlindedAddressRequest{
				AddressN:   path,
				ScriptType: scriptType,
				Network:    fn.None[string](),
			},
		)
		if err != nil {
			return err
		}

		return printJSON(map[string]string{"address": addr})
	})
}

//nolint:lll
type blindingKeyCommand struct {
	Script string `long:"script" description:"The hex encoded output script" required:"true"`

	app *app
}

func (x *blindingKeyCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"blindingkey",
		"Show the blinding public key of a script",
		"Print the SLIP-0077 blinding public key the wallet uses for "+
			"outputs paying to --script",
		x,
	)
	return err
}

func (x *blindingKeyCommand) Execute(_ []string) error {
	script, err := hex.DecodeString(x.Script)
	if err != nil {
		return fmt.Errorf("%w: script: %v", errMalformedRequest, err)
	}

	return x.app.run(func(ctx context.Context, h *liquid.Handlers) error {
		pub, err := h.GetBlindingPubKey(
			ctx, &liquid.GetBlindingPubKeyRequest{
				ScriptPubkey: script,
			},
		)
		if err != nil {
			return err
		}

		return printJSON(map[string]string{
			"pubkey": hex.EncodeToString(pub[:]),
		})
	})
}

//nolint:lll
type nonceCommand struct {
	EcdhPubkey string `long:"ecdhpubkey" description:"The hex encoded ephemeral public key of the output" required:"true"`
	Script     string `long:"script" description:"The hex encoded output script" required:"true"`

	app *app
}

func (x *nonceCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"nonce",
		"Show the range proof nonce of an output",
		"Print the nonce shared between the wallet and the creator "+
			"of an output paying to --script",
		x,
	)
	return err
}

func (x *nonceCommand) Execute(_ []string) error {
	ecdhPub, err := hex.DecodeString(x.EcdhPubkey)
	if err != nil {
		return fmt.Errorf("%w: ecdh pubkey: %v", errMalformedRequest,
			err)
	}
	script, err := hex.DecodeString(x.Script)
	if err != nil {
		return fmt.Errorf("%w: script: %v", errMalformedRequest, err)
	}

	return x.app.run(func(ctx context.Context, h *liquid.Handlers) error {
		nonce, err := h.GetRangeProofNonce(
			ctx, &liquid.GetRangeProofNonceRequest{
				EcdhPubkey:   ecdhPub,
				ScriptPubkey: script,
			},
		)
		if err != nil {
			return err
		}

		return printJSON(map[string]string{
			"nonce": hex.EncodeToString(nonce[:]),
		})
	})
}

//nolint:lll
type blindCommand struct {
	Request string `long:"request" description:"File holding the JSON blind request, - for stdin" default:"-"`

	app *app
}

func (x *blindCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"blind",
		"Blind the outputs of a transaction",
		"Read the inputs and outputs of a transaction and print the "+
			"blinded outputs with their range and surjection "+
			"proofs; the value blind of the last output is "+
			"replaced so the transaction balances",
		x,
	)
	return err
}

func (x *blindCommand) Execute(_ []string) error {
	data, err := readRequest(x.Request)
	if err != nil {
		return err
	}

	req, err := parseBlindTxRequest(data)
	if err != nil {
		return err
	}

	return x.app.run(func(ctx context.Context, h *liquid.Handlers) error {
		blinded, err := h.BlindTx(ctx, req)
		if err != nil {
			return err
		}

		resp := make([]*blindedOutputResponse, 0, len(blinded))
		for _, out := range blinded {
			resp = append(resp, newBlindedOutputResponse(out))
		}

		return printJSON(map[string]any{"outputs": resp})
	})
}

//nolint:lll
type unblindCommand struct {
	Request string `long:"request" description:"File holding the JSON unblind request, - for stdin" default:"-"`

	app *app
}

func (x *unblindCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"unblind",
		"Recover the cleartext of a blinded output",
		"Rewind the range proof of a blinded output with the given "+
			"ECDH private key, or the wallet blinding key of the "+
			"output script if none is given",
		x,
	)
	return err
}

func (x *unblindCommand) Execute(_ []string) error {
	data, err := readRequest(x.Request)
	if err != nil {
		return err
	}

	req, err := parseUnblindOutputRequest(data)
	if err != nil {
		return err
	}

	return x.app.run(func(ctx context.Context, h *liquid.Handlers) error {
		amount, err := h.UnblindOutput(ctx, req)
		if err != nil {
			return err
		}
		defer amount.Zero()

		return printJSON(newAmountResponse(amount))
	})
}

//nolint:lll
type verifyBalanceCommand struct {
	Request string `long:"request" description:"File holding the JSON balance request, - for stdin" default:"-"`

	app *app
}

func (x *verifyBalanceCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"verifybalance",
		"Check that a transaction balances",
		"Sum the commitments of the inputs and of the blinded and "+
			"explicit outputs and report whether they are equal",
		x,
	)
	return err
}

func (x *verifyBalanceCommand) Execute(_ []string) error {
	data, err := readRequest(x.Request)
	if err != nil {
		return err
	}

	req, err := parseVerifyBalanceRequest(data)
	if err != nil {
		return err
	}

	return x.app.run(func(ctx context.Context, h *liquid.Handlers) error {
		ok, err := h.VerifyBalance(ctx, req)
		if err != nil {
			return err
		}

		return printJSON(map[string]bool{"balanced": ok})
	})
}

package address

import (
	"fmt"

	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/vulpemventures/go-elements/network"
)

// ErrUnknownNetwork is returned when a network name is not recognized.
var ErrUnknownNetwork = errorcodes.New(
	errorcodes.ErrCodeInvalidInput, "unknown network",
)

// Params couples the address byte table of an Elements network with the
// SLIP-0044 coin type its keys are derived under.
type Params struct {
	*network.Network

	// CoinType is the hardened-less SLIP-0044 coin type of the network.
	CoinType uint32
}

var (
	// LiquidParams are the parameters of the Liquid main network.
	LiquidParams = Params{Network: &network.Liquid, CoinType: 1776}

	// RegtestParams are the parameters of an Elements regtest network.
	RegtestParams = Params{Network: &network.Regtest, CoinType: 1}
)

// ParamsByName returns the parameters of the named network.
func ParamsByName(name string) (*Params, error) {
	switch name {
	case "liquid", "mainnet":
		return &LiquidParams, nil

	case "regtest", "elementsregtest":
		return &RegtestParams, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}

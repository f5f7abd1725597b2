package ton

import (
	"errors"
	"fmt"
	"strings"

	chain_selectors "github.com/smartcontractkit/chain-selectors"
)

// Network identifies a TON network a wallet can be connected to.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Chain ids reported by wallets over TON Connect.
const (
	MainnetChainID = "-239"
	TestnetChainID = "-3"
)

var ErrUnknownNetwork = errors.New("unknown ton network")

// ParseNetwork parses a network name. Both the short form ("mainnet") and the chain selector
// name ("ton-mainnet") are accepted.
func ParseNetwork(s string) (Network, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "ton-") {
	case string(Mainnet):
		return Mainnet, nil
	case string(Testnet):
		return Testnet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
	}
}

// NetworkFromChainID maps a TON Connect chain id to a Network.
func NetworkFromChainID(chainID string) (Network, error) {
	switch chainID {
	case MainnetChainID:
		return Mainnet, nil
	case TestnetChainID:
		return Testnet, nil
	default:
		return "", fmt.Errorf("%w: chain id %q", ErrUnknownNetwork, chainID)
	}
}

// ChainID returns the TON Connect chain id of the network.
func (n Network) ChainID() string {
	if n == Testnet {
		return TestnetChainID
	}

	return MainnetChainID
}

// Selector returns the chain selector of the network.
func (n Network) Selector() uint64 {
	if n == Testnet {
		return chain_selectors.TON_TESTNET.Selector
	}

	return chain_selectors.TON_MAINNET.Selector
}

// Chain returns the chain metadata of the network.
func (n Network) Chain() Chain {
	return Chain{Selector: n.Selector(), Network: n}
}

// Chain describes the TON chain a wallet session is bound to.
type Chain struct {
	Selector uint64  // Canonical chain identifier
	Network  Network // Network the selector belongs to
}

// ChainSelector returns the chain selector of the chain
func (c Chain) ChainSelector() uint64 {
	return c.Selector
}

// String returns chain name and selector "<name> (<selector>)"
func (c Chain) String() string {
	name := c.Name()
	if name == "" {
		return ""
	}

	return fmt.Sprintf("%s (%d)", name, c.Selector)
}

// Name returns the name of the chain
func (c Chain) Name() string {
	info, err := chainInfo(c.Selector)
	if err != nil {
		return ""
	}

	return info.ChainName
}

// Family returns the family of the chain
func (c Chain) Family() string {
	family, err := chain_selectors.GetSelectorFamily(c.Selector)
	if err != nil {
		return ""
	}

	return family
}

// chainInfo returns the chain details of a selector.
func chainInfo(selector uint64) (chain_selectors.ChainDetails, error) {
	id, err := chain_selectors.GetChainIDFromSelector(selector)
	if err != nil {
		return chain_selectors.ChainDetails{}, err
	}
	family, err := chain_selectors.GetSelectorFamily(selector)
	if err != nil {
		return chain_selectors.ChainDetails{}, err
	}

	return chain_selectors.GetChainDetailsByChainIDAndFamily(id, family)
}

package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/kartacom/tonpay/chain/ton"
)

// Kind tells which protocol an endpoint speaks.
type Kind string

const (
	// KindJSONRPC is a toncenter v2 compatible HTTP JSON-RPC endpoint.
	KindJSONRPC Kind = "jsonrpc"
	// KindLiteserver is a URL to a liteserver global config.
	KindLiteserver Kind = "liteserver"
)

// Public liteserver configs published by the TON foundation.
const (
	MainnetConfigURL = "https://ton.org/global.config.json"
	TestnetConfigURL = "https://ton.org/testnet-global.config.json"
)

var ErrNoEndpoint = errors.New("no endpoint found")

// Endpoint is a resolved RPC endpoint for a network.
type Endpoint struct {
	Network ton.Network
	Kind    Kind
	URL     string
}

// Resolver resolves the RPC endpoint of a network.
type Resolver interface {
	Resolve(ctx context.Context, network ton.Network) (Endpoint, error)
}

var _ Resolver = StaticResolver{}

// StaticResolver returns a fixed endpoint per network.
type StaticResolver struct {
	Kind    Kind
	Mainnet string
	Testnet string
}

// DefaultStaticResolver resolves to the public liteserver global configs.
func DefaultStaticResolver() StaticResolver {
	return StaticResolver{
		Kind:    KindLiteserver,
		Mainnet: MainnetConfigURL,
		Testnet: TestnetConfigURL,
	}
}

// Resolve returns the configured endpoint of the network.
func (r StaticResolver) Resolve(_ context.Context, network ton.Network) (Endpoint, error) {
	var url string
	switch network {
	case ton.Mainnet:
		url = r.Mainnet
	case ton.Testnet:
		url = r.Testnet
	default:
		return Endpoint{}, fmt.Errorf("%w: %q", ton.ErrUnknownNetwork, network)
	}
	if url == "" {
		return Endpoint{}, fmt.Errorf("%w for %s", ErrNoEndpoint, network)
	}

	kind := r.Kind
	if kind == "" {
		kind = KindLiteserver
	}

	return Endpoint{Network: network, Kind: kind, URL: url}, nil
}

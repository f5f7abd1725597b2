package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/xssnick/tonutils-go/address"

	"github.com/kartacom/tonpay/chain/ton"
	"github.com/kartacom/tonpay/pkg/logger"
)

// Client is a read-only TON client.
type Client interface {
	// JettonWalletAddress returns the jetton wallet address of owner for the jetton master.
	JettonWalletAddress(ctx context.Context, master, owner *address.Address) (*address.Address, error)
	// Close releases the connections held by the client.
	Close()
}

// ClientProviderConfig holds the configuration to initialize the ClientProvider.
type ClientProviderConfig struct {
	// Required: Resolves the endpoint a client is bound to.
	Resolver Resolver
	// Optional: HTTP client used by JSON-RPC clients. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Optional: API key sent to JSON-RPC endpoints.
	APIKey string
}

// validate checks if the ClientProviderConfig is valid.
func (c ClientProviderConfig) validate() error {
	if c.Resolver == nil {
		return errors.New("endpoint resolver is required")
	}

	return nil
}

// ClientProvider builds read clients for a network. The endpoint is resolved again on every
// call, so a client is never reused across calls.
type ClientProvider struct {
	lggr   logger.Logger
	config ClientProviderConfig

	// newLiteClient is swapped in tests to avoid dialing liteservers.
	newLiteClient func(ctx context.Context, configURL string) (Client, error)
}

// NewClientProvider creates a ClientProvider.
func NewClientProvider(lggr logger.Logger, config ClientProviderConfig) (*ClientProvider, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("failed to validate provider config: %w", err)
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	return &ClientProvider{
		lggr:   lggr.Named("client-provider"),
		config: config,
		newLiteClient: func(ctx context.Context, configURL string) (Client, error) {
			return NewLiteClient(ctx, configURL)
		},
	}, nil
}

// Client resolves the endpoint of network and returns a client bound to it.
func (p *ClientProvider) Client(ctx context.Context, network ton.Network) (Client, error) {
	endpoint, err := p.config.Resolver.Resolve(ctx, network)
	if err != nil {
		return nil, err
	}

	p.lggr.Debugw("Creating client", "network", network, "kind", endpoint.Kind, "url", endpoint.URL)

	switch endpoint.Kind {
	case KindJSONRPC:
		return NewTonCenterClient(endpoint.URL, p.config.HTTPClient, p.config.APIKey), nil
	case KindLiteserver:
		return p.newLiteClient(ctx, endpoint.URL)
	default:
		return nil, fmt.Errorf("unsupported endpoint kind: %q", endpoint.Kind)
	}
}

// Name returns the name of the ClientProvider.
func (*ClientProvider) Name() string {
	return "TON Client Provider"
}

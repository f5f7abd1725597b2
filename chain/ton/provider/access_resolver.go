package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/kartacom/tonpay/chain/ton"
	"github.com/kartacom/tonpay/pkg/logger"
)

// DefaultAccessURL is the public TON access node directory.
const DefaultAccessURL = "https://ton.access.orbs.network"

// accessConfig defines how the node directory is queried.
type accessConfig struct {
	// BaseURL of the access service. Node endpoints are served under the same host.
	BaseURL string
	// HTTPClient used for the directory lookup.
	HTTPClient *http.Client
	// RetryAttempts is the number of lookup attempts before giving up.
	RetryAttempts uint
	// RetryDelay is the duration to wait between lookup attempts.
	RetryDelay time.Duration
}

var accessConfigDefault = accessConfig{
	BaseURL:       DefaultAccessURL,
	HTTPClient:    &http.Client{Timeout: 10 * time.Second},
	RetryAttempts: 3,
	RetryDelay:    500 * time.Millisecond,
}

// AccessOpt configures an AccessResolver.
type AccessOpt func(*accessConfig)

// WithAccessURL overrides the access service URL.
func WithAccessURL(url string) AccessOpt {
	return func(c *accessConfig) {
		c.BaseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient overrides the HTTP client used for the lookup.
func WithHTTPClient(client *http.Client) AccessOpt {
	return func(c *accessConfig) {
		c.HTTPClient = client
	}
}

// WithRetry sets the number of lookup attempts and the delay between them.
func WithRetry(attempts uint, delay time.Duration) AccessOpt {
	return func(c *accessConfig) {
		c.RetryAttempts = attempts
		c.RetryDelay = delay
	}
}

var _ Resolver = (*AccessResolver)(nil)

// AccessResolver resolves toncenter JSON-RPC endpoints through a TON access node directory.
// Every call performs a fresh lookup.
type AccessResolver struct {
	lggr   logger.Logger
	config accessConfig
}

// NewAccessResolver creates an AccessResolver.
func NewAccessResolver(lggr logger.Logger, opts ...AccessOpt) *AccessResolver {
	config := accessConfigDefault
	for _, opt := range opts {
		opt(&config)
	}

	return &AccessResolver{
		lggr:   lggr.Named("access-resolver"),
		config: config,
	}
}

// accessNode is a node entry of the access directory.
type accessNode struct {
	NodeID  string `json:"NodeId"`
	Healthy string `json:"Healthy"`
}

// Resolve looks up a healthy node and returns its JSON-RPC endpoint for the network.
func (r *AccessResolver) Resolve(ctx context.Context, network ton.Network) (Endpoint, error) {
	if network != ton.Mainnet && network != ton.Testnet {
		return Endpoint{}, fmt.Errorf("%w: %q", ton.ErrUnknownNetwork, network)
	}

	node, err := retry.DoWithData(func() (string, error) {
		return r.healthyNode(ctx)
	},
		retry.Context(ctx),
		retry.Attempts(r.config.RetryAttempts),
		retry.Delay(r.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			r.lggr.Warnw("Access node lookup failed", "attempt", attempt+1, "network", network, "err", err)
		}),
	)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to resolve %s endpoint: %w", network, err)
	}

	url := fmt.Sprintf("%s/%s/1/%s/toncenter-api-v2/jsonRPC", r.config.BaseURL, node, network)
	r.lggr.Debugw("Resolved endpoint", "network", network, "url", url)

	return Endpoint{Network: network, Kind: KindJSONRPC, URL: url}, nil
}

// healthyNode fetches the node directory and picks the healthy node with the lowest id.
func (r *AccessResolver) healthyNode(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.BaseURL+"/mngr/nodes", nil)
	if err != nil {
		return "", err
	}

	resp, err := r.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access nodes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch access nodes: unexpected status %s", resp.Status)
	}

	var nodes []accessNode
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return "", fmt.Errorf("failed to decode access nodes: %w", err)
	}

	healthy := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.Healthy == "1" && n.NodeID != "" {
			healthy = append(healthy, n.NodeID)
		}
	}
	if len(healthy) == 0 {
		return "", ErrNoEndpoint
	}
	slices.Sort(healthy)

	return healthy[0], nil
}

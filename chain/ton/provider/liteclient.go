package provider

import (
	"context"
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	tonlib "github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/jetton"
)

var _ Client = (*LiteClient)(nil)

// LiteClient is a Client talking to liteservers over ADNL.
type LiteClient struct {
	pool *liteclient.ConnectionPool
	api  tonlib.APIClientWrapped
}

// NewLiteClient connects to the liteservers listed in the global config at configURL.
func NewLiteClient(ctx context.Context, configURL string) (*LiteClient, error) {
	connectionPool := liteclient.NewConnectionPool()
	if err := connectionPool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
		connectionPool.Stop()
		return nil, fmt.Errorf("failed to retrieve ton network config: %w", err)
	}

	api := tonlib.NewAPIClient(connectionPool, tonlib.ProofCheckPolicyFast).WithRetry()

	return &LiteClient{pool: connectionPool, api: api}, nil
}

// Close stops the liteserver connection pool.
func (c *LiteClient) Close() {
	if c.pool != nil {
		c.pool.Stop()
	}
}

// JettonWalletAddress runs get_wallet_address on the jetton master.
func (c *LiteClient) JettonWalletAddress(ctx context.Context, master, owner *address.Address) (*address.Address, error) {
	w, err := jetton.NewJettonMasterClient(c.api, master).GetJettonWallet(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get jetton wallet of %s: %w", owner, err)
	}

	return w.Address(), nil
}

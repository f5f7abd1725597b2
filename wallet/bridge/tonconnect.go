package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cameo-engineering/tonconnect"

	"github.com/kartacom/tonpay/chain/ton"
	"github.com/kartacom/tonpay/wallet"
)

// walletLink is a universal link opening one wallet app.
type walletLink struct {
	Name string
	URL  string
}

// bridgeSession is one wallet-connection session over the TON Connect bridge.
type bridgeSession interface {
	universalLinks() ([]walletLink, error)
	connect(ctx context.Context) (*wallet.Wallet, error)
	sendTransaction(ctx context.Context, tx wallet.Transaction) (*wallet.SendResult, error)
	disconnect(ctx context.Context) error
	marshal() ([]byte, error)
}

// sessionFactory creates fresh sessions and restores persisted ones.
type sessionFactory interface {
	newSession() (bridgeSession, error)
	restore(raw []byte) (bridgeSession, error)
}

// SelectWallets returns the known wallet apps with the given ids, all of them when ids is empty.
// The result is ordered by id.
func SelectWallets(ids ...string) ([]tonconnect.Wallet, error) {
	if len(ids) == 0 {
		for id := range tonconnect.Wallets {
			ids = append(ids, id)
		}
	}
	ids = slices.Clone(ids)
	slices.Sort(ids)

	wallets := make([]tonconnect.Wallet, 0, len(ids))
	for _, id := range slices.Compact(ids) {
		w, ok := tonconnect.Wallets[id]
		if !ok {
			return nil, fmt.Errorf("unknown wallet app %q", id)
		}
		wallets = append(wallets, w)
	}

	return wallets, nil
}

type tonconnectFactory struct {
	manifestURL string
	wallets     []tonconnect.Wallet
	testnet     bool
}

func (f *tonconnectFactory) newSession() (bridgeSession, error) {
	s, err := tonconnect.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge session: %w", err)
	}

	return &tonconnectSession{s: s, factory: f}, nil
}

func (f *tonconnectFactory) restore(raw []byte) (bridgeSession, error) {
	var s tonconnect.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode bridge session: %w", err)
	}

	return &tonconnectSession{s: &s, factory: f}, nil
}

type tonconnectSession struct {
	s       *tonconnect.Session
	factory *tonconnectFactory
}

func (t *tonconnectSession) universalLinks() ([]walletLink, error) {
	req, err := tonconnect.NewConnectRequest(t.factory.manifestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build connect request: %w", err)
	}

	links := make([]walletLink, 0, len(t.factory.wallets))
	for _, w := range t.factory.wallets {
		link, err := t.s.GenerateUniversalLink(w, *req)
		if err != nil {
			return nil, fmt.Errorf("failed to generate link for %s: %w", w.Name, err)
		}
		links = append(links, walletLink{Name: w.Name, URL: link})
	}

	return links, nil
}

// connectReply holds the fields of a wallet connect event used here, in their wire form.
type connectReply struct {
	Items []struct {
		Name      string          `json:"name"`
		Address   string          `json:"address"`
		Network   json.RawMessage `json:"network"`
		PublicKey string          `json:"publicKey"`
	} `json:"items"`
	Device struct {
		AppName string `json:"appName"`
	} `json:"device"`
}

func (t *tonconnectSession) connect(ctx context.Context) (*wallet.Wallet, error) {
	res, err := t.s.Connect(ctx, t.factory.wallets...)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode connect reply: %w", err)
	}
	var reply connectReply
	if err := json.Unmarshal(b, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode connect reply: %w", err)
	}

	for _, item := range reply.Items {
		if item.Name != "ton_addr" {
			continue
		}

		return &wallet.Wallet{
			Address:   item.Address,
			Chain:     strings.Trim(string(item.Network), `"`),
			PublicKey: item.PublicKey,
			AppName:   reply.Device.AppName,
		}, nil
	}

	return nil, errors.New("wallet did not share its address")
}

func (t *tonconnectSession) sendTransaction(ctx context.Context, tx wallet.Transaction) (*wallet.SendResult, error) {
	txOpts := make([]tonconnect.TransactionOption, 0, len(tx.Messages)+2)
	if tx.ValidUntil > 0 {
		txOpts = append(txOpts, tonconnect.WithTimeout(time.Until(time.Unix(tx.ValidUntil, 0))))
	}
	if onTestnet(tx, t.factory.testnet) {
		txOpts = append(txOpts, tonconnect.WithTestnet())
	}
	for _, m := range tx.Messages {
		var msgOpts []tonconnect.MessageOption
		if m.Payload != "" {
			msgOpts = append(msgOpts, tonconnect.WithPayload(m.Payload))
		}
		msg, err := tonconnect.NewMessage(m.Address, m.Amount, msgOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to build message: %w", err)
		}
		txOpts = append(txOpts, tonconnect.WithMessage(*msg))
	}

	req, err := tonconnect.NewTransaction(txOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	boc, err := t.s.SendTransaction(ctx, *req)
	if err != nil {
		return nil, err
	}

	return &wallet.SendResult{BOC: encodeBOC(boc)}, nil
}

// onTestnet reports whether tx targets testnet, falling back to the configured network when tx
// names no chain.
func onTestnet(tx wallet.Transaction, configured bool) bool {
	if tx.Network == "" {
		return configured
	}

	return tx.Network == ton.TestnetChainID
}

func (t *tonconnectSession) disconnect(ctx context.Context) error {
	return t.s.Disconnect(ctx)
}

func (t *tonconnectSession) marshal() ([]byte, error) {
	return json.Marshal(t.s)
}

func encodeBOC(v any) string {
	switch b := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(b)
	case string:
		return b
	default:
		return fmt.Sprint(v)
	}
}

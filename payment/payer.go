// Package payment builds TON and USDT payment requests and submits them through a connected
// wallet.
package payment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/kartacom/tonpay/chain/ton"
	"github.com/kartacom/tonpay/chain/ton/provider"
	"github.com/kartacom/tonpay/pkg/logger"
	"github.com/kartacom/tonpay/wallet"
)

const (
	// DefaultJettonMasterAddress is the USDT jetton master on mainnet.
	DefaultJettonMasterAddress = "EQCxE6mUtQJKFnGfaROTKOt1lZbDiiX1kCixRv7Nw2Id_sDs"
	// DefaultJettonGasBudget is the TON attached to a jetton transfer to pay for its fees.
	DefaultJettonGasBudget = "0.038"
	// DefaultForwardAmountNano is the TON forwarded to the recipient with the transfer notification.
	DefaultForwardAmountNano = 1
	// DefaultLifetime is how long a built transaction stays valid.
	DefaultLifetime = 5 * time.Minute
)

const (
	statusSubmitted = "submitted"
	statusSkipped   = "skipped"
	statusFailed    = "failed"
)

// ErrUnsupportedAsset is returned for assets other than TON and USDT.
var ErrUnsupportedAsset = errors.New("unsupported asset")

// Asset is the currency of a payment.
type Asset string

const (
	AssetTON  Asset = "TON"
	AssetUSDT Asset = "USDT"
)

// ParseAsset parses an asset name, case-insensitive.
func ParseAsset(s string) (Asset, error) {
	switch Asset(strings.ToUpper(strings.TrimSpace(s))) {
	case AssetTON:
		return AssetTON, nil
	case AssetUSDT:
		return AssetUSDT, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAsset, s)
	}
}

// Request is a payment to the invoice address.
type Request struct {
	// Amount is a decimal string in whole units of Asset, e.g. "1.5".
	Amount string
	Asset  Asset
	// Message is attached to the transfer as a text comment.
	Message string
}

// Session is the wallet session payments are submitted through. *wallet.Manager satisfies it.
type Session interface {
	Initialized() bool
	Connected() bool
	Wallet() *wallet.Wallet
	Connect(ctx context.Context) (*wallet.Wallet, error)
	SendTransaction(ctx context.Context, tx wallet.Transaction) (*wallet.SendResult, error)
}

// ClientSource returns a chain client for a network. *provider.ClientProvider satisfies it.
type ClientSource interface {
	Client(ctx context.Context, network ton.Network) (provider.Client, error)
}

// Config configures a Payer. Empty fields take the package defaults, except InvoiceAddress.
type Config struct {
	InvoiceAddress      string
	JettonMasterAddress string
	// JettonGasBudget is in TON.
	JettonGasBudget   string
	ForwardAmountNano uint64
	Lifetime          time.Duration
}

func (c *Config) applyDefaults() {
	if c.JettonMasterAddress == "" {
		c.JettonMasterAddress = DefaultJettonMasterAddress
	}
	if c.JettonGasBudget == "" {
		c.JettonGasBudget = DefaultJettonGasBudget
	}
	if c.ForwardAmountNano == 0 {
		c.ForwardAmountNano = DefaultForwardAmountNano
	}
	if c.Lifetime <= 0 {
		c.Lifetime = DefaultLifetime
	}
}

// Payer builds payment transactions and submits them through a Session.
type Payer struct {
	lggr    logger.Logger
	session Session
	clients ClientSource
	metrics *Metrics

	invoice      *address.Address
	jettonMaster *address.Address
	gasBudget    tlb.Coins
	forward      tlb.Coins
	lifetime     time.Duration

	now func() time.Time
}

// NewPayer creates a Payer. metrics may be nil.
func NewPayer(lggr logger.Logger, session Session, clients ClientSource, config Config, metrics *Metrics) (*Payer, error) {
	if session == nil {
		return nil, errors.New("wallet session is required")
	}
	if clients == nil {
		return nil, errors.New("client source is required")
	}
	config.applyDefaults()

	if config.InvoiceAddress == "" {
		return nil, errors.New("invoice address is required")
	}
	invoice, err := ton.ParseAddress(config.InvoiceAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid invoice address: %w", err)
	}
	master, err := ton.ParseAddress(config.JettonMasterAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid jetton master address: %w", err)
	}
	gas, err := ton.ToNano(config.JettonGasBudget)
	if err != nil {
		return nil, fmt.Errorf("invalid jetton gas budget: %w", err)
	}

	return &Payer{
		lggr:         lggr.Named("payer"),
		session:      session,
		clients:      clients,
		metrics:      metrics,
		invoice:      invoice,
		jettonMaster: master,
		gasBudget:    gas,
		forward:      tlb.FromNanoTONU(config.ForwardAmountNano),
		lifetime:     config.Lifetime,
		now:          time.Now,
	}, nil
}

// Pay makes sure a wallet is connected and asks it to approve the payment. It returns (nil, nil)
// when no wallet is available after the connect attempt.
func (p *Payer) Pay(ctx context.Context, req Request) (*wallet.SendResult, error) {
	start := p.now()

	res, err := p.pay(ctx, req)

	status := statusSubmitted
	switch {
	case err != nil:
		status = statusFailed
	case res == nil:
		status = statusSkipped
	}
	if p.metrics != nil {
		p.metrics.RecordPayment(req.Asset, status, p.now().Sub(start).Seconds())
	}

	return res, err
}

func (p *Payer) pay(ctx context.Context, req Request) (*wallet.SendResult, error) {
	if req.Asset != AssetTON && req.Asset != AssetUSDT {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAsset, req.Asset)
	}

	if p.session.Wallet() == nil || !p.session.Connected() {
		if _, err := p.session.Connect(ctx); err != nil {
			return nil, err
		}
	}

	if req.Asset == AssetUSDT {
		return p.payJetton(ctx, req)
	}

	return p.payNative(ctx, req)
}

func (p *Payer) payNative(ctx context.Context, req Request) (*wallet.SendResult, error) {
	w := p.session.Wallet()
	if !p.session.Initialized() || w == nil {
		p.lggr.Warn("No connected wallet, payment skipped")
		return nil, nil
	}

	value, err := ton.ToNano(req.Amount)
	if err != nil {
		return nil, err
	}
	comment, err := CommentCell(req.Message)
	if err != nil {
		return nil, err
	}

	tx := wallet.Transaction{
		ValidUntil: p.validUntil(),
		Network:    w.Chain,
		From:       w.Address,
		Messages: []wallet.Message{{
			Address: p.invoice.String(),
			Amount:  value.Nano().String(),
			Payload: base64.StdEncoding.EncodeToString(comment.ToBOC()),
		}},
	}

	requestID := uuid.NewString()
	p.lggr.Infow("Requesting TON payment",
		"requestID", requestID, "amount", req.Amount, "to", p.invoice.String())

	res, err := p.session.SendTransaction(ctx, tx)
	if err != nil {
		p.lggr.Errorw("TON payment failed", "requestID", requestID, "err", err)
		return nil, err
	}
	p.lggr.Infow("TON payment submitted", "requestID", requestID)

	return res, nil
}

func (p *Payer) payJetton(ctx context.Context, req Request) (*wallet.SendResult, error) {
	w := p.session.Wallet()
	if !p.session.Initialized() || w == nil {
		p.lggr.Warn("No connected wallet, payment skipped")
		return nil, nil
	}

	cents, err := ton.ToCents(req.Amount)
	if err != nil {
		return nil, err
	}
	units, err := ton.JettonUnits(cents)
	if err != nil {
		return nil, err
	}
	network, err := w.Network()
	if err != nil {
		return nil, err
	}
	owner, err := ton.ParseAddress(w.Address)
	if err != nil {
		return nil, err
	}

	client, err := p.clients.Client(ctx, network)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	jettonWallet, err := client.JettonWalletAddress(ctx, p.jettonMaster, owner)
	if err != nil {
		p.recordLookup(statusFailed)
		return nil, err
	}
	p.recordLookup("ok")

	comment, err := CommentCell(req.Message)
	if err != nil {
		return nil, err
	}
	body := TransferBody(TransferParams{
		Amount:              units,
		Destination:         p.invoice,
		ResponseDestination: owner,
		ForwardAmount:       p.forward,
		ForwardPayload:      comment,
	})

	requestID := uuid.NewString()
	p.lggr.Infow("Requesting USDT payment",
		"requestID", requestID, "amount", req.Amount, "jettonWallet", jettonWallet.String())
	p.lggr.Infow("See transaction at", "requestID", requestID, "url", ton.ExplorerURL(jettonWallet, network))

	sender := &sessionSender{
		session:    p.session,
		from:       owner,
		network:    w.Chain,
		validUntil: p.validUntil,
	}

	res, err := sender.Send(ctx, SendArgs{To: jettonWallet, Value: p.gasBudget, Body: body})
	if err != nil {
		p.lggr.Errorw("USDT payment failed", "requestID", requestID, "err", err)
		return nil, err
	}
	p.lggr.Infow("USDT payment submitted", "requestID", requestID)

	return res, nil
}

func (p *Payer) recordLookup(status string) {
	if p.metrics != nil {
		p.metrics.RecordJettonLookup(status)
	}
}

func (p *Payer) validUntil() int64 {
	return p.now().Add(p.lifetime).Unix()
}

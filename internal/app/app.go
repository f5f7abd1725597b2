// Package app wires the wallet session, chain clients and payer from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/kartacom/tonpay/chain/ton/provider"
	"github.com/kartacom/tonpay/config"
	"github.com/kartacom/tonpay/payment"
	"github.com/kartacom/tonpay/pkg/logger"
	"github.com/kartacom/tonpay/wallet"
	"github.com/kartacom/tonpay/wallet/bridge"
)

// App is one wallet session with a payer on top of it. Close must be called when done.
type App struct {
	lggr     logger.Logger
	manager  *wallet.Manager
	payer    *payment.Payer
	registry *prometheus.Registry
}

// Options overrides the production wiring, used in tests.
type Options struct {
	// ConnectorFactory replaces the bridge connector.
	ConnectorFactory wallet.ConnectorFactory
	// Clients replaces the chain client provider.
	Clients payment.ClientSource
}

// New builds an App from cfg. Wallet links and notifications are written to out.
func New(lggr logger.Logger, cfg *config.Config, out io.Writer, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	factory := opts.ConnectorFactory
	if factory == nil {
		factory = bridge.NewFactory(lggr, bridge.Config{
			SessionPath: cfg.Wallet.SessionPath,
			Links:       out,
			Wallets:     cfg.Wallet.Apps,
		})
	}

	manager, err := wallet.NewManager(lggr, wallet.ManagerConfig{
		Factory: factory,
		Options: wallet.Options{
			ManifestURL:       cfg.Wallet.ManifestURL,
			ReturnURL:         cfg.Wallet.ReturnURL,
			RestoreConnection: cfg.Wallet.RestoreConnection,
			Network:           cfg.ParsedNetwork(),
		},
		Notifier:       wallet.NewLogNotifier(lggr, out),
		Loader:         wallet.NewLogLoader(lggr),
		RestoreTimeout: cfg.Wallet.RestoreTimeout,
	})
	if err != nil {
		return nil, err
	}

	clients := opts.Clients
	if clients == nil {
		clients, err = provider.NewClientProvider(lggr, provider.ClientProviderConfig{
			Resolver: cfg.Resolver(lggr),
			APIKey:   cfg.Provider.APIKey,
		})
		if err != nil {
			manager.Close()
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	payer, err := payment.NewPayer(lggr, manager, clients, payment.Config{
		InvoiceAddress:      cfg.Payment.InvoiceAddress,
		JettonMasterAddress: cfg.Payment.JettonMaster,
		JettonGasBudget:     cfg.Payment.JettonGasBudget,
		ForwardAmountNano:   cfg.Payment.ForwardAmountNano,
		Lifetime:            cfg.Payment.Lifetime,
	}, payment.NewMetrics(registry))
	if err != nil {
		manager.Close()
		return nil, err
	}

	if err := manager.Init(); err != nil {
		manager.Close()
		return nil, err
	}

	return &App{
		lggr:     lggr,
		manager:  manager,
		payer:    payer,
		registry: registry,
	}, nil
}

// Connect restores the stored session or asks the user to pick a wallet.
func (a *App) Connect(ctx context.Context) (*wallet.Wallet, error) {
	return a.manager.Connect(ctx)
}

// Restore resumes the stored session without asking the user, returning nil when there is none.
func (a *App) Restore(ctx context.Context) (*wallet.Wallet, error) {
	if err := a.manager.RestoreConnection(ctx); err != nil {
		return nil, err
	}
	if _, err := a.manager.ConnectionRestored(ctx); err != nil {
		return nil, err
	}

	return a.manager.Wallet(), nil
}

// Disconnect ends the stored session, if any.
func (a *App) Disconnect(ctx context.Context) error {
	if _, err := a.Restore(ctx); err != nil {
		return err
	}

	return a.manager.Disconnect(ctx)
}

// Status returns the connection state.
func (a *App) Status() wallet.Status {
	return a.manager.Status()
}

// Pay submits a payment through the connected wallet.
func (a *App) Pay(ctx context.Context, req payment.Request) (*wallet.SendResult, error) {
	return a.payer.Pay(ctx, req)
}

// WriteMetrics writes the metrics recorded so far in the Prometheus text exposition format.
func (a *App) WriteMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}

	return nil
}

// Close releases the wallet session.
func (a *App) Close() {
	a.manager.Close()
}

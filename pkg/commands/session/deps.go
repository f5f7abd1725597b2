// Package session provides the CLI commands operating on a wallet session.
package session

import (
	"context"
	"fmt"
	"io"

	"github.com/kartacom/tonpay/config"
	"github.com/kartacom/tonpay/internal/app"
	"github.com/kartacom/tonpay/payment"
	"github.com/kartacom/tonpay/pkg/logger"
	"github.com/kartacom/tonpay/wallet"
)

// DefaultConfigPath is used when no --config flag is set.
const DefaultConfigPath = "tonpay.yml"

// Session is a wallet session the commands run against.
type Session interface {
	Connect(ctx context.Context) (*wallet.Wallet, error)
	Restore(ctx context.Context) (*wallet.Wallet, error)
	Disconnect(ctx context.Context) error
	Pay(ctx context.Context, req payment.Request) (*wallet.SendResult, error)
	WriteMetrics(w io.Writer) error
	Close()
}

var _ Session = (*app.App)(nil)

// ConfigLoaderFunc loads the configuration from a file path.
type ConfigLoaderFunc func(path string) (*config.Config, error)

// SessionOpenerFunc opens a session. Wallet links and notifications are written to out.
type SessionOpenerFunc func(lggr logger.Logger, cfg *config.Config, out io.Writer) (Session, error)

// defaultSessionOpener is the production implementation that wires the bridge connector. The
// session logs at the configured level.
func defaultSessionOpener(lggr logger.Logger, cfg *config.Config, out io.Writer) (Session, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	if cli, err := logger.NewCLI(level); err == nil {
		lggr = cli
	}

	return app.New(lggr, cfg, out, app.Options{})
}

// Deps holds the injectable dependencies for session commands.
// All fields are optional; nil values will use production defaults.
type Deps struct {
	// ConfigLoader loads the configuration.
	// Default: config.Load
	ConfigLoader ConfigLoaderFunc

	// SessionOpener opens the wallet session.
	// Default: app.New
	SessionOpener SessionOpenerFunc
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.SessionOpener == nil {
		d.SessionOpener = defaultSessionOpener
	}
}

// Config holds the configuration of the session commands.
type Config struct {
	Logger logger.Logger
	// Deps overrides production dependencies, nil uses the defaults.
	Deps *Deps
}

func (c *Config) deps() {
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	var d Deps
	if c.Deps != nil {
		d = *c.Deps
	}
	d.applyDefaults()
	c.Deps = &d
}

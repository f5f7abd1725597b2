// Package config loads the tonpay configuration from a YAML file and TONPAY_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kartacom/tonpay/chain/ton"
	"github.com/kartacom/tonpay/chain/ton/provider"
	"github.com/kartacom/tonpay/payment"
	"github.com/kartacom/tonpay/pkg/logger"
	"github.com/kartacom/tonpay/wallet"
)

const (
	DefaultManifestURL = "https://karta.com/tma/static-assets/tonconnect-manifest.json"
	DefaultReturnURL   = "https://t.me/kartacom_bot/app/"
	DefaultSessionPath = ".tonpay/session.json"

	// ProviderAccess resolves a healthy toncenter node through the orbs access gateway.
	ProviderAccess = "access"
	// ProviderJSONRPC uses the configured toncenter compatible endpoints.
	ProviderJSONRPC = "jsonrpc"
	// ProviderLiteserver uses liteserver global configs.
	ProviderLiteserver = "liteserver"
)

// LogConfig is the configuration for logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn or error
}

// WalletConfig is the configuration for the wallet connection.
type WalletConfig struct {
	ManifestURL       string        `mapstructure:"manifest_url" yaml:"manifest_url"`             // The app manifest shown by wallet apps
	ReturnURL         string        `mapstructure:"return_url" yaml:"return_url"`                 // Where wallet apps return to after approval
	SessionPath       string        `mapstructure:"session_path" yaml:"session_path"`             // The file the bridge session is persisted to
	RestoreConnection bool          `mapstructure:"restore_connection" yaml:"restore_connection"` // Resume the persisted session on connect
	RestoreTimeout    time.Duration `mapstructure:"restore_timeout" yaml:"restore_timeout"`       // Deadline of each restore step
	Apps              []string      `mapstructure:"apps" yaml:"apps,omitempty"`                   // Wallet app ids offered for selection, all when empty
}

// PaymentConfig is the configuration for building payments.
type PaymentConfig struct {
	InvoiceAddress    string        `mapstructure:"invoice_address" yaml:"invoice_address"`         // The wallet payments are sent to
	JettonMaster      string        `mapstructure:"jetton_master" yaml:"jetton_master"`             // The USDT jetton master
	JettonGasBudget   string        `mapstructure:"jetton_gas_budget" yaml:"jetton_gas_budget"`     // TON attached to a jetton transfer
	ForwardAmountNano uint64        `mapstructure:"forward_amount_nano" yaml:"forward_amount_nano"` // TON forwarded with the transfer notification
	Lifetime          time.Duration `mapstructure:"lifetime" yaml:"lifetime"`                       // How long a built transaction stays valid
}

// ProviderConfig is the configuration for the chain read clients.
//
// WARNING: This data type contains sensitive fields and should not be logged or set in file
// configuration.
type ProviderConfig struct {
	Kind       string `mapstructure:"kind" yaml:"kind"`                         // access, jsonrpc or liteserver
	AccessURL  string `mapstructure:"access_url" yaml:"access_url,omitempty"`   // The access gateway used by the access kind
	MainnetURL string `mapstructure:"mainnet_url" yaml:"mainnet_url,omitempty"` // Mainnet endpoint for the jsonrpc and liteserver kinds
	TestnetURL string `mapstructure:"testnet_url" yaml:"testnet_url,omitempty"` // Testnet endpoint for the jsonrpc and liteserver kinds
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`         // Secret: toncenter API key
}

// Config wraps the entire configuration of tonpay.
type Config struct {
	Network  string         `mapstructure:"network" yaml:"network"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Wallet   WalletConfig   `mapstructure:"wallet" yaml:"wallet"`
	Payment  PaymentConfig  `mapstructure:"payment" yaml:"payment"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
}

// Load loads the config from the file path, falling back to env vars if the file does not exist.
// If the file exists, any env vars that are set will override the values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filePath)

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadEnv loads the config from the environment variables.
func LoadEnv() (*Config, error) {
	v := newViper()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

// LoadFile loads the config from a file.
func LoadFile(filePath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

var (
	defaults = map[string]any{
		"network":                     string(ton.Mainnet),
		"log.level":                   "info",
		"wallet.manifest_url":         DefaultManifestURL,
		"wallet.return_url":           DefaultReturnURL,
		"wallet.session_path":         DefaultSessionPath,
		"wallet.restore_connection":   true,
		"wallet.restore_timeout":      wallet.DefaultRestoreTimeout,
		"payment.jetton_master":       payment.DefaultJettonMasterAddress,
		"payment.jetton_gas_budget":   payment.DefaultJettonGasBudget,
		"payment.forward_amount_nano": payment.DefaultForwardAmountNano,
		"payment.lifetime":            payment.DefaultLifetime,
		"provider.kind":               ProviderAccess,
		"provider.access_url":         provider.DefaultAccessURL,
	}

	// envBindings maps config keys to the environment variables that can provide their value.
	// The first name is preferred, later names are accepted for compatibility.
	envBindings = map[string][]string{
		"network":                     {"TONPAY_NETWORK"},
		"log.level":                   {"TONPAY_LOG_LEVEL"},
		"wallet.manifest_url":         {"TONPAY_MANIFEST_URL"},
		"wallet.return_url":           {"TONPAY_RETURN_URL"},
		"wallet.session_path":         {"TONPAY_SESSION_PATH"},
		"wallet.restore_connection":   {"TONPAY_RESTORE_CONNECTION"},
		"wallet.restore_timeout":      {"TONPAY_RESTORE_TIMEOUT"},
		"wallet.apps":                 {"TONPAY_WALLET_APPS"},
		"payment.invoice_address":     {"TONPAY_INVOICE_ADDRESS"},
		"payment.jetton_master":       {"TONPAY_JETTON_MASTER"},
		"payment.jetton_gas_budget":   {"TONPAY_JETTON_GAS_BUDGET"},
		"payment.forward_amount_nano": {"TONPAY_FORWARD_AMOUNT_NANO"},
		"payment.lifetime":            {"TONPAY_PAYMENT_LIFETIME"},
		"provider.kind":               {"TONPAY_PROVIDER_KIND"},
		"provider.access_url":         {"TONPAY_ACCESS_URL"},
		"provider.mainnet_url":        {"TONPAY_MAINNET_URL"},
		"provider.testnet_url":        {"TONPAY_TESTNET_URL"},
		"provider.api_key":            {"TONPAY_TONCENTER_API_KEY", "TONCENTER_API_KEY"},
	}
)

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		// Prepend the env key to the start of the arguments
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that the config can be used to make payments.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ton.ParseNetwork(c.Network); err != nil {
		errs = append(errs, err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Wallet.ManifestURL == "" {
		errs = append(errs, errors.New("wallet.manifest_url is required"))
	}
	if c.Wallet.SessionPath == "" {
		errs = append(errs, errors.New("wallet.session_path is required"))
	}
	if c.Wallet.RestoreTimeout <= 0 {
		errs = append(errs, errors.New("wallet.restore_timeout must be positive"))
	}
	if c.Payment.InvoiceAddress == "" {
		errs = append(errs, errors.New("payment.invoice_address is required"))
	} else if _, err := ton.ParseAddress(c.Payment.InvoiceAddress); err != nil {
		errs = append(errs, fmt.Errorf("payment.invoice_address: %w", err))
	}
	if _, err := ton.ParseAddress(c.Payment.JettonMaster); err != nil {
		errs = append(errs, fmt.Errorf("payment.jetton_master: %w", err))
	}
	if _, err := ton.ToNano(c.Payment.JettonGasBudget); err != nil {
		errs = append(errs, fmt.Errorf("payment.jetton_gas_budget: %w", err))
	}

	switch c.Provider.Kind {
	case ProviderAccess:
		if c.Provider.AccessURL == "" {
			errs = append(errs, errors.New("provider.access_url is required"))
		}
	case ProviderJSONRPC, ProviderLiteserver:
	default:
		errs = append(errs, fmt.Errorf("provider.kind: unknown kind %q", c.Provider.Kind))
	}

	return errors.Join(errs...)
}

// ParsedNetwork returns the configured network.
func (c *Config) ParsedNetwork() ton.Network {
	n, err := ton.ParseNetwork(c.Network)
	if err != nil {
		return ton.Mainnet
	}

	return n
}

// Resolver returns the endpoint resolver of the configured provider kind.
func (c *Config) Resolver(lggr logger.Logger) provider.Resolver {
	switch c.Provider.Kind {
	case ProviderJSONRPC:
		return provider.StaticResolver{
			Kind:    provider.KindJSONRPC,
			Mainnet: c.Provider.MainnetURL,
			Testnet: c.Provider.TestnetURL,
		}
	case ProviderLiteserver:
		r := provider.DefaultStaticResolver()
		if c.Provider.MainnetURL != "" {
			r.Mainnet = c.Provider.MainnetURL
		}
		if c.Provider.TestnetURL != "" {
			r.Testnet = c.Provider.TestnetURL
		}

		return r
	default:
		return provider.NewAccessResolver(lggr, provider.WithAccessURL(c.Provider.AccessURL))
	}
}

// YAML renders the config with secrets redacted.
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	if redacted.Provider.APIKey != "" {
		redacted.Provider.APIKey = "xxxxx"
	}

	return yaml.Marshal(redacted)
}

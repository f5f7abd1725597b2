package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kartacom/tonpay/chain/ton"
	"github.com/kartacom/tonpay/payment"
	"github.com/kartacom/tonpay/pkg/commands/text"
	"github.com/kartacom/tonpay/wallet"
)

// configPath returns the value of the --config flag, inherited from the root command.
func configPath(cmd *cobra.Command) string {
	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}

	return DefaultConfigPath
}

// withSession loads the config, opens a session and runs fn with it.
func withSession(cmd *cobra.Command, cfg Config, fn func(s Session) error) error {
	c, err := cfg.Deps.ConfigLoader(configPath(cmd))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	s, err := cfg.Deps.SessionOpener(cfg.Logger, c, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to open wallet session: %w", err)
	}
	defer s.Close()

	return fn(s)
}

var (
	connectLong = text.LongDesc(`
		Connects a wallet app. A stored session is resumed when possible, otherwise the universal
		links of the supported wallet apps are printed and the command waits for one of them to
		approve the connection.
	`)

	connectExample = text.Examples(`
		# Connect using tonpay.yml in the working directory
		tonpay connect

		# Connect a testnet wallet
		TONPAY_NETWORK=testnet tonpay connect --config ./testnet.yml
	`)
)

// NewConnectCommand creates the connect command.
func NewConnectCommand(cfg Config) *cobra.Command {
	cfg.deps()

	return &cobra.Command{
		Use:     "connect",
		Short:   "Connect a wallet",
		Long:    connectLong,
		Example: connectExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, cfg, func(s Session) error {
				w, err := s.Connect(cmd.Context())
				if err != nil {
					return err
				}
				if w == nil {
					cmd.Println("No wallet connected")
					return nil
				}
				cmd.Printf("Connected %s on %s via %s\n", w.Address, chainName(w), appName(w))

				return nil
			})
		},
	}
}

// NewDisconnectCommand creates the disconnect command.
func NewDisconnectCommand(cfg Config) *cobra.Command {
	cfg.deps()

	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the stored wallet session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, cfg, func(s Session) error {
				if err := s.Disconnect(cmd.Context()); err != nil {
					return err
				}
				cmd.Println("Wallet disconnected")

				return nil
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(cfg Config) *cobra.Command {
	cfg.deps()

	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored wallet session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, cfg, func(s Session) error {
				w, err := s.Restore(cmd.Context())
				if err != nil {
					return err
				}

				if asJSON {
					b, err := json.MarshalIndent(statusView(w), "", "  ")
					if err != nil {
						return err
					}
					cmd.Println(string(b))

					return nil
				}

				if w == nil {
					cmd.Println("No wallet connected")
					return nil
				}
				cmd.Printf("Address: %s\n", w.Address)
				cmd.Printf("Chain:   %s\n", chainName(w))
				cmd.Printf("App:     %s\n", appName(w))
				if addr, err := ton.ParseAddress(w.Address); err == nil {
					network, _ := w.Network()
					cmd.Printf("Explorer: %s\n", ton.ExplorerURL(addr, network))
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the session as JSON")

	return cmd
}

type status struct {
	Connected bool           `json:"connected"`
	Wallet    *wallet.Wallet `json:"wallet,omitempty"`
}

func statusView(w *wallet.Wallet) status {
	return status{Connected: w != nil, Wallet: w}
}

var (
	payLong = text.LongDesc(`
		Asks the connected wallet to approve a payment to the invoice address. TON is sent as a
		native transfer, USDT as a jetton transfer from the wallet's USDT jetton wallet. The message
		is attached as a text comment. A wallet is connected first when there is none.
	`)

	payExample = text.Examples(`
		# Pay 1.5 TON
		tonpay pay --amount 1.5 --message order-42

		# Pay 250 USDT
		tonpay pay --amount 250 --asset USDT --message order-42
	`)
)

// NewPayCommand creates the pay command.
func NewPayCommand(cfg Config) *cobra.Command {
	cfg.deps()

	var (
		amount       string
		asset        string
		message      string
		printMetrics bool
	)

	cmd := &cobra.Command{
		Use:     "pay",
		Short:   "Pay the invoice address",
		Long:    payLong,
		Example: payExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := payment.ParseAsset(asset)
			if err != nil {
				return err
			}

			return withSession(cmd, cfg, func(s Session) error {
				res, err := s.Pay(cmd.Context(), payment.Request{Amount: amount, Asset: a, Message: message})
				if printMetrics {
					defer func() {
						if merr := s.WriteMetrics(cmd.OutOrStdout()); merr != nil {
							cfg.Logger.Warnw("Failed to write metrics", "err", merr)
						}
					}()
				}
				if err != nil {
					return fmt.Errorf("payment failed: %w", err)
				}
				if res == nil {
					cmd.Println("No wallet connected, payment skipped")
					return nil
				}
				cmd.Printf("Payment sent: %s\n", res.BOC)

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount in whole units of the asset, e.g. 1.5 (required)")
	cmd.Flags().StringVar(&asset, "asset", string(payment.AssetTON), "Asset to pay with: TON or USDT")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Comment attached to the transfer")
	cmd.Flags().BoolVar(&printMetrics, "print-metrics", false, "Print payment metrics when done")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

// NewConfigCommand creates the config command printing the effective configuration.
func NewConfigCommand(cfg Config) *cobra.Command {
	cfg.deps()

	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := cfg.Deps.ConfigLoader(configPath(cmd))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			b, err := c.YAML()
			if err != nil {
				return err
			}
			cmd.Print(string(b))

			if err := c.Validate(); err != nil {
				for _, line := range strings.Split(err.Error(), "\n") {
					cmd.PrintErrf("warning: %s\n", line)
				}
			}

			return nil
		},
	}
}

func chainName(w *wallet.Wallet) string {
	network, err := w.Network()
	if err != nil {
		return "chain " + w.Chain
	}

	return network.Chain().String()
}

func appName(w *wallet.Wallet) string {
	if w.AppName == "" {
		return "unknown app"
	}

	return w.AppName
}

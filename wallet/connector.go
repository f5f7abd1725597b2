// Package wallet manages the connection to a user's TON wallet over a wallet-connection
// protocol (TON Connect) and forwards transactions to the connected wallet for signing.
package wallet

import (
	"context"

	"github.com/kartacom/tonpay/chain/ton"
)

// Wallet is a snapshot of the connected wallet.
type Wallet struct {
	// Address of the account in raw form ("0:<hex>"), as reported by the wallet.
	Address string `json:"address"`
	// Chain is the TON Connect chain id of the account ("-239" mainnet, "-3" testnet).
	Chain string `json:"chain"`
	// PublicKey of the account, hex encoded. Optional.
	PublicKey string `json:"public_key,omitempty"`
	// AppName is the name of the wallet application.
	AppName string `json:"app_name,omitempty"`
}

// Network returns the network of the wallet account.
func (w Wallet) Network() (ton.Network, error) {
	return ton.NetworkFromChainID(w.Chain)
}

// ModalStatus is the state of the wallet selection modal.
type ModalStatus string

const (
	ModalOpened ModalStatus = "opened"
	ModalClosed ModalStatus = "closed"
)

// ModalState is emitted whenever the wallet selection modal changes state.
type ModalState struct {
	Status ModalStatus
	// CloseReason is set when the modal closed, e.g. "action-cancelled" or "wallet-selected".
	CloseReason string
}

// Message is a single outgoing message of a transaction.
type Message struct {
	// Address is the destination in user-friendly form.
	Address string `json:"address"`
	// Amount in nanotons, decimal encoded.
	Amount string `json:"amount"`
	// Payload is the base64 encoded BOC of the message body. Optional.
	Payload string `json:"payload,omitempty"`
}

// Transaction is a transaction request submitted to the wallet for signing.
type Transaction struct {
	// ValidUntil is the unix time in seconds after which the wallet must reject the request.
	ValidUntil int64     `json:"valid_until"`
	Network    string    `json:"network,omitempty"`
	From       string    `json:"from,omitempty"`
	Messages   []Message `json:"messages"`
}

// SendResult is what the wallet returns once it signed and broadcast a transaction.
type SendResult struct {
	// BOC of the signed external message, base64 encoded.
	BOC string `json:"boc"`
}

// Options configures a Connector.
type Options struct {
	// ManifestURL is the TON Connect manifest the wallet shows during approval.
	ManifestURL string
	// ReturnURL is where the wallet sends the user back after an action.
	ReturnURL string
	// RestoreConnection enables resuming a previously approved session.
	RestoreConnection bool
	// Network the application expects the wallet to be on.
	Network ton.Network
}

// Connector is a wallet-connection protocol session.
type Connector interface {
	// RestoreConnection resumes a previously approved session. It must stop when ctx is done.
	RestoreConnection(ctx context.Context) error
	// Restored is closed once the connector finished its restore attempt.
	Restored() <-chan struct{}
	// Connected reports whether a wallet is connected.
	Connected() bool
	// Wallet returns the connected wallet, nil when disconnected.
	Wallet() *Wallet
	// OpenModal starts wallet selection and blocks until the user approved or dismissed it.
	OpenModal(ctx context.Context) error
	// Disconnect ends the session.
	Disconnect(ctx context.Context) error
	// SendTransaction asks the wallet to sign and broadcast tx.
	SendTransaction(ctx context.Context, tx Transaction) (*SendResult, error)
	// OnStatusChange registers a listener for wallet changes and listener errors.
	OnStatusChange(onWallet func(*Wallet), onError func(error)) (unsubscribe func())
	// OnModalStateChange registers a listener for modal state changes.
	OnModalStateChange(onState func(ModalState)) (unsubscribe func())
}

// ConnectorFactory builds a Connector.
type ConnectorFactory func(opts Options) (Connector, error)

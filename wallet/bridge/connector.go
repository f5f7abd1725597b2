// Package bridge implements wallet.Connector over the TON Connect HTTP bridge.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/kartacom/tonpay/chain/ton"
	"github.com/kartacom/tonpay/pkg/logger"
	"github.com/kartacom/tonpay/wallet"
)

const (
	closeReasonSelected  = "wallet-selected"
	closeReasonCancelled = "action-cancelled"
)

// ErrNotConnected is returned when a transaction is sent without a connected wallet.
var ErrNotConnected = errors.New("wallet is not connected")

// Config configures bridge connectors.
type Config struct {
	// SessionPath is the file the session is persisted to.
	SessionPath string
	// Links receives the universal links shown while a wallet is being selected.
	Links io.Writer
	// Wallets are the wallet app ids offered for selection, all known apps when empty.
	Wallets []string
}

func (c Config) validate() error {
	if c.SessionPath == "" {
		return errors.New("session path is required")
	}
	if c.Links == nil {
		return errors.New("links writer is required")
	}

	return nil
}

// NewFactory returns a wallet.ConnectorFactory building bridge connectors.
func NewFactory(lggr logger.Logger, config Config) wallet.ConnectorFactory {
	return func(opts wallet.Options) (wallet.Connector, error) {
		return New(lggr, config, opts)
	}
}

type statusListener struct {
	onWallet func(*wallet.Wallet)
	onError  func(error)
}

// Connector connects a wallet app through the TON Connect bridge.
type Connector struct {
	lggr    logger.Logger
	opts    wallet.Options
	store   *SessionStore
	links   io.Writer
	factory sessionFactory

	restored     chan struct{}
	restoredOnce sync.Once

	mu      sync.RWMutex
	session bridgeSession
	wallet  *wallet.Wallet

	subsMu     sync.Mutex
	nextSubID  int
	statusSubs map[int]statusListener
	modalSubs  map[int]func(wallet.ModalState)
}

var _ wallet.Connector = (*Connector)(nil)

// New creates a Connector.
func New(lggr logger.Logger, config Config, opts wallet.Options) (*Connector, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("failed to validate bridge config: %w", err)
	}
	if opts.ManifestURL == "" {
		return nil, errors.New("manifest url is required")
	}

	wallets, err := SelectWallets(config.Wallets...)
	if err != nil {
		return nil, err
	}

	return newConnector(lggr, config, opts, &tonconnectFactory{
		manifestURL: opts.ManifestURL,
		wallets:     wallets,
		testnet:     opts.Network == ton.Testnet,
	}), nil
}

func newConnector(lggr logger.Logger, config Config, opts wallet.Options, factory sessionFactory) *Connector {
	return &Connector{
		lggr:       lggr.Named("bridge"),
		opts:       opts,
		store:      NewSessionStore(config.SessionPath),
		links:      config.Links,
		factory:    factory,
		restored:   make(chan struct{}),
		statusSubs: make(map[int]statusListener),
		modalSubs:  make(map[int]func(wallet.ModalState)),
	}
}

// RestoreConnection resumes the persisted session, if any. A missing or unreadable session file
// leaves the connector disconnected.
func (c *Connector) RestoreConnection(ctx context.Context) error {
	defer c.markRestored()

	if !c.opts.RestoreConnection {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec, err := c.store.Load()
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			c.lggr.Warnw("Dropping unreadable wallet session", "path", c.store.Path(), "err", err)
			_ = c.store.Clear()
		}

		return nil
	}

	s, err := c.factory.restore(rec.Session)
	if err != nil {
		c.lggr.Warnw("Dropping wallet session", "path", c.store.Path(), "err", err)
		_ = c.store.Clear()

		return nil
	}

	c.setSession(s, rec.Wallet)
	c.lggr.Debugw("Wallet session restored", "address", rec.Wallet.Address)
	c.emitWallet(rec.Wallet)

	return nil
}

// Restored is closed once RestoreConnection has finished.
func (c *Connector) Restored() <-chan struct{} {
	return c.restored
}

func (c *Connector) markRestored() {
	c.restoredOnce.Do(func() { close(c.restored) })
}

// Connected reports whether a wallet is connected.
func (c *Connector) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.wallet != nil
}

// Wallet returns a copy of the connected wallet, nil when there is none.
func (c *Connector) Wallet() *wallet.Wallet {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.wallet == nil {
		return nil
	}
	w := *c.wallet

	return &w
}

// OpenModal starts a new session, prints the universal links of the offered wallet apps and
// waits until one of them connects or ctx is done.
func (c *Connector) OpenModal(ctx context.Context) error {
	s, err := c.factory.newSession()
	if err != nil {
		return err
	}

	links, err := s.universalLinks()
	if err != nil {
		return err
	}

	c.emitModal(wallet.ModalState{Status: wallet.ModalOpened})
	if err := c.printLinks(links); err != nil {
		c.emitModal(wallet.ModalState{Status: wallet.ModalClosed, CloseReason: closeReasonCancelled})
		return err
	}

	w, err := s.connect(ctx)
	if err != nil {
		c.emitModal(wallet.ModalState{Status: wallet.ModalClosed, CloseReason: closeReasonCancelled})
		c.emitError(err)

		return fmt.Errorf("failed to connect wallet: %w", err)
	}
	c.emitModal(wallet.ModalState{Status: wallet.ModalClosed, CloseReason: closeReasonSelected})

	c.setSession(s, w)
	c.persist(s, w)
	c.lggr.Infow("Wallet connected", "address", w.Address, "chain", w.Chain, "app", w.AppName)
	c.emitWallet(w)

	return nil
}

func (c *Connector) printLinks(links []walletLink) error {
	if _, err := fmt.Fprintln(c.links, "Open one of the links below to connect a wallet:"); err != nil {
		return err
	}
	for _, l := range links {
		if _, err := fmt.Fprintf(c.links, "  %s: %s\n", l.Name, withReturnURL(l.URL, c.opts.ReturnURL)); err != nil {
			return err
		}
	}

	return nil
}

// withReturnURL sets the ret parameter telling the wallet app where to go back after approval.
func withReturnURL(link, returnURL string) string {
	if returnURL == "" {
		return link
	}
	sep := "?"
	if strings.Contains(link, "?") {
		sep = "&"
	}

	return link + sep + "ret=" + url.QueryEscape(returnURL)
}

func (c *Connector) persist(s bridgeSession, w *wallet.Wallet) {
	raw, err := s.marshal()
	if err == nil {
		err = c.store.Save(Record{Session: raw, Wallet: w})
	}
	if err != nil {
		c.lggr.Warnw("Failed to persist wallet session", "path", c.store.Path(), "err", err)
	}
}

// Disconnect ends the session with the wallet app and forgets it locally.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()

	if s != nil {
		if err := s.disconnect(ctx); err != nil {
			return err
		}
	}

	c.setSession(nil, nil)
	if err := c.store.Clear(); err != nil {
		c.lggr.Warnw("Failed to clear wallet session", "err", err)
	}
	c.emitWallet(nil)

	return nil
}

// SendTransaction asks the connected wallet to sign and send tx.
func (c *Connector) SendTransaction(ctx context.Context, tx wallet.Transaction) (*wallet.SendResult, error) {
	c.mu.RLock()
	s, w := c.session, c.wallet
	c.mu.RUnlock()

	if s == nil || w == nil {
		return nil, ErrNotConnected
	}

	return s.sendTransaction(ctx, tx)
}

// OnStatusChange subscribes to wallet changes and connection errors.
func (c *Connector) OnStatusChange(onWallet func(*wallet.Wallet), onError func(error)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.statusSubs[id] = statusListener{onWallet: onWallet, onError: onError}

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.statusSubs, id)
	}
}

// OnModalStateChange subscribes to wallet selection state changes.
func (c *Connector) OnModalStateChange(onState func(wallet.ModalState)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.modalSubs[id] = onState

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.modalSubs, id)
	}
}

func (c *Connector) setSession(s bridgeSession, w *wallet.Wallet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session, c.wallet = s, w
}

func (c *Connector) emitWallet(w *wallet.Wallet) {
	for _, l := range c.statusListeners() {
		if l.onWallet == nil {
			continue
		}
		if w == nil {
			l.onWallet(nil)
			continue
		}
		cp := *w
		l.onWallet(&cp)
	}
}

func (c *Connector) emitError(err error) {
	for _, l := range c.statusListeners() {
		if l.onError != nil {
			l.onError(err)
		}
	}
}

func (c *Connector) emitModal(state wallet.ModalState) {
	c.subsMu.Lock()
	subs := make([]func(wallet.ModalState), 0, len(c.modalSubs))
	for _, fn := range c.modalSubs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range subs {
		if fn != nil {
			fn(state)
		}
	}
}

func (c *Connector) statusListeners() []statusListener {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	out := make([]statusListener, 0, len(c.statusSubs))
	for _, l := range c.statusSubs {
		out = append(out, l)
	}

	return out
}

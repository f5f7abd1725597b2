package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kartacom/tonpay/pkg/logger"
)

// DefaultRestoreTimeout bounds each restore step of the connect flow.
const DefaultRestoreTimeout = 10 * time.Second

const (
	connectErrorTitle  = "Connect wallet error"
	listenerErrorTitle = "Wallet connection error"
)

var (
	ErrRestoreTimeout  = errors.New("restore connection timeout")
	ErrRestoredTimeout = errors.New("connection restored timeout")
	ErrNotInitialized  = errors.New("wallet connector is not initialized")
	ErrClosed          = errors.New("wallet manager is closed")
)

// Status is the connection state of a Manager.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInitializing  Status = "initializing"
	StatusConnected     Status = "connected"
	StatusDisconnected  Status = "disconnected"
)

// ManagerConfig holds the configuration of a Manager.
type ManagerConfig struct {
	// Required: Builds the connector on first use.
	Factory ConnectorFactory
	// Options passed to Factory.
	Options Options
	// Optional: Surfaces connect failures. Defaults to a LogNotifier.
	Notifier Notifier
	// Optional: Loading indicator. Defaults to a LogLoader.
	Loader Loader
	// Optional: Deadline of each restore step. Defaults to DefaultRestoreTimeout.
	RestoreTimeout time.Duration
}

func (c ManagerConfig) validate() error {
	if c.Factory == nil {
		return errors.New("connector factory is required")
	}

	return nil
}

type eventKind int

const (
	eventWallet eventKind = iota
	eventClearWallet
	eventError
	eventModal
)

type event struct {
	kind   eventKind
	wallet *Wallet
	err    error
	modal  ModalState
	ack    chan struct{}
}

// deadline is a pending restore deadline, released exactly once.
type deadline struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (d *deadline) release() {
	d.once.Do(d.cancel)
}

// Manager owns one wallet-connection session. It replaces a process-wide connector: every
// operation that needs the session takes the Manager.
//
// Listener callbacks never mutate state; they post events to the Manager's event loop, which is
// the only writer of the held wallet.
type Manager struct {
	lggr   logger.Logger
	config ManagerConfig

	initMu    sync.Mutex
	connectMu sync.Mutex

	mu                sync.RWMutex
	connector         Connector
	wallet            *Wallet
	restored          bool
	closed            bool
	unsubscribeStatus func()
	unsubscribeModal  func()
	restoreDeadline   *deadline
	restoredDeadline  *deadline

	events    chan event
	stop      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// NewManager creates a Manager. The connector is not built until Init or Connect is called.
// Close must be called to release the Manager.
func NewManager(lggr logger.Logger, config ManagerConfig) (*Manager, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("failed to validate manager config: %w", err)
	}

	lggr = lggr.Named("wallet")
	if config.Notifier == nil {
		config.Notifier = NewLogNotifier(lggr, nil)
	}
	if config.Loader == nil {
		config.Loader = NewLogLoader(lggr)
	}
	if config.RestoreTimeout <= 0 {
		config.RestoreTimeout = DefaultRestoreTimeout
	}

	m := &Manager{
		lggr:     lggr,
		config:   config,
		events:   make(chan event),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go m.run()

	return m, nil
}

// Init builds the connector and registers the status and modal listeners. Only the first call
// does anything.
func (m *Manager) Init() error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.RLock()
	initialized, closed := m.connector != nil, m.closed
	m.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if initialized {
		return nil
	}

	c, err := m.config.Factory(m.config.Options)
	if err != nil {
		return fmt.Errorf("failed to create wallet connector: %w", err)
	}

	unsubscribeStatus := c.OnStatusChange(
		func(w *Wallet) { m.post(event{kind: eventWallet, wallet: w}) },
		func(err error) { m.post(event{kind: eventError, err: err}) },
	)
	unsubscribeModal := c.OnModalStateChange(func(s ModalState) {
		m.post(event{kind: eventModal, modal: s})
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsubscribeStatus()
		unsubscribeModal()

		return ErrClosed
	}
	m.connector = c
	m.unsubscribeStatus = unsubscribeStatus
	m.unsubscribeModal = unsubscribeModal
	m.mu.Unlock()

	m.lggr.Infow("Wallet connector initialized",
		"manifestURL", m.config.Options.ManifestURL,
		"network", m.config.Options.Network,
	)

	return nil
}

// RestoreConnection resumes a previously approved session. It fails with ErrRestoreTimeout when
// the connector does not finish within the restore timeout, cancelling the connector call.
func (m *Manager) RestoreConnection(ctx context.Context) error {
	c := m.getConnector()
	if c == nil {
		return ErrNotInitialized
	}

	ctx, d := m.startDeadline(ctx, &m.restoreDeadline, ErrRestoreTimeout)
	defer m.releaseDeadline(&m.restoreDeadline, d)

	errc := make(chan error, 1)
	go func() {
		errc <- c.RestoreConnection(ctx)
	}()

	select {
	case err := <-errc:
		if err == nil {
			return nil
		}
		if errors.Is(context.Cause(ctx), ErrRestoreTimeout) {
			return ErrRestoreTimeout
		}

		return fmt.Errorf("failed to restore connection: %w", err)
	case <-ctx.Done():
		return deadlineErr(ctx)
	}
}

// ConnectionRestored waits until the connector finished restoring and reports whether a wallet
// is connected. It fails with ErrRestoredTimeout when the connector is not ready in time.
func (m *Manager) ConnectionRestored(ctx context.Context) (bool, error) {
	c := m.getConnector()
	if c == nil {
		return false, ErrNotInitialized
	}

	ctx, d := m.startDeadline(ctx, &m.restoredDeadline, ErrRestoredTimeout)
	defer m.releaseDeadline(&m.restoredDeadline, d)

	select {
	case <-c.Restored():
		return c.Connected(), nil
	case <-ctx.Done():
		return false, deadlineErr(ctx)
	}
}

// Connect makes sure a wallet is connected. An uninitialized Manager is initialized and
// (nil, nil) is returned; the caller retries. Otherwise the previous session is restored, and
// when there is none the wallet selection is opened. Failures are reported to the Notifier.
func (m *Manager) Connect(ctx context.Context) (*Wallet, error) {
	if m.getConnector() == nil {
		m.lggr.Warn("Wallet connector is not initialized")
		if err := m.Init(); err != nil {
			m.config.Notifier.Error(connectErrorTitle, err.Error())
			return nil, err
		}

		return nil, nil
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.config.Loader.StartLoading()

	w, err := m.connect(ctx)
	if err != nil {
		m.lggr.Errorw("Failed to connect wallet", "err", err)
		m.config.Notifier.Error(connectErrorTitle, err.Error())
		m.config.Loader.EndLoading(true)

		return nil, err
	}

	m.config.Loader.EndLoading(false)

	return w, nil
}

func (m *Manager) connect(ctx context.Context) (*Wallet, error) {
	c := m.getConnector()
	defer m.markRestored()

	m.lggr.Debug("Restoring connection")
	if err := m.RestoreConnection(ctx); err != nil {
		return nil, err
	}

	restored, err := m.ConnectionRestored(ctx)
	if err != nil {
		return nil, err
	}

	if restored && c.Connected() {
		if w := c.Wallet(); w != nil {
			m.post(event{kind: eventWallet, wallet: w})
			m.lggr.Infow("Wallet session restored", "address", w.Address, "chain", w.Chain)

			return w, nil
		}
	}

	m.lggr.Info("Opening wallet selection")
	if err := c.OpenModal(ctx); err != nil {
		return nil, fmt.Errorf("wallet selection failed: %w", err)
	}

	if c.Connected() {
		if w := c.Wallet(); w != nil {
			m.post(event{kind: eventWallet, wallet: w})
		}
	}

	return m.Wallet(), nil
}

// Disconnect ends the session and forgets the held wallet. It does nothing when the connector
// was never built.
func (m *Manager) Disconnect(ctx context.Context) error {
	c := m.getConnector()
	if c == nil {
		return nil
	}

	if err := c.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect wallet: %w", err)
	}
	m.post(event{kind: eventClearWallet})
	m.lggr.Info("Wallet disconnected")

	return nil
}

// SendTransaction forwards tx to the connected wallet.
func (m *Manager) SendTransaction(ctx context.Context, tx Transaction) (*SendResult, error) {
	c := m.getConnector()
	if c == nil {
		return nil, ErrNotInitialized
	}

	return c.SendTransaction(ctx, tx)
}

// Initialized reports whether the connector was built.
func (m *Manager) Initialized() bool {
	return m.getConnector() != nil
}

// Connected reports whether the connector has a connected wallet.
func (m *Manager) Connected() bool {
	c := m.getConnector()

	return c != nil && c.Connected()
}

// Wallet returns a copy of the held wallet, nil when there is none.
func (m *Manager) Wallet() *Wallet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.wallet == nil {
		return nil
	}
	w := *m.wallet

	return &w
}

// Status returns the connection state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.connector == nil:
		return StatusUninitialized
	case m.wallet != nil && m.connector.Connected():
		return StatusConnected
	case !m.restored:
		return StatusInitializing
	default:
		return StatusDisconnected
	}
}

// Close unsubscribes the listeners, cancels pending restore deadlines and stops the event loop.
// It is safe to call without Init and more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		unsubscribeStatus, unsubscribeModal := m.unsubscribeStatus, m.unsubscribeModal
		m.unsubscribeStatus, m.unsubscribeModal = nil, nil
		restore, restored := m.restoreDeadline, m.restoredDeadline
		m.restoreDeadline, m.restoredDeadline = nil, nil
		m.mu.Unlock()

		if unsubscribeStatus != nil {
			unsubscribeStatus()
		}
		if unsubscribeModal != nil {
			unsubscribeModal()
		}
		if restore != nil {
			restore.release()
		}
		if restored != nil {
			restored.release()
		}

		close(m.stop)
		<-m.loopDone
	})
}

func (m *Manager) getConnector() Connector {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.connector
}

func (m *Manager) markRestored() {
	m.mu.Lock()
	m.restored = true
	m.mu.Unlock()
}

func (m *Manager) startDeadline(ctx context.Context, slot **deadline, cause error) (context.Context, *deadline) {
	ctx, cancel := context.WithTimeoutCause(ctx, m.config.RestoreTimeout, cause)
	d := &deadline{cancel: cancel}

	m.mu.Lock()
	*slot = d
	m.mu.Unlock()

	return ctx, d
}

func (m *Manager) releaseDeadline(slot **deadline, d *deadline) {
	m.mu.Lock()
	if *slot == d {
		*slot = nil
	}
	m.mu.Unlock()

	d.release()
}

// pendingDeadlines returns the number of restore deadlines not yet released.
func (m *Manager) pendingDeadlines() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	if m.restoreDeadline != nil {
		n++
	}
	if m.restoredDeadline != nil {
		n++
	}

	return n
}

func deadlineErr(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrRestoreTimeout) || errors.Is(cause, ErrRestoredTimeout) {
		return cause
	}

	return ctx.Err()
}

// post hands ev to the event loop and waits until it was applied. It returns false once the
// Manager is closed.
func (m *Manager) post(ev event) bool {
	ev.ack = make(chan struct{})

	select {
	case m.events <- ev:
	case <-m.stop:
		return false
	}

	select {
	case <-ev.ack:
		return true
	case <-m.stop:
		return false
	}
}

func (m *Manager) run() {
	defer close(m.loopDone)

	for {
		select {
		case <-m.stop:
			return
		case ev := <-m.events:
			m.handle(ev)
			close(ev.ack)
		}
	}
}

func (m *Manager) handle(ev event) {
	switch ev.kind {
	case eventWallet:
		if ev.wallet == nil {
			return
		}
		w := *ev.wallet

		m.mu.Lock()
		m.wallet = &w
		m.mu.Unlock()

		m.lggr.Debugw("Wallet changed", "address", w.Address, "chain", w.Chain)
	case eventClearWallet:
		m.mu.Lock()
		m.wallet = nil
		m.mu.Unlock()
	case eventError:
		if ev.err != nil {
			m.config.Notifier.Error(listenerErrorTitle, ev.err.Error())
		}
	case eventModal:
		m.lggr.Debugw("Modal state changed", "status", ev.modal.Status, "reason", ev.modal.CloseReason)
		if ev.modal.Status == ModalOpened || ev.modal.Status == ModalClosed {
			m.config.Loader.EndLoading(false)
		}
	}
}

package wallet

import (
	"context"
	"sync"
)

// fakeConnector is a scriptable Connector.
type fakeConnector struct {
	mu sync.Mutex

	restoreFn    func(ctx context.Context) error
	openModalFn  func(ctx context.Context) error
	disconnectFn func(ctx context.Context) error
	sendFn       func(ctx context.Context, tx Transaction) (*SendResult, error)

	restored  chan struct{}
	connected bool
	wallet    *Wallet

	onWallet func(*Wallet)
	onError  func(error)
	onModal  func(ModalState)

	statusSubs, statusUnsubs int
	modalSubs, modalUnsubs   int
	restoreCalls, modalCalls int
	disconnectCalls          int
	sent                     []Transaction
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{restored: make(chan struct{})}
}

func (f *fakeConnector) RestoreConnection(ctx context.Context) error {
	f.mu.Lock()
	f.restoreCalls++
	fn := f.restoreFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	f.markRestored()

	return nil
}

func (f *fakeConnector) markRestored() {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.restored:
	default:
		close(f.restored)
	}
}

func (f *fakeConnector) Restored() <-chan struct{} {
	return f.restored
}

func (f *fakeConnector) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected
}

func (f *fakeConnector) Wallet() *Wallet {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.wallet == nil {
		return nil
	}
	w := *f.wallet

	return &w
}

func (f *fakeConnector) setWallet(w *Wallet) {
	f.mu.Lock()
	f.wallet = w
	f.connected = w != nil
	f.mu.Unlock()
}

func (f *fakeConnector) OpenModal(ctx context.Context) error {
	f.mu.Lock()
	f.modalCalls++
	fn := f.openModalFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	return nil
}

func (f *fakeConnector) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.disconnectCalls++
	fn := f.disconnectFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	f.setWallet(nil)

	return nil
}

func (f *fakeConnector) SendTransaction(ctx context.Context, tx Transaction) (*SendResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	fn := f.sendFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, tx)
	}

	return &SendResult{BOC: "te6c"}, nil
}

func (f *fakeConnector) OnStatusChange(onWallet func(*Wallet), onError func(error)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusSubs++
	f.onWallet, f.onError = onWallet, onError

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.statusUnsubs++
		f.onWallet, f.onError = nil, nil
	}
}

func (f *fakeConnector) OnModalStateChange(onState func(ModalState)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.modalSubs++
	f.onModal = onState

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.modalUnsubs++
		f.onModal = nil
	}
}

func (f *fakeConnector) emitWallet(w *Wallet) {
	f.mu.Lock()
	fn := f.onWallet
	f.mu.Unlock()

	if fn != nil {
		fn(w)
	}
}

func (f *fakeConnector) emitError(err error) {
	f.mu.Lock()
	fn := f.onError
	f.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}

func (f *fakeConnector) emitModal(s ModalState) {
	f.mu.Lock()
	fn := f.onModal
	f.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

func (f *fakeConnector) counts() (statusSubs, statusUnsubs, modalSubs, modalUnsubs int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.statusSubs, f.statusUnsubs, f.modalSubs, f.modalUnsubs
}

// recordingNotifier records notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	calls [][2]string
}

func (n *recordingNotifier) Error(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, [2]string{title, body})
}

func (n *recordingNotifier) all() [][2]string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([][2]string(nil), n.calls...)
}

// recordingLoader records loader transitions as "start", "end" and "end-error".
type recordingLoader struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingLoader) StartLoading() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, "start")
}

func (l *recordingLoader) EndLoading(hasError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hasError {
		l.calls = append(l.calls, "end-error")
		return
	}
	l.calls = append(l.calls, "end")
}

func (l *recordingLoader) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.calls...)
}

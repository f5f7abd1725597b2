package wallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartacom/tonpay/chain/ton"
	"github.com/kartacom/tonpay/pkg/logger"
)

var testWallet = &Wallet{
	Address: "0:000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
	Chain:   ton.MainnetChainID,
	AppName: "tonkeeper",
}

type testManager struct {
	*Manager

	conn         *fakeConnector
	notifier     *recordingNotifier
	loader       *recordingLoader
	factoryCalls *atomic.Int32
	gotOptions   Options
}

func newTestManager(t *testing.T, conn *fakeConnector, restoreTimeout time.Duration) *testManager {
	t.Helper()

	tm := &testManager{
		conn:         conn,
		notifier:     &recordingNotifier{},
		loader:       &recordingLoader{},
		factoryCalls: &atomic.Int32{},
	}

	m, err := NewManager(logger.Test(t), ManagerConfig{
		Factory: func(opts Options) (Connector, error) {
			tm.factoryCalls.Add(1)
			tm.gotOptions = opts

			return conn, nil
		},
		Options: Options{
			ManifestURL:       "https://example.com/tonconnect-manifest.json",
			ReturnURL:         "https://t.me/example_bot/app/",
			RestoreConnection: true,
			Network:           ton.Mainnet,
		},
		Notifier:       tm.notifier,
		Loader:         tm.loader,
		RestoreTimeout: restoreTimeout,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	tm.Manager = m

	return tm
}

func TestNewManager_InvalidConfig(t *testing.T) {
	t.Parallel()

	m, err := NewManager(logger.Test(t), ManagerConfig{})
	require.ErrorContains(t, err, "connector factory is required")
	assert.Nil(t, m)
}

func TestNewManager_Defaults(t *testing.T) {
	t.Parallel()

	m, err := NewManager(logger.Test(t), ManagerConfig{
		Factory: func(Options) (Connector, error) { return newFakeConnector(), nil },
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	assert.Equal(t, DefaultRestoreTimeout, m.config.RestoreTimeout)
	assert.IsType(t, &LogNotifier{}, m.config.Notifier)
	assert.IsType(t, &LogLoader{}, m.config.Loader)
	assert.Equal(t, StatusUninitialized, m.Status())
}

func TestManager_Init(t *testing.T) {
	t.Parallel()

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		tm := newTestManager(t, newFakeConnector(), time.Second)

		require.NoError(t, tm.Init())
		require.NoError(t, tm.Init())

		assert.Equal(t, int32(1), tm.factoryCalls.Load())
		statusSubs, _, modalSubs, _ := tm.conn.counts()
		assert.Equal(t, 1, statusSubs)
		assert.Equal(t, 1, modalSubs)
		assert.True(t, tm.Initialized())
		assert.Equal(t, StatusInitializing, tm.Status())
		assert.Equal(t, "https://t.me/example_bot/app/", tm.gotOptions.ReturnURL)
		assert.True(t, tm.gotOptions.RestoreConnection)
	})

	t.Run("factory error", func(t *testing.T) {
		t.Parallel()

		m, err := NewManager(logger.Test(t), ManagerConfig{
			Factory: func(Options) (Connector, error) { return nil, errors.New("no bridge") },
		})
		require.NoError(t, err)
		t.Cleanup(m.Close)

		require.ErrorContains(t, m.Init(), "failed to create wallet connector: no bridge")
		assert.False(t, m.Initialized())
	})

	t.Run("after close", func(t *testing.T) {
		t.Parallel()

		tm := newTestManager(t, newFakeConnector(), time.Second)
		tm.Close()

		require.ErrorIs(t, tm.Init(), ErrClosed)
		assert.Equal(t, int32(0), tm.factoryCalls.Load())
	})
}

func TestManager_RestoreConnection(t *testing.T) {
	t.Parallel()

	t.Run("not initialized", func(t *testing.T) {
		t.Parallel()

		tm := newTestManager(t, newFakeConnector(), time.Second)
		require.ErrorIs(t, tm.RestoreConnection(t.Context()), ErrNotInitialized)
	})

	t.Run("success clears the deadline", func(t *testing.T) {
		t.Parallel()

		tm := newTestManager(t, newFakeConnector(), time.Second)
		require.NoError(t, tm.Init())

		require.NoError(t, tm.RestoreConnection(t.Context()))
		assert.Equal(t, 0, tm.pendingDeadlines())
	})

	t.Run("timeout cancels the connector call", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		causes := make(chan error, 2)
		conn.restoreFn = func(ctx context.Context) error {
			<-ctx.Done()
			causes <- context.Cause(ctx)

			return ctx.Err()
		}
		tm := newTestManager(t, conn, 20*time.Millisecond)
		require.NoError(t, tm.Init())

		err := tm.RestoreConnection(t.Context())
		require.ErrorIs(t, err, ErrRestoreTimeout)

		select {
		case cause := <-causes:
			require.ErrorIs(t, cause, ErrRestoreTimeout)
		case <-time.After(time.Second):
			t.Fatal("connector call was not cancelled")
		}
		assert.Empty(t, causes)
		assert.Equal(t, 0, tm.pendingDeadlines())
	})

	t.Run("timeout when the connector ignores cancellation", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		conn.restoreFn = func(context.Context) error {
			<-release
			return nil
		}
		tm := newTestManager(t, conn, 20*time.Millisecond)
		require.NoError(t, tm.Init())

		require.ErrorIs(t, tm.RestoreConnection(t.Context()), ErrRestoreTimeout)
		assert.Equal(t, 0, tm.pendingDeadlines())
	})

	t.Run("connector error propagates", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("bridge unavailable")
		conn := newFakeConnector()
		conn.restoreFn = func(context.Context) error { return wantErr }
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())

		err := tm.RestoreConnection(t.Context())
		require.ErrorIs(t, err, wantErr)
		require.NotErrorIs(t, err, ErrRestoreTimeout)
		assert.Equal(t, 0, tm.pendingDeadlines())
	})
}

func TestManager_ConnectionRestored(t *testing.T) {
	t.Parallel()

	t.Run("ready before the deadline", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		conn.setWallet(testWallet)
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())

		go conn.markRestored()

		restored, err := tm.ConnectionRestored(t.Context())
		require.NoError(t, err)
		assert.True(t, restored)
		assert.Equal(t, 0, tm.pendingDeadlines())
	})

	t.Run("restored without a wallet", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		conn.markRestored()
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())

		restored, err := tm.ConnectionRestored(t.Context())
		require.NoError(t, err)
		assert.False(t, restored)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		tm := newTestManager(t, newFakeConnector(), 20*time.Millisecond)
		require.NoError(t, tm.Init())

		restored, err := tm.ConnectionRestored(t.Context())
		require.ErrorIs(t, err, ErrRestoredTimeout)
		assert.False(t, restored)
		assert.Equal(t, 0, tm.pendingDeadlines())
	})
}

func TestManager_Connect(t *testing.T) {
	t.Parallel()

	t.Run("uninitialized manager initializes and returns", func(t *testing.T) {
		t.Parallel()

		tm := newTestManager(t, newFakeConnector(), time.Second)

		w, err := tm.Connect(t.Context())
		require.NoError(t, err)
		assert.Nil(t, w)
		assert.Equal(t, int32(1), tm.factoryCalls.Load())
		assert.Zero(t, tm.conn.restoreCalls)
		assert.Empty(t, tm.loader.all())
	})

	t.Run("adopts a restored session", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		conn.setWallet(testWallet)
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())

		w, err := tm.Connect(t.Context())
		require.NoError(t, err)
		assert.Equal(t, testWallet, w)
		assert.Equal(t, testWallet, tm.Wallet())
		assert.Equal(t, StatusConnected, tm.Status())
		assert.Zero(t, conn.modalCalls)
		assert.Equal(t, []string{"start", "end"}, tm.loader.all())
		assert.Empty(t, tm.notifier.all())
	})

	t.Run("opens the wallet selection without a session", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		conn.openModalFn = func(context.Context) error {
			conn.emitModal(ModalState{Status: ModalOpened})
			conn.setWallet(testWallet)
			conn.emitWallet(testWallet)
			conn.emitModal(ModalState{Status: ModalClosed, CloseReason: "wallet-selected"})

			return nil
		}
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())

		w, err := tm.Connect(t.Context())
		require.NoError(t, err)
		assert.Equal(t, testWallet, w)
		assert.Equal(t, 1, conn.modalCalls)
		assert.Equal(t, StatusConnected, tm.Status())
		assert.Equal(t, []string{"start", "end", "end", "end"}, tm.loader.all())
	})

	t.Run("dismissed wallet selection", func(t *testing.T) {
		t.Parallel()

		tm := newTestManager(t, newFakeConnector(), time.Second)
		require.NoError(t, tm.Init())

		w, err := tm.Connect(t.Context())
		require.NoError(t, err)
		assert.Nil(t, w)
		assert.Equal(t, StatusDisconnected, tm.Status())
	})

	t.Run("restore timeout is reported", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		conn.restoreFn = func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
		tm := newTestManager(t, conn, 20*time.Millisecond)
		require.NoError(t, tm.Init())

		w, err := tm.Connect(t.Context())
		require.ErrorIs(t, err, ErrRestoreTimeout)
		assert.Nil(t, w)
		assert.Equal(t, [][2]string{{"Connect wallet error", "restore connection timeout"}}, tm.notifier.all())
		assert.Equal(t, []string{"start", "end-error"}, tm.loader.all())
		assert.Zero(t, conn.modalCalls)
		assert.Equal(t, 0, tm.pendingDeadlines())
	})

	t.Run("wallet selection failure is reported", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		conn.openModalFn = func(context.Context) error { return errors.New("user rejected") }
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())

		_, err := tm.Connect(t.Context())
		require.ErrorContains(t, err, "wallet selection failed: user rejected")
		require.Len(t, tm.notifier.all(), 1)
		assert.Equal(t, []string{"start", "end-error"}, tm.loader.all())
	})

	t.Run("concurrent calls are serialized", func(t *testing.T) {
		t.Parallel()

		var inFlight, maxInFlight atomic.Int32
		conn := newFakeConnector()
		conn.openModalFn = func(context.Context) error {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)

			return nil
		}
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())

		var wg sync.WaitGroup
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := tm.Connect(t.Context())
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInFlight.Load())
		assert.Equal(t, 3, conn.modalCalls)
	})
}

func TestManager_Listeners(t *testing.T) {
	t.Parallel()

	conn := newFakeConnector()
	tm := newTestManager(t, conn, time.Second)
	require.NoError(t, tm.Init())

	conn.emitWallet(testWallet)
	assert.Equal(t, testWallet, tm.Wallet())

	// a nil payload keeps the held wallet
	conn.emitWallet(nil)
	assert.Equal(t, testWallet, tm.Wallet())

	conn.emitError(errors.New("bridge dropped"))
	assert.Equal(t, [][2]string{{"Wallet connection error", "bridge dropped"}}, tm.notifier.all())

	conn.emitModal(ModalState{Status: ModalOpened})
	conn.emitModal(ModalState{Status: "unknown"})
	conn.emitModal(ModalState{Status: ModalClosed, CloseReason: "action-cancelled"})
	assert.Equal(t, []string{"end", "end"}, tm.loader.all())
}

func TestManager_Wallet_ReturnsCopy(t *testing.T) {
	t.Parallel()

	conn := newFakeConnector()
	tm := newTestManager(t, conn, time.Second)
	require.NoError(t, tm.Init())
	conn.emitWallet(testWallet)

	w := tm.Wallet()
	w.Address = "changed"
	assert.Equal(t, testWallet.Address, tm.Wallet().Address)
}

func TestManager_Disconnect(t *testing.T) {
	t.Parallel()

	t.Run("no connector is a no-op", func(t *testing.T) {
		t.Parallel()

		tm := newTestManager(t, newFakeConnector(), time.Second)
		require.NoError(t, tm.Disconnect(t.Context()))
		assert.Zero(t, tm.conn.disconnectCalls)
	})

	t.Run("clears the held wallet", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		conn.setWallet(testWallet)
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())
		_, err := tm.Connect(t.Context())
		require.NoError(t, err)

		require.NoError(t, tm.Disconnect(t.Context()))
		assert.Nil(t, tm.Wallet())
		assert.Equal(t, 1, conn.disconnectCalls)
		assert.Equal(t, StatusDisconnected, tm.Status())
	})

	t.Run("failure keeps the wallet", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		conn.disconnectFn = func(context.Context) error { return errors.New("offline") }
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())
		conn.emitWallet(testWallet)

		require.ErrorContains(t, tm.Disconnect(t.Context()), "failed to disconnect wallet: offline")
		assert.Equal(t, testWallet, tm.Wallet())
	})
}

func TestManager_SendTransaction(t *testing.T) {
	t.Parallel()

	conn := newFakeConnector()
	tm := newTestManager(t, conn, time.Second)

	_, err := tm.SendTransaction(t.Context(), Transaction{})
	require.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, tm.Init())
	tx := Transaction{ValidUntil: 1700000000, Messages: []Message{{Address: "EQ", Amount: "1"}}}
	res, err := tm.SendTransaction(t.Context(), tx)
	require.NoError(t, err)
	assert.Equal(t, "te6c", res.BOC)
	assert.Equal(t, []Transaction{tx}, conn.sent)
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	t.Run("without init", func(t *testing.T) {
		t.Parallel()

		tm := newTestManager(t, newFakeConnector(), time.Second)

		assert.NotPanics(t, tm.Close)
		assert.NotPanics(t, tm.Close)
		assert.Equal(t, StatusUninitialized, tm.Status())
	})

	t.Run("unsubscribes listeners exactly once", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		tm := newTestManager(t, conn, time.Second)
		require.NoError(t, tm.Init())

		tm.Close()
		tm.Close()

		_, statusUnsubs, _, modalUnsubs := conn.counts()
		assert.Equal(t, 1, statusUnsubs)
		assert.Equal(t, 1, modalUnsubs)

		// late events from the connector are dropped
		conn.emitWallet(testWallet)
		assert.Nil(t, tm.Wallet())
	})

	t.Run("cancels pending restore deadlines", func(t *testing.T) {
		t.Parallel()

		conn := newFakeConnector()
		entered := make(chan struct{})
		conn.restoreFn = func(ctx context.Context) error {
			close(entered)
			<-ctx.Done()

			return ctx.Err()
		}
		tm := newTestManager(t, conn, time.Minute)
		require.NoError(t, tm.Init())

		errc := make(chan error, 1)
		go func() {
			errc <- tm.RestoreConnection(context.Background())
		}()

		<-entered
		assert.Equal(t, 1, tm.pendingDeadlines())
		tm.Close()

		select {
		case err := <-errc:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("restore was not cancelled by Close")
		}
		assert.Equal(t, 0, tm.pendingDeadlines())
	})
}

package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/storage/changelog"
	"github.com/vadiminshakov/whalewatch/internal/storage/snapshots"
	"go.uber.org/zap"
)

const (
	walletA = "0xabcdefabcdef0123456789abcdefabcdef012345"
	walletB = "0x0000000000000000000000000000000000000001"
)

type fakeFetcher struct {
	calls     atomic.Int64
	positions map[string][]domain.RawPosition
	errs      map[string]error
	hook      func(wallet string) error
}

func (f *fakeFetcher) FetchPositions(_ context.Context, wallet string) ([]domain.RawPosition, error) {
	f.calls.Add(1)
	if f.hook != nil {
		if err := f.hook(wallet); err != nil {
			return nil, err
		}
	}
	if err := f.errs[wallet]; err != nil {
		return nil, err
	}
	return f.positions[wallet], nil
}

type staticWallets []string

func (s staticWallets) List() []string { return s }

func newTestPoller(t *testing.T, fetcher Fetcher, wallets WalletSource) (*Poller, *snapshots.Store, *changelog.WALStore) {
	t.Helper()

	snapshotStore, err := snapshots.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { snapshotStore.Close() })

	changeLog, err := changelog.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { changeLog.Close() })

	p := New(Config{Interval: time.Minute, FetchTimeout: time.Second, Concurrency: 8},
		fetcher, wallets, snapshotStore, changeLog, zap.NewNop())
	p.ctx, p.cancel = context.WithCancel(context.Background())
	t.Cleanup(p.cancel)

	return p, snapshotStore, changeLog
}

func TestPollerRecordsChanges(t *testing.T) {
	fetcher := &fakeFetcher{positions: map[string][]domain.RawPosition{
		walletA: {{Market: "BTC", Size: "5", EntryPrice: "100"}},
	}}
	p, snapshotStore, changeLog := newTestPoller(t, fetcher, staticWallets{walletA})

	p.sweep()

	events, err := changeLog.Query(walletA, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.ChangeOpened, events[0].Type)
	require.NotEmpty(t, events[0].ID)
	require.Contains(t, snapshotStore.Current(walletA), "BTC")

	// identical payload on the next sweep emits nothing new
	p.sweep()
	events, err = changeLog.Query(walletA, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	statuses := p.Status()
	require.Len(t, statuses, 1)
	require.False(t, statuses[0].LastSuccess.IsZero())
	require.Empty(t, statuses[0].LastError)
}

func TestPollerIsolatesWalletFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		positions: map[string][]domain.RawPosition{
			walletB: {{Market: "ETH", Size: "-2", EntryPrice: "3000"}},
		},
		errs: map[string]error{
			walletA: &domain.FetchError{Kind: domain.FetchTransport, Wallet: walletA, Err: errors.New("connection refused")},
		},
	}
	p, _, changeLog := newTestPoller(t, fetcher, staticWallets{walletA, walletB})

	p.sweep()

	events, err := changeLog.Query("", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, walletB, events[0].Wallet)

	statuses := p.Status()
	require.Len(t, statuses, 2)
	require.Equal(t, walletA, statuses[0].Wallet)
	require.NotEmpty(t, statuses[0].LastError)
	require.True(t, statuses[0].LastSuccess.IsZero())
	require.Empty(t, statuses[1].LastError)
}

func TestPollerRejectsMalformedWalletBeforeFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	p, _, changeLog := newTestPoller(t, fetcher, staticWallets{"0x123"})

	p.sweep()

	require.Zero(t, fetcher.calls.Load(), "fetch must not be attempted for a malformed wallet")
	require.Zero(t, changeLog.CurrentIndex(), "no change log writes for a rejected wallet")

	statuses := p.Status()
	require.Len(t, statuses, 1)
	require.Contains(t, statuses[0].LastError, "invalid wallet")
}

func TestPollerSkipsWalletStillInProgress(t *testing.T) {
	fetcher := &fakeFetcher{positions: map[string][]domain.RawPosition{
		walletA: {{Market: "BTC", Size: "5"}},
	}}
	p, _, _ := newTestPoller(t, fetcher, staticWallets{walletA})

	lock := p.walletLock(walletA)
	lock.Lock()
	p.sweep()
	lock.Unlock()

	require.Zero(t, fetcher.calls.Load(), "busy wallet must be skipped, not queued")

	p.sweep()
	require.Equal(t, int64(1), fetcher.calls.Load())
}

func TestPollerNormalizesWalletCasing(t *testing.T) {
	mixed := "0xABCDEFabcdef0123456789ABCDEFabcdef012345"
	fetcher := &fakeFetcher{positions: map[string][]domain.RawPosition{
		walletA: {{Market: "BTC", Size: "5", EntryPrice: "100"}},
	}}
	p, snapshotStore, changeLog := newTestPoller(t, fetcher, staticWallets{mixed})

	p.sweep()

	// fetch, snapshot and log all run under the lowercased identity
	require.Contains(t, snapshotStore.Current(walletA), "BTC")

	events, err := changeLog.Query(walletA, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, walletA, events[0].Wallet)
}

func TestPollerPollsWalletsConcurrently(t *testing.T) {
	var arrived atomic.Int64
	ready := make(chan struct{})

	fetcher := &fakeFetcher{
		positions: map[string][]domain.RawPosition{
			walletA: {{Market: "BTC", Size: "1"}},
			walletB: {{Market: "ETH", Size: "1"}},
		},
		hook: func(string) error {
			if arrived.Add(1) == 2 {
				close(ready)
			}
			select {
			case <-ready:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("wallets were not polled concurrently")
			}
		},
	}
	p, _, changeLog := newTestPoller(t, fetcher, staticWallets{walletA, walletB})

	p.sweep()

	events, err := changeLog.Query("", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, st := range p.Status() {
		require.Empty(t, st.LastError)
	}
}

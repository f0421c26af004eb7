package changelog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/whalewatch/internal/domain"
)

const testWallet = "0xabcdefabcdef0123456789abcdefabcdef012345"

func event(market string, prev, next int64, at time.Time) domain.ChangeEvent {
	changeType := domain.ChangeUpdated
	switch {
	case prev == 0:
		changeType = domain.ChangeOpened
	case next == 0:
		changeType = domain.ChangeClosed
	}
	return domain.ChangeEvent{
		ID:           market + "-test",
		Wallet:       testWallet,
		Market:       market,
		Type:         changeType,
		PreviousSize: decimal.NewFromInt(prev),
		NewSize:      decimal.NewFromInt(next),
		Direction:    "Long",
		Timestamp:    at,
	}
}

func TestAppendAndQueryNewestFirst(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	written, err := store.Append(1, []domain.ChangeEvent{
		event("BTC", 0, 5, now),
		event("ETH", 0, 1, now.Add(time.Second)),
	})
	require.NoError(t, err)
	require.Equal(t, 2, written)

	events, err := store.Query("", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "ETH", events[0].Market)
	require.Equal(t, "BTC", events[1].Market)
}

func TestAppendDeduplicatesWithinCycle(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	batch := []domain.ChangeEvent{event("BTC", 0, 5, time.Now().UTC())}

	written, err := store.Append(7, batch)
	require.NoError(t, err)
	require.Equal(t, 1, written)

	// retry of the same batch in the same poll cycle writes nothing
	written, err = store.Append(7, batch)
	require.NoError(t, err)
	require.Equal(t, 0, written)

	events, err := store.Query(testWallet, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestAppendDifferentCycleWrites(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	written, err := store.Append(1, []domain.ChangeEvent{event("BTC", 5, 0, time.Now().UTC())})
	require.NoError(t, err)
	require.Equal(t, 1, written)

	written, err = store.Append(2, []domain.ChangeEvent{event("BTC", 5, 0, time.Now().UTC())})
	require.NoError(t, err)
	require.Equal(t, 1, written)
}

func TestQueryFilters(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	old := time.Now().UTC().Add(-time.Hour)
	recent := time.Now().UTC()

	other := event("BTC", 0, 1, recent)
	other.Wallet = "0x0000000000000000000000000000000000000001"

	_, err = store.Append(1, []domain.ChangeEvent{
		event("BTC", 0, 5, old),
		event("ETH", 0, 1, recent),
		other,
	})
	require.NoError(t, err)

	byWallet, err := store.Query(testWallet, time.Time{})
	require.NoError(t, err)
	require.Len(t, byWallet, 2)

	since, err := store.Query(testWallet, recent.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, since, 1)
	require.Equal(t, "ETH", since[0].Market)
}

func TestIdempotencyKeySeparatesAdjacentFields(t *testing.T) {
	now := time.Now().UTC()

	// With a plain "_" join these two would share the byte sequence
	// "...aa_btc_x..." between wallet and market and collide.
	evA := event("btc_x", 0, 5, now)
	evA.Wallet = "0xaa"
	evB := event("x", 0, 5, now)
	evB.Wallet = "0xaa_btc"

	require.NotEqual(t, idempotencyKey(1, evA), idempotencyKey(1, evB))

	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	written, err := store.Append(1, []domain.ChangeEvent{evA, evB})
	require.NoError(t, err)
	require.Equal(t, 2, written)
}

func TestAppendDeduplicatesAcrossWalletCasing(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ev := event("BTC", 0, 5, time.Now().UTC())
	written, err := store.Append(4, []domain.ChangeEvent{ev})
	require.NoError(t, err)
	require.Equal(t, 1, written)

	// same change, same cycle, checksummed casing: still one row
	upper := ev
	upper.Wallet = "0xABCDEFabcdef0123456789ABCDEFabcdef012345"
	written, err = store.Append(4, []domain.ChangeEvent{upper})
	require.NoError(t, err)
	require.Equal(t, 0, written)
}

func TestDedupSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)

	batch := []domain.ChangeEvent{event("BTC", 0, 5, time.Now().UTC())}
	written, err := store.Append(3, batch)
	require.NoError(t, err)
	require.Equal(t, 1, written)
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	written, err = reopened.Append(3, batch)
	require.NoError(t, err)
	require.Equal(t, 0, written)

	events, err := reopened.Query("", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

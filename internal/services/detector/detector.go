// Package detector computes position change events between two consecutive
// polls of a wallet. It performs no I/O: the caller supplies the previous
// snapshot and the freshly fetched rows, and applies the returned state.
package detector

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/whalewatch/internal/domain"
)

// Result is the outcome of one detection pass.
type Result struct {
	// Positions is the replacement market map for the wallet. It never
	// contains a zero-size entry.
	Positions map[string]domain.PositionSnapshot
	// Events lists detected changes in the order markets were processed:
	// fetched rows first (input order), then disappeared markets in sorted
	// order.
	Events []domain.ChangeEvent
	// Skipped counts fetched rows dropped because of malformed numeric fields.
	Skipped int
}

// Detect compares the previous snapshot of a wallet with freshly fetched rows.
//
// A row whose size differs from the stored one emits Opened (0 -> nonzero),
// Closed (-> 0) or Updated (nonzero -> different nonzero, sign flips included).
// Unchanged nonzero rows refresh stored prices without emitting anything.
// Markets present in the previous snapshot but absent from the payload are
// treated as closed: the exchange omits flat positions, so relying on explicit
// zero-size rows would silently miss closures.
//
// A malformed row is skipped and counted, never fatal. A malformed wallet
// address fails the whole pass with a ValidationError.
func Detect(wallet string, previous map[string]domain.PositionSnapshot, fetched []domain.RawPosition, now time.Time) (Result, error) {
	if err := domain.ValidateWallet(wallet); err != nil {
		return Result{}, err
	}
	wallet = domain.NormalizeWallet(wallet)

	updated := make(map[string]domain.PositionSnapshot, len(previous))
	for market, snap := range previous {
		updated[market] = snap
	}

	res := Result{Positions: updated}
	seen := make(map[string]struct{}, len(fetched))

	for _, raw := range fetched {
		if raw.Market == "" {
			res.Skipped++
			continue
		}
		snap, err := raw.Snapshot(wallet, now)
		if err != nil {
			// the market is present in the payload, just unparsable this
			// poll: keep the previous snapshot instead of closing it
			seen[raw.Market] = struct{}{}
			res.Skipped++
			continue
		}
		seen[raw.Market] = struct{}{}

		oldSize := decimal.Zero
		if prev, ok := updated[raw.Market]; ok {
			oldSize = prev.Size
		}

		if snap.Size.Equal(oldSize) {
			if !snap.Size.IsZero() {
				updated[raw.Market] = snap
			}
			continue
		}

		res.Events = append(res.Events, newEvent(wallet, raw.Market, oldSize, snap.Size, snap.EntryPrice, now))

		if snap.Size.IsZero() {
			delete(updated, raw.Market)
		} else {
			updated[raw.Market] = snap
		}
	}

	var gone []string
	for market := range previous {
		if _, ok := seen[market]; !ok {
			gone = append(gone, market)
		}
	}
	sort.Strings(gone)

	for _, market := range gone {
		prev := previous[market]
		res.Events = append(res.Events, newEvent(wallet, market, prev.Size, decimal.Zero, prev.EntryPrice, now))
		delete(updated, market)
	}

	return res, nil
}

func newEvent(wallet, market string, oldSize, newSize, entryPrice decimal.Decimal, now time.Time) domain.ChangeEvent {
	changeType := domain.ChangeUpdated
	switch {
	case oldSize.IsZero():
		changeType = domain.ChangeOpened
	case newSize.IsZero():
		changeType = domain.ChangeClosed
	}

	direction := "Long"
	signed := newSize
	if signed.IsZero() {
		signed = oldSize
	}
	if signed.IsNegative() {
		direction = "Short"
	}

	return domain.ChangeEvent{
		Wallet:       wallet,
		Market:       market,
		Type:         changeType,
		PreviousSize: oldSize,
		NewSize:      newSize,
		EntryPrice:   entryPrice,
		Direction:    direction,
		Timestamp:    now,
	}
}

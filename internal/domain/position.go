// Package domain defines core data structures shared by the tracker pipeline.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawPosition is a single position row as returned by the exchange, before any
// numeric parsing. Numeric fields are kept as strings so a malformed value can
// be rejected per record instead of failing the whole payload.
type RawPosition struct {
	Market           string
	Size             string
	EntryPrice       string
	MarkPrice        string
	UnrealizedPnl    string
	FundingFee       string
	LiquidationPrice string
	Leverage         string
}

// PositionSnapshot is the latest known state of one market position of a wallet.
// Size is signed: negative means short, positive means long. A snapshot with
// zero size is never stored.
type PositionSnapshot struct {
	Wallet           string          `json:"wallet"`
	Market           string          `json:"market"`
	Size             decimal.Decimal `json:"size"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	UnrealizedPnl    decimal.Decimal `json:"unrealized_pnl"`
	FundingFee       decimal.Decimal `json:"funding_fee"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	Leverage         decimal.Decimal `json:"leverage"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Direction returns "Long" or "Short" based on the sign of the size.
func (p PositionSnapshot) Direction() string {
	if p.Size.IsNegative() {
		return "Short"
	}
	return "Long"
}

// Snapshot parses the raw record into a typed snapshot. Empty numeric fields
// default to zero; a malformed numeric field fails the whole record.
func (r RawPosition) Snapshot(wallet string, now time.Time) (PositionSnapshot, error) {
	snap := PositionSnapshot{
		Wallet:    wallet,
		Market:    r.Market,
		UpdatedAt: now,
	}

	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{r.Size, &snap.Size},
		{r.EntryPrice, &snap.EntryPrice},
		{r.MarkPrice, &snap.MarkPrice},
		{r.UnrealizedPnl, &snap.UnrealizedPnl},
		{r.FundingFee, &snap.FundingFee},
		{r.LiquidationPrice, &snap.LiquidationPrice},
		{r.Leverage, &snap.Leverage},
	}
	for _, f := range fields {
		d, err := parseDecimal(f.raw)
		if err != nil {
			return PositionSnapshot{}, err
		}
		*f.dst = d
	}

	return snap, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

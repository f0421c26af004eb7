package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestValidateWallet(t *testing.T) {
	valid := []string{
		"0xABCDEFabcdef0123456789ABCDEFabcdef012345",
		"0x0000000000000000000000000000000000000000",
	}
	for _, wallet := range valid {
		require.NoError(t, ValidateWallet(wallet))
	}

	invalid := []string{
		"",
		"0x123",
		"0xABCDEFabcdef0123456789ABCDEFabcdef0123456", // 41 hex chars
		"ABCDEFabcdef0123456789ABCDEFabcdef012345",    // missing 0x
		"0xGGGGGGabcdef0123456789ABCDEFabcdef012345",  // non-hex
	}
	for _, wallet := range invalid {
		err := ValidateWallet(wallet)
		require.Error(t, err, "wallet %q must be rejected", wallet)

		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
	}
}

func TestRawPositionSnapshotDefaultsMissingFieldsToZero(t *testing.T) {
	raw := RawPosition{Market: "BTC", Size: "1.5"}

	snap, err := raw.Snapshot("0x0000000000000000000000000000000000000001", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, snap.Size.Equal(decimal.NewFromFloat(1.5)))
	require.True(t, snap.EntryPrice.IsZero())
	require.True(t, snap.MarkPrice.IsZero())
	require.True(t, snap.UnrealizedPnl.IsZero())
	require.True(t, snap.FundingFee.IsZero())
	require.True(t, snap.LiquidationPrice.IsZero())
	require.True(t, snap.Leverage.IsZero())
}

func TestRawPositionSnapshotRejectsMalformedNumber(t *testing.T) {
	raw := RawPosition{Market: "BTC", Size: "1.5", EntryPrice: "oops"}

	_, err := raw.Snapshot("0x0000000000000000000000000000000000000001", time.Now().UTC())
	require.Error(t, err)
}

func TestDirection(t *testing.T) {
	long := PositionSnapshot{Size: decimal.NewFromInt(2)}
	short := PositionSnapshot{Size: decimal.NewFromFloat(-0.5)}
	require.Equal(t, "Long", long.Direction())
	require.Equal(t, "Short", short.Direction())
}

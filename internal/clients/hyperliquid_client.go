// Package clients wraps exchange SDK access behind tracker-shaped interfaces.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/whalewatch/internal/domain"
)

// HyperliquidClient is a read-only client over the Hyperliquid Info API. No
// private key is involved: the tracker only observes public account state.
type HyperliquidClient struct {
	info *hyperliquid.Info
}

// NewHyperliquidClient builds the Info client. An empty baseURL targets
// mainnet.
func NewHyperliquidClient(ctx context.Context, baseURL string) *HyperliquidClient {
	if baseURL == "" {
		baseURL = hyperliquid.MainnetAPIURL
	}
	return &HyperliquidClient{
		info: hyperliquid.NewInfo(ctx, baseURL, true, nil, nil),
	}
}

// FetchPositions returns the wallet's perp positions as raw string-typed rows.
// Mark prices come from a second AllMids call; that enrichment is best-effort
// because the clearinghouse state itself does not carry mark prices.
func (c *HyperliquidClient) FetchPositions(ctx context.Context, wallet string) ([]domain.RawPosition, error) {
	state, err := c.info.UserState(ctx, wallet)
	if err != nil {
		return nil, classify(wallet, err)
	}

	mids, err := c.info.AllMids(ctx)
	if err != nil {
		mids = nil
	}

	positions := make([]domain.RawPosition, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		pos := ap.Position
		// The clearinghouse state carries no funding field; FundingFee stays
		// empty and defaults to zero downstream.
		raw := domain.RawPosition{
			Market:        pos.Coin,
			Size:          pos.Szi,
			UnrealizedPnl: pos.UnrealizedPnl,
			Leverage:      fmt.Sprintf("%v", pos.Leverage.Value),
		}
		if pos.EntryPx != nil {
			raw.EntryPrice = *pos.EntryPx
		}
		if pos.LiquidationPx != nil {
			raw.LiquidationPrice = *pos.LiquidationPx
		}
		if mids != nil {
			raw.MarkPrice = mids[pos.Coin]
		}
		positions = append(positions, raw)
	}

	return positions, nil
}

func classify(wallet string, err error) error {
	kind := domain.FetchUpstream

	var netErr net.Error
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = domain.FetchTransport
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		kind = domain.FetchDecode
	}

	return &domain.FetchError{Kind: kind, Wallet: wallet, Err: err}
}

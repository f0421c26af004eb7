package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateWallet checks that the address is the canonical 0x-prefixed
// 40-hex-character form. Anything else is rejected before any fetch happens.
func ValidateWallet(wallet string) error {
	if !strings.HasPrefix(wallet, "0x") || !common.IsHexAddress(wallet) {
		return &ValidationError{Field: "wallet", Value: wallet, Reason: "must be 0x followed by 40 hex characters"}
	}
	return nil
}

// NormalizeWallet lowercases the hex so the same wallet written with
// different casing maps to one identity across all stores.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(wallet)
}

package domain

import "fmt"

// ValidationError reports a malformed input unit (wallet address or a single
// position record). It is localized: the offending unit is skipped, nothing
// else is aborted.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// FetchKind distinguishes fetch failure classes so the poller can decide
// retry-vs-skip.
type FetchKind string

const (
	// FetchTransport covers network failures and timeouts.
	FetchTransport FetchKind = "transport"
	// FetchUpstream covers non-2xx responses from the exchange.
	FetchUpstream FetchKind = "upstream"
	// FetchDecode covers undecodable response bodies.
	FetchDecode FetchKind = "decode"
)

// FetchError is fatal for one wallet's current cycle only; the wallet is
// retried on the next sweep.
type FetchError struct {
	Kind   FetchKind
	Wallet string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Kind, e.Wallet, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PersistenceError reports a store or log write failure. In-memory state may
// run ahead of the durable log until the next successful cycle closes the gap.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

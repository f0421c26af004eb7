// Package snapshots holds the last known open positions per wallet.
package snapshots

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/whalewatch/internal/domain"
)

const (
	defaultDir   = "./wal/snapshots"
	segmentLimit = 1000
	maxSegments  = 10

	snapshotKeyPrefix = "wallet_snapshot_"
)

// Store keeps the current market map per wallet in memory and journals every
// replacement to a WAL, so a restart resumes from the last committed state
// instead of re-emitting Opened events for every standing position.
//
// The store is owned by the poller pipeline: one writer per wallet at a time,
// any number of concurrent readers.
type Store struct {
	wal      *gowal.Wal
	mu       sync.RWMutex
	byWallet map[string]map[string]domain.PositionSnapshot
}

// NewStore opens the journal under dir and replays it, last record per wallet
// winning.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init snapshot WAL")
	}

	s := &Store{wal: wal, byWallet: make(map[string]map[string]domain.PositionSnapshot)}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, snapshotKeyPrefix) {
			continue
		}
		wallet := strings.TrimPrefix(msg.Key, snapshotKeyPrefix)
		var byMarket map[string]domain.PositionSnapshot
		if err := json.Unmarshal(msg.Value, &byMarket); err != nil {
			return nil, errors.Wrap(err, "decode snapshot record")
		}
		if len(byMarket) == 0 {
			delete(s.byWallet, wallet)
			continue
		}
		s.byWallet[wallet] = byMarket
	}

	return s, nil
}

// Current returns a copy of the wallet's market map, empty for unknown wallets.
func (s *Store) Current(wallet string) map[string]domain.PositionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.byWallet[wallet]
	byMarket := make(map[string]domain.PositionSnapshot, len(stored))
	for market, snap := range stored {
		byMarket[market] = snap
	}
	return byMarket
}

// Wallets returns all wallets with at least one open position.
func (s *Store) Wallets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallets := make([]string, 0, len(s.byWallet))
	for wallet := range s.byWallet {
		wallets = append(wallets, wallet)
	}
	return wallets
}

// Apply atomically replaces the wallet's market map and journals the new
// state. The in-memory map is replaced even when journaling fails, so
// detection keeps working against the latest observed state; the returned
// PersistenceError must then be surfaced to the operator.
func (s *Store) Apply(wallet string, byMarket map[string]domain.PositionSnapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("snapshot store is not initialized")
	}

	stored := make(map[string]domain.PositionSnapshot, len(byMarket))
	for market, snap := range byMarket {
		if snap.Size.IsZero() {
			continue
		}
		stored[market] = snap
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(stored) == 0 {
		delete(s.byWallet, wallet)
	} else {
		s.byWallet[wallet] = stored
	}

	if err := s.wal.Write(s.wal.CurrentIndex()+1, snapshotKeyPrefix+wallet, payload); err != nil {
		return &domain.PersistenceError{Op: "snapshot journal", Err: err}
	}
	return nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

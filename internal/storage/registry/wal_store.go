// Package registry keeps the set of tracked wallet addresses.
package registry

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/whalewatch/internal/domain"
)

const (
	defaultDir   = "./wal/wallets"
	segmentLimit = 1000
	maxSegments  = 10

	addKeyPrefix    = "wallet_add_"
	removeKeyPrefix = "wallet_remove_"
)

type record struct {
	Wallet string    `json:"wallet"`
	At     time.Time `json:"at"`
}

// WALStore is the tracked-wallet registry, persisted as add/remove records
// replayed at startup. Insertion order is preserved for stable sweep order.
type WALStore struct {
	wal     *gowal.Wal
	mu      sync.RWMutex
	wallets []string
	index   map[string]struct{}
}

// NewWALStore opens the registry under dir and replays its history.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "wallet_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init wallet registry WAL")
	}

	s := &WALStore{wal: wal, index: make(map[string]struct{})}
	for msg := range wal.Iterator() {
		switch {
		case strings.HasPrefix(msg.Key, addKeyPrefix):
			s.track(strings.TrimPrefix(msg.Key, addKeyPrefix))
		case strings.HasPrefix(msg.Key, removeKeyPrefix):
			s.untrack(strings.TrimPrefix(msg.Key, removeKeyPrefix))
		}
	}

	return s, nil
}

// Add starts tracking a wallet. The address is validated before acceptance;
// adding an already-tracked wallet is a no-op.
func (s *WALStore) Add(wallet string) error {
	if s == nil || s.wal == nil {
		return errors.New("wallet registry is not initialized")
	}
	if err := domain.ValidateWallet(wallet); err != nil {
		return err
	}
	wallet = domain.NormalizeWallet(wallet)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[wallet]; ok {
		return nil
	}

	if err := s.write(addKeyPrefix, wallet); err != nil {
		return err
	}
	s.track(wallet)
	return nil
}

// Remove stops tracking a wallet. Removing an unknown wallet is a no-op.
func (s *WALStore) Remove(wallet string) error {
	if s == nil || s.wal == nil {
		return errors.New("wallet registry is not initialized")
	}
	wallet = domain.NormalizeWallet(wallet)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[wallet]; !ok {
		return nil
	}

	if err := s.write(removeKeyPrefix, wallet); err != nil {
		return err
	}
	s.untrack(wallet)
	return nil
}

// List returns tracked wallets in insertion order.
func (s *WALStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallets := make([]string, len(s.wallets))
	copy(wallets, s.wallets)
	return wallets
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("wallet registry is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

func (s *WALStore) write(prefix, wallet string) error {
	payload, err := json.Marshal(record{Wallet: wallet, At: time.Now().UTC()})
	if err != nil {
		return errors.Wrap(err, "marshal wallet record")
	}
	if err := s.wal.Write(s.wal.CurrentIndex()+1, prefix+wallet, payload); err != nil {
		return &domain.PersistenceError{Op: "wallet registry write", Err: err}
	}
	return nil
}

func (s *WALStore) track(wallet string) {
	if _, ok := s.index[wallet]; ok {
		return
	}
	s.index[wallet] = struct{}{}
	s.wallets = append(s.wallets, wallet)
}

func (s *WALStore) untrack(wallet string) {
	if _, ok := s.index[wallet]; !ok {
		return
	}
	delete(s.index, wallet)
	for i, w := range s.wallets {
		if w == wallet {
			s.wallets = append(s.wallets[:i], s.wallets[i+1:]...)
			break
		}
	}
}

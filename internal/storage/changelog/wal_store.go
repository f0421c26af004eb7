// Package changelog persists position change events in an append-only WAL.
package changelog

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/whalewatch/internal/domain"
)

const (
	defaultDir   = "./wal/changes"
	segmentLimit = 1000
	maxSegments  = 100

	changeKeyPrefix = "position_change_"
)

// WALStore is the durable change log. Records are write-once; duplicate
// submissions within one poll cycle are suppressed by an idempotency key
// derived from the event identity and the cycle, so a retried batch never
// produces a second row for the same real-world change.
type WALStore struct {
	wal  *gowal.Wal
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewWALStore opens the change log under dir and rebuilds the idempotency key
// set from existing records, so restarts cannot re-log a committed batch.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "change_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init change log WAL")
	}

	s := &WALStore{wal: wal, seen: make(map[string]struct{})}
	for msg := range wal.Iterator() {
		if strings.HasPrefix(msg.Key, changeKeyPrefix) {
			s.seen[msg.Key] = struct{}{}
		}
	}

	return s, nil
}

// Append writes the batch to the log, skipping events already recorded for
// this cycle, and returns the number of rows written. Physical writes are
// serialized; if a write fails mid-batch the written prefix stays and the
// caller may resubmit the whole batch — the key set suppresses the prefix.
func (s *WALStore) Append(cycle int64, events []domain.ChangeEvent) (int, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("change log is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, event := range events {
		key := idempotencyKey(cycle, event)
		if _, dup := s.seen[key]; dup {
			continue
		}

		payload, err := json.Marshal(event)
		if err != nil {
			return written, errors.Wrap(err, "marshal change event")
		}

		if err := s.wal.Write(s.wal.CurrentIndex()+1, key, payload); err != nil {
			return written, &domain.PersistenceError{Op: "change log append", Err: err}
		}
		s.seen[key] = struct{}{}
		written++
	}

	return written, nil
}

// Query returns recorded events newest first. An empty wallet matches all
// wallets; a zero since matches all times.
func (s *WALStore) Query(wallet string, since time.Time) ([]domain.ChangeEvent, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("change log is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []domain.ChangeEvent
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, changeKeyPrefix) {
			continue
		}
		var event domain.ChangeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return nil, errors.Wrap(err, "decode change event")
		}
		if wallet != "" && !strings.EqualFold(event.Wallet, wallet) {
			continue
		}
		if !since.IsZero() && event.Timestamp.Before(since) {
			continue
		}
		events = append(events, event)
	}

	// WAL iteration is oldest first; consumers want newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	return events, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("change log is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// keySeparator is the ASCII unit separator: it cannot appear in wallets,
// market symbols, change types or decimal strings, so no field can bleed
// into its neighbor and collide with another event's key.
const keySeparator = "\x1f"

func idempotencyKey(cycle int64, event domain.ChangeEvent) string {
	parts := []string{
		strconv.FormatInt(cycle, 10),
		domain.NormalizeWallet(event.Wallet),
		event.Market,
		string(event.Type),
		event.PreviousSize.String(),
		event.NewSize.String(),
	}
	return changeKeyPrefix + strings.Join(parts, keySeparator)
}

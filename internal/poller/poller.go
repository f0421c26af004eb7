// Package poller drives periodic sweeps over all tracked wallets.
package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/services/detector"
	"go.uber.org/zap"
)

// Fetcher retrieves the raw account state for one wallet.
type Fetcher interface {
	FetchPositions(ctx context.Context, wallet string) ([]domain.RawPosition, error)
}

// WalletSource supplies the wallets to poll.
type WalletSource interface {
	List() []string
}

// SnapshotStore is the per-wallet current-position state.
type SnapshotStore interface {
	Current(wallet string) map[string]domain.PositionSnapshot
	Apply(wallet string, byMarket map[string]domain.PositionSnapshot) error
}

// ChangeSink receives detected change events.
type ChangeSink interface {
	Append(cycle int64, events []domain.ChangeEvent) (int, error)
}

// Config holds poller configuration.
type Config struct {
	Interval     time.Duration // sweep cadence (default: 30s)
	FetchTimeout time.Duration // per-wallet fetch timeout (default: 10s)
	Concurrency  int           // max wallets polled at once (default: 8)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		FetchTimeout: 10 * time.Second,
		Concurrency:  8,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	return c
}

// WalletStatus is the operator-visible polling state of one wallet. A zero
// LastSuccess with an empty LastError means no data yet.
type WalletStatus struct {
	Wallet      string    `json:"wallet"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
	LastEvents  int       `json:"last_events"`
}

// Poller sweeps all tracked wallets on a fixed interval. Wallets are polled
// concurrently under a semaphore; work for a single wallet is serialized by a
// per-wallet lock, and a wallet still busy from the previous sweep is skipped
// rather than queued.
type Poller struct {
	cfg       Config
	fetcher   Fetcher
	wallets   WalletSource
	snapshots SnapshotStore
	changes   ChangeSink
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	status map[string]*WalletStatus
}

// New creates a poller over the given collaborators.
func New(cfg Config, fetcher Fetcher, wallets WalletSource, snapshots SnapshotStore, changes ChangeSink, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cfg:       cfg.withDefaults(),
		fetcher:   fetcher,
		wallets:   wallets,
		snapshots: snapshots,
		changes:   changes,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
		status:    make(map[string]*WalletStatus),
	}
}

// Start begins the polling loop. The first sweep runs immediately.
func (p *Poller) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("position poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("concurrency", p.cfg.Concurrency))
}

// Stop cancels polling and waits for in-flight wallet work, bounded by ctx.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("position poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns per-wallet polling state, sorted by wallet.
func (p *Poller) Status() []WalletStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]WalletStatus, 0, len(p.status))
	for _, st := range p.status {
		statuses = append(statuses, *st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Wallet < statuses[j].Wallet })
	return statuses
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.sweep()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep polls every tracked wallet once. Failures are isolated per wallet.
func (p *Poller) sweep() {
	start := time.Now()

	wallets := p.wallets.List()
	if len(wallets) == 0 {
		p.logger.Debug("no wallets tracked, skipping sweep")
		return
	}

	// Cycle bucket for change-log idempotency: retries within one interval
	// land in the same bucket regardless of wall clock drift.
	cycle := start.Truncate(p.cfg.Interval).Unix()

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, wallet := range wallets {
		wg.Add(1)
		go func(wallet string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			lock := p.walletLock(wallet)
			if !lock.TryLock() {
				p.logger.Warn("wallet skipped, still in progress", zap.String("wallet", wallet))
				return
			}
			defer lock.Unlock()

			p.pollWallet(wallet, cycle)
		}(domain.NormalizeWallet(wallet))
	}

	wg.Wait()
	p.logger.Debug("sweep finished",
		zap.Int("wallets", len(wallets)),
		zap.Duration("took", time.Since(start)))
}

// pollWallet runs one wallet through fetch -> detect -> persist. The snapshot
// is journaled before the change log is appended, so a crash in between loses
// at most log entries and never logs a transition that was not committed.
func (p *Poller) pollWallet(wallet string, cycle int64) {
	logger := p.logger.With(zap.String("wallet", wallet))

	if err := domain.ValidateWallet(wallet); err != nil {
		logger.Error("wallet rejected", zap.Error(err))
		p.recordFailure(wallet, err)
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.FetchTimeout)
	defer cancel()

	fetched, err := p.fetcher.FetchPositions(ctx, wallet)
	if err != nil {
		logger.Error("fetch failed", zap.Error(err))
		p.recordFailure(wallet, err)
		return
	}

	result, err := detector.Detect(wallet, p.snapshots.Current(wallet), fetched, time.Now().UTC())
	if err != nil {
		logger.Error("detection failed", zap.Error(err))
		p.recordFailure(wallet, err)
		return
	}
	if result.Skipped > 0 {
		logger.Warn("malformed position records skipped", zap.Int("count", result.Skipped))
	}

	for i := range result.Events {
		result.Events[i].ID = uuid.NewString()
	}

	if err := p.snapshots.Apply(wallet, result.Positions); err != nil {
		logger.Error("snapshot update failed", zap.Error(err))
		p.recordFailure(wallet, err)
		return
	}

	written, err := p.changes.Append(cycle, result.Events)
	if err != nil {
		logger.Error("change log append failed", zap.Error(err))
		p.recordFailure(wallet, err)
		return
	}

	if written > 0 {
		logger.Info("position changes recorded", zap.Int("events", written))
	}
	p.recordSuccess(wallet, written)
}

func (p *Poller) walletLock(wallet string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[wallet]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[wallet] = lock
	}
	return lock
}

func (p *Poller) walletStatus(wallet string) *WalletStatus {
	st, ok := p.status[wallet]
	if !ok {
		st = &WalletStatus{Wallet: wallet}
		p.status[wallet] = st
	}
	return st
}

func (p *Poller) recordSuccess(wallet string, events int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.walletStatus(wallet)
	st.LastSuccess = time.Now().UTC()
	st.LastEvents = events
	st.LastError = ""
}

func (p *Poller) recordFailure(wallet string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.walletStatus(wallet)
	st.LastError = err.Error()
	st.LastErrorAt = time.Now().UTC()
}

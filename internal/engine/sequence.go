package engine

import (
	"context"
	"log/slog"
	"sync"

	"ledger_go/internal/domain"
	"ledger_go/internal/infra"
)

// accountSequence is the cached sequence state for one account.
type accountSequence struct {
	mu     sync.Mutex
	cached bool
	seq    int64
}

// SequenceCoordinator issues per-account ledger sequence numbers.
// Claims for the same account are strictly serialized; different
// accounts never contend. The cache is optimistic: after any error
// whose remote effect is unknown the caller must Invalidate, because a
// timed-out submission may still have consumed the sequence.
type SequenceCoordinator struct {
	client  domain.LedgerClient
	metrics *infra.Metrics

	mu       sync.Mutex // guards the accounts map only
	accounts map[string]*accountSequence
}

// NewSequenceCoordinator creates a coordinator backed by the ledger
// client for cache refreshes. metrics may be nil.
func NewSequenceCoordinator(client domain.LedgerClient, metrics *infra.Metrics) *SequenceCoordinator {
	return &SequenceCoordinator{
		client:   client,
		metrics:  metrics,
		accounts: make(map[string]*accountSequence),
	}
}

func (sc *SequenceCoordinator) account(accountID string) *accountSequence {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	as, ok := sc.accounts[accountID]
	if !ok {
		as = &accountSequence{}
		sc.accounts[accountID] = as
	}
	return as
}

// NextSequence claims the next sequence number for the account.
// The per-account lock covers refresh, increment and cache write; it is
// not held across the caller's subsequent network submission.
func (sc *SequenceCoordinator) NextSequence(ctx context.Context, accountID string) (int64, error) {
	as := sc.account(accountID)

	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.cached {
		detail, err := sc.client.FetchAccount(ctx, accountID)
		if err != nil {
			return 0, err
		}
		as.seq = detail.Sequence
		as.cached = true
		if sc.metrics != nil {
			sc.metrics.SequenceRefresh.Inc()
		}
		slog.Debug("Sequence cache refreshed",
			slog.String("account", accountID),
			slog.Int64("sequence", as.seq))
	}

	as.seq++
	return as.seq, nil
}

// Invalidate drops the cached value so the next claim refreshes from
// the remote source of truth. Called after sequence conflicts and after
// any network error that might have landed.
func (sc *SequenceCoordinator) Invalidate(accountID string) {
	as := sc.account(accountID)

	as.mu.Lock()
	as.cached = false
	as.mu.Unlock()

	slog.Debug("Sequence cache invalidated", slog.String("account", accountID))
}

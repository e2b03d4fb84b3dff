package engine

import (
	"context"
	"sync"

	"ledger_go/internal/domain"

	"github.com/shopspring/decimal"
)

// fakeLedgerClient is an in-memory stand-in for the remote ledger.
type fakeLedgerClient struct {
	mu          sync.Mutex
	sequence    int64
	fetches     int
	submits     int
	cancels     int
	nextOfferID int64

	submitErr error
	cancelErr error
	fetchErr  error

	// offer id -> remaining; absent means ErrOfferNotFound
	offers map[int64]decimal.Decimal
}

func newFakeLedgerClient(sequence int64) *fakeLedgerClient {
	return &fakeLedgerClient{
		sequence:    sequence,
		nextOfferID: 1000,
		offers:      make(map[int64]decimal.Decimal),
	}
}

func (f *fakeLedgerClient) setSequence(seq int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence = seq
}

func (f *fakeLedgerClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeLedgerClient) setOffer(offerID int64, remaining decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers[offerID] = remaining
}

func (f *fakeLedgerClient) removeOffer(offerID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.offers, offerID)
}

func (f *fakeLedgerClient) FetchAccount(ctx context.Context, accountID string) (*domain.AccountDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &domain.AccountDetail{
		AccountID: accountID,
		Sequence:  f.sequence,
		Balances:  map[string]decimal.Decimal{"XLM": decimal.NewFromInt(10000)},
	}, nil
}

func (f *fakeLedgerClient) SubmitOrder(ctx context.Context, o *domain.Order, sequence int64) (*domain.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.nextOfferID++
	f.offers[f.nextOfferID] = o.Amount
	return &domain.SubmitResult{
		SettlementRef: "txhash-" + o.CorrelationID[:8],
		OfferID:       f.nextOfferID,
	}, nil
}

func (f *fakeLedgerClient) SubmitCancel(ctx context.Context, o *domain.Order, sequence int64) (*domain.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	delete(f.offers, o.OfferID)
	return &domain.SubmitResult{SettlementRef: "cancelhash-" + o.ID}, nil
}

func (f *fakeLedgerClient) FetchOfferStatus(ctx context.Context, accountID string, offerID int64) (*domain.OfferStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining, ok := f.offers[offerID]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	return &domain.OfferStatus{OfferID: offerID, Remaining: remaining}, nil
}

// allowAllAssets accepts every instrument.
type allowAllAssets struct{}

func (allowAllAssets) IsSupported(domain.Asset) bool { return true }

// listAssets accepts only the listed instruments.
type listAssets map[string]bool

func (l listAssets) IsSupported(a domain.Asset) bool { return l[a.String()] }

package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountDetail is the remote ledger's view of an account.
type AccountDetail struct {
	AccountID      string
	Sequence       int64
	Balances       map[string]decimal.Decimal
	SignerCount    int
	DataEntryCount int
	OpenOfferCount int
}

// SubmitResult is the ledger's acknowledgement of an accepted transaction.
type SubmitResult struct {
	SettlementRef string // transaction hash
	OfferID       int64  // assigned offer id, 0 for cancellations
}

// OfferStatus is the remote state of one open offer.
type OfferStatus struct {
	OfferID   int64
	Remaining decimal.Decimal
}

// LedgerClient is the boundary to the remote ledger: account lookup,
// transaction build/sign/broadcast and offer inspection. Implementations
// own signing and wire formats; the engine never sees either.
type LedgerClient interface {
	FetchAccount(ctx context.Context, accountID string) (*AccountDetail, error)

	// SubmitOrder builds, signs and broadcasts an offer-create
	// transaction. existingOfferID 0 creates a new offer.
	SubmitOrder(ctx context.Context, o *Order, sequence int64) (*SubmitResult, error)

	// SubmitCancel broadcasts an offer-delete for the order's offer.
	SubmitCancel(ctx context.Context, o *Order, sequence int64) (*SubmitResult, error)

	// FetchOfferStatus returns ErrOfferNotFound when the ledger no
	// longer has the offer.
	FetchOfferStatus(ctx context.Context, accountID string, offerID int64) (*OfferStatus, error)
}

// AssetValidator answers whether an instrument may be traded.
type AssetValidator interface {
	IsSupported(asset Asset) bool
}

// Observer is the fire-and-forget observability sink. Implementations
// must never block the trading path.
type Observer interface {
	LogEvent(name string, fields map[string]any)
	LogError(name string, err error, fields map[string]any)
}

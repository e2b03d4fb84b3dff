package event

import "github.com/shopspring/decimal"

// FillUpdateEvent carries one offer state change from the settlement
// stream into the engine. OfferID 0 with Deleted set means the stream
// could not attribute the deletion to a known offer.
type FillUpdateEvent struct {
	OfferID   int64
	Remaining decimal.Decimal
	Deleted   bool  // offer removed from the ledger (consumed or cancelled)
	Ts        int64 // unix microseconds
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents one trading order placed against the remote ledger.
// Amounts use decimal arithmetic because the fill accounting invariant
// (Filled + Remaining == Amount) must hold exactly at every state.
type Order struct {
	ID            string
	AccountID     string
	Selling       Asset
	Buying        Asset
	Amount        decimal.Decimal // requested amount, immutable after creation
	Price         decimal.Decimal // limit price
	Status        string
	Filled        decimal.Decimal
	Remaining     decimal.Decimal
	SettlementRef string // tx hash returned by the ledger
	OfferID       int64  // ledger-side offer identifier, 0 until assigned
	CorrelationID string // immutable for the order's lifetime
	CreatedAt     time.Time
	UpdatedAt     time.Time
	History       []HistoryEvent
}

const (
	OrderStatusPending         = "PENDING"
	OrderStatusSubmitted       = "SUBMITTED"
	OrderStatusOpen            = "OPEN"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCancelled       = "CANCELLED"
	OrderStatusFailed          = "FAILED"
	OrderStatusExpired         = "EXPIRED"
)

// HistoryEvent is one append-only lifecycle record on an order.
type HistoryEvent struct {
	Event         string
	Status        string
	Detail        string
	CorrelationID string
	Ts            time.Time
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed, OrderStatusExpired:
		return true
	}
	return false
}

// IsOpen checks if the order is still active on the ledger.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}

// AppendHistory records a lifecycle event tagged with the order's
// correlation ID and bumps UpdatedAt.
func (o *Order) AppendHistory(event, detail string) {
	now := time.Now()
	o.History = append(o.History, HistoryEvent{
		Event:         event,
		Status:        o.Status,
		Detail:        detail,
		CorrelationID: o.CorrelationID,
		Ts:            now,
	})
	o.UpdatedAt = now
}

// CancelResult is the typed outcome of a cancellation attempt.
// Expected failures travel as codes, not errors, so callers can branch
// without string inspection.
type CancelResult struct {
	Success bool
	Code    string
}

const (
	CancelCodeBreakerOpen   = "BreakerOpen"
	CancelCodeExternalOrder = "ExternalOrderCancellationAttempt"
	CancelCodeAlreadyFilled = "OrderAlreadyFilled"
	CancelCodeOrderNotFound = "OrderNotFound"
)

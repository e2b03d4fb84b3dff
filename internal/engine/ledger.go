package engine

import (
	"fmt"
	"sync"

	"ledger_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Location tells where the ledger found an order.
type Location int

const (
	NotFound Location = iota
	FoundActive
	FoundHistorical
)

// OrderLedger is the in-memory source of truth for orders: the active
// set, the historical (terminal) set and the ownership set of order IDs
// this client created. Side effects are observable only through Get and
// the append-only per-order history.
type OrderLedger struct {
	mu         sync.RWMutex
	active     map[string]*domain.Order
	historical map[string]*domain.Order
	owned      map[string]struct{}
}

// NewOrderLedger creates an empty ledger.
func NewOrderLedger() *OrderLedger {
	return &OrderLedger{
		active:     make(map[string]*domain.Order),
		historical: make(map[string]*domain.Order),
		owned:      make(map[string]struct{}),
	}
}

// Track inserts an order into the active map and the ownership set.
func (l *OrderLedger) Track(o *domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[o.ID] = o
	l.owned[o.ID] = struct{}{}
}

// Restore re-inserts a previously persisted open order without
// overwriting history (startup recovery path).
func (l *OrderLedger) Restore(o *domain.Order) {
	l.Track(o)
}

// IsOwned reports whether this client created the order.
func (l *OrderLedger) IsOwned(orderID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.owned[orderID]
	return ok
}

// Get returns a copy of the order and where it was found.
func (l *OrderLedger) Get(orderID string) (domain.Order, Location) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if o, ok := l.active[orderID]; ok {
		return copyOrder(o), FoundActive
	}
	if o, ok := l.historical[orderID]; ok {
		return copyOrder(o), FoundHistorical
	}
	return domain.Order{}, NotFound
}

// FindByOfferID resolves a ledger-assigned offer id to an active order.
func (l *OrderLedger) FindByOfferID(offerID int64) (domain.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, o := range l.active {
		if o.OfferID == offerID {
			return copyOrder(o), true
		}
	}
	return domain.Order{}, false
}

// Archive atomically moves an order from active to historical.
// Idempotent: archiving an already-historical order is a no-op.
func (l *OrderLedger) Archive(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.archiveLocked(orderID)
}

func (l *OrderLedger) archiveLocked(orderID string) {
	o, ok := l.active[orderID]
	if !ok {
		return
	}
	delete(l.active, orderID)
	l.historical[orderID] = o
}

// UpdateFill applies remote fill accounting to an order and returns the
// resulting status. Rules:
//
//	filled >= requested        -> FILLED, archived
//	0 < filled < requested     -> PARTIALLY_FILLED, stays active
//	filled == 0                -> status unchanged
//
// filled + remaining must equal the requested amount and filled must
// never decrease; violations are programmer errors and are rejected.
func (l *OrderLedger) UpdateFill(orderID string, filled, remaining decimal.Decimal) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.active[orderID]
	if !ok {
		if h, hok := l.historical[orderID]; hok {
			// Terminal orders accept no further fills.
			return h.Status, nil
		}
		return "", domain.ErrOrderNotFound
	}

	if !filled.Add(remaining).Equal(o.Amount) {
		return o.Status, fmt.Errorf("%w: filled %s + remaining %s != requested %s",
			domain.ErrFillAccounting, filled, remaining, o.Amount)
	}
	if filled.LessThan(o.Filled) {
		return o.Status, fmt.Errorf("%w: filled %s regressed below %s",
			domain.ErrFillAccounting, filled, o.Filled)
	}

	if filled.IsZero() {
		return o.Status, nil
	}

	o.Filled = filled
	o.Remaining = remaining

	if filled.GreaterThanOrEqual(o.Amount) {
		o.Status = domain.OrderStatusFilled
		o.AppendHistory("filled", "order fully filled")
		l.archiveLocked(orderID)
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
		o.AppendHistory("partial_fill", fmt.Sprintf("filled %s of %s", filled, o.Amount))
	}

	return o.Status, nil
}

// MarkCancelled transitions an active order to CANCELLED and archives
// it as part of the same critical section.
func (l *OrderLedger) MarkCancelled(orderID, detail string) error {
	return l.markTerminal(orderID, domain.OrderStatusCancelled, "cancelled", detail)
}

// MarkExpired transitions an active order to EXPIRED and archives it.
func (l *OrderLedger) MarkExpired(orderID, detail string) error {
	return l.markTerminal(orderID, domain.OrderStatusExpired, "expired", detail)
}

func (l *OrderLedger) markTerminal(orderID, status, event, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.active[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	o.AppendHistory(event, detail)
	l.archiveLocked(orderID)
	return nil
}

// ActiveSnapshot returns copies of all active orders for iteration
// outside the ledger lock.
func (l *OrderLedger) ActiveSnapshot() []domain.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Order, 0, len(l.active))
	for _, o := range l.active {
		out = append(out, copyOrder(o))
	}
	return out
}

// ActiveCount returns the number of active orders.
func (l *OrderLedger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.active)
}

// copyOrder deep-copies the history slice so callers cannot mutate
// ledger state through a returned snapshot.
func copyOrder(o *domain.Order) domain.Order {
	cp := *o
	cp.History = make([]domain.HistoryEvent, len(o.History))
	copy(cp.History, o.History)
	return cp
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"ledger_go/internal/domain"
	"ledger_go/internal/event"
	"ledger_go/internal/infra"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Missing-offer policies for the monitor loop. When the remote ledger
// no longer has an offer, the default reading is "it was consumed",
// but that is a policy choice, not a proven fact, so it stays
// overridable.
const (
	MissingOfferFilled  = "filled"
	MissingOfferExpired = "expired"
)

// OrderStore persists order snapshots. The engine works without one;
// all correctness guarantees come from the in-memory ledger.
type OrderStore interface {
	SaveOrder(o *domain.Order) error
}

// Limits bounds accepted order parameters.
type Limits struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	MinPrice  decimal.Decimal
	MaxPrice  decimal.Decimal
}

// Deps carries the engine's collaborators. Everything is injected;
// the engine owns no process-wide state.
type Deps struct {
	AccountID          string
	Client             domain.LedgerClient
	Pool               *infra.EndpointPool
	Sequences          *SequenceCoordinator
	Validator          domain.AssetValidator
	Observer           domain.Observer       // optional
	Metrics            *infra.Metrics        // optional
	Store              OrderStore            // optional
	Limits             Limits
	Breaker            infra.CircuitBreakerConfig // template; Name is overridden per category
	MonitorInterval    time.Duration
	MissingOfferPolicy string
	FillInboxSize      int
}

// Engine orchestrates the endpoint pool, sequence coordinator, circuit
// breakers and order ledger into the full order lifecycle: place,
// cancel, fill accounting and background status monitoring.
type Engine struct {
	accountID string
	client    domain.LedgerClient
	pool      *infra.EndpointPool
	sequences *SequenceCoordinator
	ledger    *OrderLedger
	validator domain.AssetValidator
	observer  domain.Observer
	metrics   *infra.Metrics
	store     OrderStore
	limits    Limits

	// One breaker per operation category so an outage in one never
	// blocks another.
	submitBreaker *infra.CircuitBreaker
	cancelBreaker *infra.CircuitBreaker
	pollBreaker   *infra.CircuitBreaker

	monitorInterval    time.Duration
	missingOfferPolicy string

	fills chan *event.FillUpdateEvent

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewEngine wires an engine from its dependencies.
func NewEngine(deps Deps) *Engine {
	mkBreaker := func(category string) *infra.CircuitBreaker {
		cfg := deps.Breaker
		cfg.Name = category
		if cfg.FailureThreshold <= 0 {
			cfg = infra.DefaultCircuitBreakerConfig(category)
		}
		return infra.NewCircuitBreaker(cfg)
	}

	policy := deps.MissingOfferPolicy
	if policy == "" {
		policy = MissingOfferFilled
	}
	interval := deps.MonitorInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	inboxSize := deps.FillInboxSize
	if inboxSize <= 0 {
		inboxSize = 256
	}

	return &Engine{
		accountID:          deps.AccountID,
		client:             deps.Client,
		pool:               deps.Pool,
		sequences:          deps.Sequences,
		ledger:             NewOrderLedger(),
		validator:          deps.Validator,
		observer:           deps.Observer,
		metrics:            deps.Metrics,
		store:              deps.Store,
		limits:             deps.Limits,
		submitBreaker:      mkBreaker("submission"),
		cancelBreaker:      mkBreaker("cancellation"),
		pollBreaker:        mkBreaker("polling"),
		monitorInterval:    interval,
		missingOfferPolicy: policy,
		fills:              make(chan *event.FillUpdateEvent, inboxSize),
	}
}

// FillInbox is where the settlement stream worker delivers offer
// updates. Events are released back to the pool after processing.
func (e *Engine) FillInbox() chan<- *event.FillUpdateEvent {
	return e.fills
}

// Start launches the endpoint health monitor, the status polling loop
// and the stream fill consumer.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	if e.pool != nil {
		e.pool.Start(ctx)
	}

	e.wg.Add(2)
	go e.runMonitor(ctx)
	go e.runFillConsumer(ctx)

	slog.Info("Order execution engine started",
		slog.String("account", e.accountID),
		slog.Duration("monitor_interval", e.monitorInterval))
}

// Stop cancels the background loops and waits for the current
// iterations to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.pool != nil {
		e.pool.Stop()
	}
	slog.Info("Order execution engine stopped")
}

// PlaceOrder validates, claims a sequence number and submits a new
// offer to the ledger. A failed placement leaves nothing tracked.
// Network-class failures are surfaced retryable; retry cadence is the
// caller's call (CalculateBackoff gives the standard schedule).
func (e *Engine) PlaceOrder(ctx context.Context, selling, buying domain.Asset, amount, price decimal.Decimal) (*domain.Order, error) {
	if err := e.validateOrder(selling, buying, amount, price); err != nil {
		// Validation failures never count against the breaker.
		e.countPlace("validation")
		return nil, err
	}

	if !e.submitBreaker.CanExecute() {
		e.countPlace("breaker_open")
		e.observeBreakers()
		return nil, &domain.BreakerOpenError{Category: e.submitBreaker.Name()}
	}

	now := time.Now()
	corrID := uuid.NewString()
	order := &domain.Order{
		ID:            orderID(corrID, now),
		AccountID:     e.accountID,
		Selling:       selling,
		Buying:        buying,
		Amount:        amount,
		Price:         price,
		Status:        domain.OrderStatusPending,
		Filled:        decimal.Zero,
		Remaining:     amount,
		CorrelationID: corrID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.AppendHistory("created", "order validated")

	seq, err := e.sequences.NextSequence(ctx, e.accountID)
	if err != nil {
		e.handleSubmitError("claim_sequence", err)
		e.countPlace("network")
		return nil, err
	}

	order.Status = domain.OrderStatusSubmitted
	order.AppendHistory("submitting", "sequence "+strconv.FormatInt(seq, 10))

	res, err := e.client.SubmitOrder(ctx, order, seq)
	if err != nil {
		e.handleSubmitError("submit_order", err)
		e.countPlace("network")
		return nil, err
	}

	order.Status = domain.OrderStatusOpen
	order.SettlementRef = res.SettlementRef
	order.OfferID = res.OfferID
	order.AppendHistory("submitted", "settlement "+res.SettlementRef)

	e.submitBreaker.RecordSuccess()
	e.ledger.Track(order)
	e.persist(order)
	e.countPlace("ok")
	e.observeBreakers()
	e.observeActive()

	e.logEvent("order_placed", map[string]any{
		"order_id":       order.ID,
		"correlation_id": order.CorrelationID,
		"selling":        selling.String(),
		"buying":         buying.String(),
		"amount":         amount.String(),
		"price":          price.String(),
	})

	return order, nil
}

// CancelOrder cancels an order this client created. Expected outcomes
// travel as a typed result; only network-class failures return an
// error, and those are retryable.
//
// Safety invariant: an order ID outside the ownership set is never
// cancelled, no matter what the remote order book shows. Repeating a
// cancellation of an already-cancelled order succeeds idempotently.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (domain.CancelResult, error) {
	if !e.cancelBreaker.CanExecute() {
		e.countCancel("rejected")
		e.observeBreakers()
		return domain.CancelResult{Success: false, Code: domain.CancelCodeBreakerOpen}, nil
	}

	if !e.ledger.IsOwned(orderID) {
		e.countCancel("rejected")
		e.logEvent("external_cancel_rejected", map[string]any{"order_id": orderID})
		return domain.CancelResult{Success: false, Code: domain.CancelCodeExternalOrder}, nil
	}

	order, loc := e.ledger.Get(orderID)
	switch loc {
	case NotFound:
		e.countCancel("rejected")
		return domain.CancelResult{Success: false, Code: domain.CancelCodeOrderNotFound}, nil

	case FoundHistorical:
		switch order.Status {
		case domain.OrderStatusCancelled:
			// Idempotent: repeated cancellation is a success.
			e.countCancel("ok")
			return domain.CancelResult{Success: true}, nil
		case domain.OrderStatusFilled:
			e.countCancel("rejected")
			return domain.CancelResult{Success: false, Code: domain.CancelCodeAlreadyFilled}, nil
		default:
			e.countCancel("rejected")
			return domain.CancelResult{Success: false, Code: domain.CancelCodeOrderNotFound}, nil
		}

	case FoundActive:
		switch order.Status {
		case domain.OrderStatusCancelled:
			// Short-circuits before any network call.
			e.countCancel("ok")
			return domain.CancelResult{Success: true}, nil
		case domain.OrderStatusFilled:
			e.countCancel("rejected")
			return domain.CancelResult{Success: false, Code: domain.CancelCodeAlreadyFilled}, nil
		}
	}

	seq, err := e.sequences.NextSequence(ctx, order.AccountID)
	if err != nil {
		e.handleCancelError("claim_sequence", order.AccountID, err)
		e.countCancel("network")
		return domain.CancelResult{Success: false}, err
	}

	res, err := e.client.SubmitCancel(ctx, &order, seq)
	if err != nil {
		e.handleCancelError("submit_cancel", order.AccountID, err)
		e.countCancel("network")
		return domain.CancelResult{Success: false}, err
	}

	if err := e.ledger.MarkCancelled(orderID, "settlement "+res.SettlementRef); err != nil {
		// Raced with a concurrent archive; the order is terminal either way.
		slog.Warn("Cancel landed on already-archived order", slog.String("order_id", orderID))
	}
	e.cancelBreaker.RecordSuccess()

	if final, loc := e.ledger.Get(orderID); loc != NotFound {
		e.persist(&final)
	}
	e.countCancel("ok")
	e.observeBreakers()
	e.observeActive()

	e.logEvent("order_cancelled", map[string]any{
		"order_id":       orderID,
		"correlation_id": order.CorrelationID,
	})

	return domain.CancelResult{Success: true}, nil
}

// UpdateFill applies fill accounting to a tracked order. Unknown order
// IDs and accounting violations are rejected.
func (e *Engine) UpdateFill(orderID string, filled, remaining decimal.Decimal) bool {
	status, err := e.ledger.UpdateFill(orderID, filled, remaining)
	if err != nil {
		e.logError("fill_rejected", err, map[string]any{
			"order_id":  orderID,
			"filled":    filled.String(),
			"remaining": remaining.String(),
		})
		return false
	}

	if e.metrics != nil {
		e.metrics.FillsApplied.Inc()
	}
	e.observeActive()

	if o, loc := e.ledger.Get(orderID); loc != NotFound {
		e.persist(&o)
	}

	slog.Debug("Fill applied",
		slog.String("order_id", orderID),
		slog.String("status", status),
		slog.String("filled", filled.String()))
	return true
}

// GetOrderStatus looks an order up in the active then historical sets.
func (e *Engine) GetOrderStatus(orderID string) (domain.Order, bool) {
	o, loc := e.ledger.Get(orderID)
	return o, loc != NotFound
}

// RestoreOrder re-tracks a persisted open order at startup.
func (e *Engine) RestoreOrder(o *domain.Order) {
	e.ledger.Restore(o)
	e.observeActive()
}

// ActiveOrders returns snapshots of all currently active orders.
func (e *Engine) ActiveOrders() []domain.Order {
	return e.ledger.ActiveSnapshot()
}

// validateOrder applies the configured input bounds. Every failure is
// a typed ValidationError the caller must fix, never retried.
func (e *Engine) validateOrder(selling, buying domain.Asset, amount, price decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return &domain.ValidationError{Field: "amount", Err: errors.New("must be positive")}
	}
	if amount.LessThan(e.limits.MinAmount) || amount.GreaterThan(e.limits.MaxAmount) {
		return &domain.ValidationError{Field: "amount", Err: fmt.Errorf(
			"must be within [%s, %s]", e.limits.MinAmount, e.limits.MaxAmount)}
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return &domain.ValidationError{Field: "price", Err: errors.New("must be positive")}
	}
	if price.LessThan(e.limits.MinPrice) || price.GreaterThan(e.limits.MaxPrice) {
		return &domain.ValidationError{Field: "price", Err: fmt.Errorf(
			"must be within [%s, %s]", e.limits.MinPrice, e.limits.MaxPrice)}
	}
	if selling.Equal(buying) {
		return &domain.ValidationError{Field: "assets", Err: errors.New("selling and buying assets must differ")}
	}
	if !e.validator.IsSupported(selling) {
		return &domain.ValidationError{Field: "selling", Err: fmt.Errorf("unsupported asset %s", selling)}
	}
	if !e.validator.IsSupported(buying) {
		return &domain.ValidationError{Field: "buying", Err: fmt.Errorf("unsupported asset %s", buying)}
	}
	return nil
}

// handleSubmitError applies the failure protocol for submissions: the
// cached sequence is suspect (the tx may have landed), the endpoint may
// be down, and the breaker counts the failure.
func (e *Engine) handleSubmitError(op string, err error) {
	e.sequences.Invalidate(e.accountID)

	var ne *domain.NetworkError
	if errors.As(err, &ne) && ne.Endpoint != "" && e.pool != nil {
		e.pool.ReportFailure(ne.Endpoint)
	}

	var sc *domain.SequenceConflictError
	if errors.As(err, &sc) {
		// Sequence conflicts are concurrency artifacts, not service
		// health; they do not trip the breaker. A half-open trial slot
		// consumed by a conflict is handed back so the breaker still
		// gets a real verdict.
		e.submitBreaker.ReleaseTrial()
	} else {
		e.submitBreaker.RecordFailure()
	}
	e.observeBreakers()
	e.logError(op, err, nil)
}

func (e *Engine) handleCancelError(op, accountID string, err error) {
	e.sequences.Invalidate(accountID)

	var ne *domain.NetworkError
	if errors.As(err, &ne) && ne.Endpoint != "" && e.pool != nil {
		e.pool.ReportFailure(ne.Endpoint)
	}

	e.cancelBreaker.RecordFailure()
	e.observeBreakers()
	e.logError(op, err, nil)
}

// runMonitor polls remote offer state for every active order. Polling
// failures count against the polling breaker but never abort the loop;
// an unexpected failure class doubles the interval for the next cycle.
func (e *Engine) runMonitor(ctx context.Context) {
	defer e.wg.Done()

	interval := e.monitorInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Order monitor stopped")
			return
		case <-timer.C:
		}

		interval = e.monitorInterval
		if e.pollBreaker.CanExecute() {
			polled, unexpected := e.pollCycle(ctx)
			if !polled {
				// A cycle with nothing to poll recorded no verdict;
				// give the admitted slot back.
				e.pollBreaker.ReleaseTrial()
			}
			if unexpected {
				interval = 2 * e.monitorInterval
			}
		}
		e.observeBreakers()
		timer.Reset(interval)
	}
}

// pollCycle checks each active order once. polled reports whether any
// remote status call completed and fed the breaker a verdict;
// unexpected is true when a failure outside the expected network class
// occurred.
func (e *Engine) pollCycle(ctx context.Context) (polled, unexpected bool) {
	for _, o := range e.ledger.ActiveSnapshot() {
		select {
		case <-ctx.Done():
			return polled, unexpected
		default:
		}

		if o.OfferID == 0 {
			continue
		}

		status, err := e.client.FetchOfferStatus(ctx, o.AccountID, o.OfferID)
		polled = true
		switch {
		case errors.Is(err, domain.ErrOfferNotFound):
			e.pollBreaker.RecordSuccess()
			e.applyMissingOffer(o)

		case err != nil:
			e.pollBreaker.RecordFailure()
			if !domain.IsRetriable(err) {
				unexpected = true
			}
			e.logError("poll_offer", err, map[string]any{"order_id": o.ID})

		default:
			e.pollBreaker.RecordSuccess()
			if !status.Remaining.Equal(o.Remaining) {
				filled := o.Amount.Sub(status.Remaining)
				e.UpdateFill(o.ID, filled, status.Remaining)
			}
		}
	}

	if e.metrics != nil {
		e.metrics.PollCycles.Inc()
	}
	return polled, unexpected
}

// applyMissingOffer resolves an order whose remote record disappeared.
// The "filled" default assumes the offer was consumed; "expired" keeps
// position accounting conservative. Either way the decision is recorded
// in the order history.
func (e *Engine) applyMissingOffer(o domain.Order) {
	switch e.missingOfferPolicy {
	case MissingOfferExpired:
		if err := e.ledger.MarkExpired(o.ID, "offer missing from ledger"); err == nil {
			if final, loc := e.ledger.Get(o.ID); loc != NotFound {
				e.persist(&final)
			}
			e.observeActive()
		}
	default:
		e.UpdateFill(o.ID, o.Amount, decimal.Zero)
	}

	e.logEvent("offer_missing_resolved", map[string]any{
		"order_id": o.ID,
		"policy":   e.missingOfferPolicy,
	})
}

// runFillConsumer drains the settlement stream inbox.
func (e *Engine) runFillConsumer(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.fills:
			e.applyFillEvent(ev)
			event.ReleaseFillUpdateEvent(ev)
		}
	}
}

func (e *Engine) applyFillEvent(ev *event.FillUpdateEvent) {
	o, ok := e.ledger.FindByOfferID(ev.OfferID)
	if !ok {
		return // not ours, or already terminal
	}

	if ev.Deleted {
		e.applyMissingOffer(o)
		return
	}
	if ev.Remaining.Equal(o.Remaining) {
		return
	}
	filled := o.Amount.Sub(ev.Remaining)
	e.UpdateFill(o.ID, filled, ev.Remaining)
}

func (e *Engine) persist(o *domain.Order) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveOrder(o); err != nil {
		// Persistence is best-effort; the in-memory ledger stays correct.
		slog.Warn("Order persistence failed",
			slog.String("order_id", o.ID), slog.Any("error", err))
	}
}

func (e *Engine) countPlace(result string) {
	if e.metrics != nil {
		e.metrics.OrdersPlaced.WithLabelValues(result).Inc()
	}
}

func (e *Engine) countCancel(result string) {
	if e.metrics != nil {
		e.metrics.OrdersCancelled.WithLabelValues(result).Inc()
	}
}

func (e *Engine) observeBreakers() {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveBreaker("submission", e.submitBreaker.GetState())
	e.metrics.ObserveBreaker("cancellation", e.cancelBreaker.GetState())
	e.metrics.ObserveBreaker("polling", e.pollBreaker.GetState())
}

func (e *Engine) observeActive() {
	if e.metrics != nil {
		e.metrics.ActiveOrders.Set(float64(e.ledger.ActiveCount()))
	}
}

func (e *Engine) logEvent(name string, fields map[string]any) {
	if e.observer != nil {
		e.observer.LogEvent(name, fields)
	}
}

func (e *Engine) logError(name string, err error, fields map[string]any) {
	if e.observer != nil {
		e.observer.LogError(name, err, fields)
	}
}

// orderID derives a client order ID from the correlation ID and the
// creation timestamp.
func orderID(corrID string, ts time.Time) string {
	return "ord-" + corrID[:8] + "-" + strconv.FormatInt(ts.UnixMilli(), 10)
}

package event

import (
	"sync"

	"github.com/shopspring/decimal"
)

// fillUpdatePool provides sync.Pool for stream event allocation.
// The settlement stream can burst hard during volatile markets; pooling
// keeps GC pressure off the fill path.
//
// Usage:
//
//	ev := AcquireFillUpdateEvent()
//	ev.OfferID = 42
//	// ... send through the inbox, consumer releases ...
//	ReleaseFillUpdateEvent(ev)
var fillUpdatePool = sync.Pool{
	New: func() interface{} {
		return &FillUpdateEvent{}
	},
}

// AcquireFillUpdateEvent gets a FillUpdateEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireFillUpdateEvent() *FillUpdateEvent {
	return fillUpdatePool.Get().(*FillUpdateEvent)
}

// ReleaseFillUpdateEvent returns a FillUpdateEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleaseFillUpdateEvent(ev *FillUpdateEvent) {
	if ev == nil {
		return
	}
	ev.OfferID = 0
	ev.Remaining = decimal.Zero
	ev.Deleted = false
	ev.Ts = 0

	fillUpdatePool.Put(ev)
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	evs := make([]*FillUpdateEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireFillUpdateEvent())
	}
	for _, ev := range evs {
		ReleaseFillUpdateEvent(ev)
	}
}

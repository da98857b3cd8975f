package event

import (
	"sync"
)

// tradePool provides sync.Pool for high-frequency trade allocation.
// The upstream read loop decodes many trades per second; pooling keeps GC
// pressure off the hotpath.
//
// Usage:
//
//	t := AcquireTrade()
//	// ... fill and process ...
//	ReleaseTrade(t)  // Return to pool after the last publish
var tradePool = sync.Pool{
	New: func() interface{} {
		return &Trade{}
	},
}

// AcquireTrade gets a Trade from the pool.
// The returned trade has zero values and must be initialized.
func AcquireTrade() *Trade {
	return tradePool.Get().(*Trade)
}

// ReleaseTrade returns a Trade to the pool.
// The trade is reset to zero values before being pooled.
func ReleaseTrade(t *Trade) {
	if t == nil {
		return
	}
	t.Symbol = ""
	t.Price = 0
	t.Quantity = 0
	t.Side = ""
	t.High = 0
	t.Low = 0
	t.Timestamp = 0

	tradePool.Put(t)
}

// Warmup pre-allocates trade objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	trades := make([]*Trade, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		trades = append(trades, AcquireTrade())
	}
	for _, t := range trades {
		ReleaseTrade(t)
	}
}

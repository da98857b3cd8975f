package engine

import (
	"sync"

	"market_relay/internal/event"

	"github.com/shopspring/decimal"
)

// symbolState holds the running accumulators for one symbol. All three grow
// incrementally; nothing here is ever recomputed from history.
type symbolState struct {
	volume        decimal.Decimal // cumulative traded quantity, never decreases
	typicalVolume decimal.Decimal // cumulative typical_price * quantity
	delta         decimal.Decimal // signed buy-sell quantity, unbounded
}

func (s *symbolState) vwap() decimal.Decimal {
	if s.volume.IsZero() {
		return decimal.Zero
	}
	return s.typicalVolume.Div(s.volume)
}

// Aggregator maintains per-symbol VWAP/CVD state. States are created lazily
// on the first trade for a symbol and retained for the life of the process;
// aggregation is symbol-scoped, not connection-scoped, so reconnects of the
// upstream feed do not touch it.
//
// Accumulators use decimal arithmetic so a long stream of small trades does
// not drift the way repeated float addition would.
type Aggregator struct {
	mu      sync.RWMutex
	symbols map[string]*symbolState
}

// SymbolAggregate is a point-in-time view of one symbol's running values.
type SymbolAggregate struct {
	Symbol string
	VWAP   float64
	CVD    float64
}

// NewAggregator creates an empty aggregation engine.
func NewAggregator() *Aggregator {
	return &Aggregator{
		symbols: make(map[string]*symbolState),
	}
}

// Update folds one trade into the symbol's accumulators and returns the
// updated (vwap, cvd) for immediate broadcast. VWAP is 0 while cumulative
// volume is still 0, which guards the division on a zero-quantity first
// trade. Input validation happens at decode time; every trade that reaches
// here carries usable numbers, so the update never fails partway.
func (a *Aggregator) Update(t *event.Trade) (vwap, cvd float64) {
	price := decimal.NewFromFloat(t.Price)
	qty := decimal.NewFromFloat(t.Quantity)
	high := decimal.NewFromFloat(t.High)
	low := decimal.NewFromFloat(t.Low)

	typical := high.Add(low).Add(price).Div(decimal.NewFromInt(3))

	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.symbols[t.Symbol]
	if !ok {
		state = &symbolState{}
		a.symbols[t.Symbol] = state
	}

	state.typicalVolume = state.typicalVolume.Add(typical.Mul(qty))
	state.volume = state.volume.Add(qty)
	if t.Side == event.SideBuy {
		state.delta = state.delta.Add(qty)
	} else {
		state.delta = state.delta.Sub(qty)
	}

	return state.vwap().InexactFloat64(), state.delta.InexactFloat64()
}

// Current returns the running (vwap, cvd) for a symbol without mutating it.
// ok is false when no trade has been seen for the symbol.
func (a *Aggregator) Current(symbol string) (vwap, cvd float64, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	state, ok := a.symbols[symbol]
	if !ok {
		return 0, 0, false
	}
	return state.vwap().InexactFloat64(), state.delta.InexactFloat64(), true
}

// Snapshot returns the aggregates of every symbol with non-zero cumulative
// volume. Used by the periodic reporter for re-broadcast.
func (a *Aggregator) Snapshot() []SymbolAggregate {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]SymbolAggregate, 0, len(a.symbols))
	for symbol, state := range a.symbols {
		if state.volume.IsZero() {
			continue
		}
		out = append(out, SymbolAggregate{
			Symbol: symbol,
			VWAP:   state.vwap().InexactFloat64(),
			CVD:    state.delta.InexactFloat64(),
		})
	}
	return out
}

// SymbolCount reports how many symbols hold state, for operational logs.
func (a *Aggregator) SymbolCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.symbols)
}

package relay

import (
	"context"
	"log/slog"
	"time"

	"market_relay/internal/engine"
	"market_relay/internal/infra"
)

const (
	republishEvery = 5  // ticks between vwap/cvd re-broadcasts
	summaryEvery   = 30 // ticks between operational summaries
)

// Reporter re-broadcasts the latest per-symbol aggregates on a throttled
// schedule and periodically logs fan-out statistics. It runs until its
// context is cancelled; nothing it observes can terminate it early.
type Reporter struct {
	aggregator *engine.Aggregator
	registry   *Registry
	dispatcher *Dispatcher
	stats      *Stats
	interval   time.Duration
	topN       int
}

// NewReporter wires a reporter over the shared relay state.
func NewReporter(agg *engine.Aggregator, registry *Registry, dispatcher *Dispatcher, stats *Stats, topN int) *Reporter {
	if topN <= 0 {
		topN = 5
	}
	return &Reporter{
		aggregator: agg,
		registry:   registry,
		dispatcher: dispatcher,
		stats:      stats,
		interval:   time.Second,
		topN:       topN,
	}
}

// Run drives the tick loop. One tick per second; aggregates go out every
// 5th tick, the stats summary every 30th.
func (r *Reporter) Run(ctx context.Context) {
	slog.Info("Periodic reporter started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-ctx.Done():
			slog.Info("Periodic reporter stopping")
			return
		case <-ticker.C:
			n++
			r.tick(n)
		}
	}
}

func (r *Reporter) tick(n uint64) {
	if n%republishEvery == 0 {
		r.republishAggregates()
	}
	if n%summaryEvery == 0 {
		r.logSummary()
	}
}

// republishAggregates pushes the current vwap/cvd of every symbol that has
// seen volume. Subscribers of quiet symbols still get a fresh value without
// waiting for the next trade.
func (r *Reporter) republishAggregates() {
	now := time.Now().UnixMilli()
	for _, agg := range r.aggregator.Snapshot() {
		r.dispatcher.Publish("vwap:"+agg.Symbol, NewVWAPMessage(agg.Symbol, agg.VWAP, now))
		r.dispatcher.Publish("cvd:"+agg.Symbol, NewCVDMessage(agg.Symbol, agg.CVD, now))
	}
}

func (r *Reporter) logSummary() {
	summary := r.stats.SummarizeAndReset(r.topN)
	channels, subscriptions := r.registry.Counts()
	procSnap := infra.GlobalMetrics.Snapshot()

	top := make([]any, 0, len(summary.TopChannels))
	for _, cc := range summary.TopChannels {
		top = append(top, slog.Group(cc.Channel, slog.Uint64("messages", cc.Messages)))
	}

	slog.Info("Relay summary",
		slog.Int("active_channels", channels),
		slog.Int("subscriptions", subscriptions),
		slog.Int("connections", int(procSnap.ActiveConnections)),
		slog.Int("symbols", r.aggregator.SymbolCount()),
		slog.Uint64("messages", summary.TotalMessages),
		slog.Float64("rate_per_sec", summary.Rate()),
		slog.Group("top_channels", top...),
	)
}

package relay

import (
	"sort"
	"sync"
	"time"
)

// Stats counts published messages per channel between reporter summaries.
type Stats struct {
	mu     sync.Mutex
	counts map[string]uint64
	since  time.Time
}

// ChannelCount is one (channel, messages) pair of a summary.
type ChannelCount struct {
	Channel  string
	Messages uint64
}

// StatsSummary is the aggregated view emitted every reporting window.
type StatsSummary struct {
	TotalMessages uint64
	Elapsed       time.Duration
	TopChannels   []ChannelCount
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{
		counts: make(map[string]uint64),
		since:  time.Now(),
	}
}

// Record increments the counter for a channel.
func (s *Stats) Record(channel string) {
	s.mu.Lock()
	s.counts[channel]++
	s.mu.Unlock()
}

// Count returns the current counter for a channel.
func (s *Stats) Count(channel string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[channel]
}

// SummarizeAndReset aggregates the window into a summary with the topN
// busiest channels, then clears all counters and restarts the window.
func (s *Stats) SummarizeAndReset(topN int) StatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := StatsSummary{
		Elapsed:     time.Since(s.since),
		TopChannels: make([]ChannelCount, 0, len(s.counts)),
	}
	for channel, n := range s.counts {
		summary.TotalMessages += n
		summary.TopChannels = append(summary.TopChannels, ChannelCount{Channel: channel, Messages: n})
	}

	sort.Slice(summary.TopChannels, func(i, j int) bool {
		if summary.TopChannels[i].Messages != summary.TopChannels[j].Messages {
			return summary.TopChannels[i].Messages > summary.TopChannels[j].Messages
		}
		return summary.TopChannels[i].Channel < summary.TopChannels[j].Channel
	})
	if len(summary.TopChannels) > topN {
		summary.TopChannels = summary.TopChannels[:topN]
	}

	s.counts = make(map[string]uint64)
	s.since = time.Now()
	return summary
}

// Rate is the messages-per-second of a summary window.
func (sum StatsSummary) Rate() float64 {
	secs := sum.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(sum.TotalMessages) / secs
}

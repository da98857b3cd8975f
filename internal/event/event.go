package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrMissingType  = errors.New("frame missing type")
	ErrMissingField = errors.New("trade missing required field")
)

// Trade carries the numeric fields of a single trade observation.
// Price and Quantity are mandatory; High/Low default to Price when the
// upstream omits them.
type Trade struct {
	Symbol    string
	Price     float64
	Quantity  float64
	Side      Side
	High      float64
	Low       float64
	Timestamp int64
}

// Event is one decoded upstream item. Raw holds the original frame bytes so
// the passthrough broadcast keeps the inbound shape byte for byte. Trade is
// non-nil only for type "trade" with valid numeric fields; a trade that fails
// validation is still relayed raw, it just never reaches the aggregator.
type Event struct {
	Type   string
	Symbol string
	Raw    json.RawMessage
	Trade  *Trade
}

// Channel returns the topic key this event is published on.
func (e *Event) Channel() string {
	return e.Type + ":" + e.Symbol
}

// number tolerates both JSON numbers and numeric strings; the upstream feed
// is not consistent about quoting. Unparseable values are treated as absent
// rather than failing the whole frame, so a trade with a garbage price still
// flows downstream as a raw event.
type number struct {
	value float64
	set   bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		n.value = v
		n.set = true
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	n.value = v
	n.set = true
	return nil
}

type frame struct {
	Type      string            `json:"type"`
	Symbol    string            `json:"symbol"`
	Batch     []json.RawMessage `json:"batch"`
	Price     number            `json:"price"`
	Quantity  number            `json:"quantity"`
	Side      string            `json:"side"`
	High      number            `json:"high"`
	Low       number            `json:"low"`
	Timestamp int64             `json:"timestamp"`
}

// Decode parses one upstream frame into its individual events. A batch
// envelope is unwrapped in order; malformed items inside a batch are skipped
// so one bad item cannot swallow its siblings. A single malformed frame
// returns an error and no events.
func Decode(data []byte) ([]Event, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFrame
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if f.Type == "batch" {
		events := make([]Event, 0, len(f.Batch))
		for _, item := range f.Batch {
			ev, err := decodeSingle(item)
			if err != nil {
				continue
			}
			events = append(events, ev)
		}
		return events, nil
	}

	ev, err := decodeSingle(data)
	if err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeSingle(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if f.Type == "" || f.Symbol == "" {
		return Event{}, ErrMissingType
	}

	ev := Event{
		Type:   f.Type,
		Symbol: f.Symbol,
		Raw:    json.RawMessage(data),
	}

	if f.Type == "trade" {
		trade, err := tradeFromFrame(&f)
		if err != nil {
			// The raw event is still relayed; only the aggregation
			// update is skipped.
			slog.Warn("Trade with malformed numeric fields",
				slog.String("symbol", f.Symbol), slog.Any("error", err))
		} else {
			ev.Trade = trade
		}
	}

	return ev, nil
}

// tradeFromFrame validates required numeric fields up front so downstream
// consumers never probe for field presence.
func tradeFromFrame(f *frame) (*Trade, error) {
	if !f.Price.set {
		return nil, fmt.Errorf("%w: price", ErrMissingField)
	}
	if !f.Quantity.set {
		return nil, fmt.Errorf("%w: quantity", ErrMissingField)
	}

	t := AcquireTrade()
	t.Symbol = f.Symbol
	t.Price = f.Price.value
	t.Quantity = f.Quantity.value
	t.Timestamp = f.Timestamp

	// The feed treats anything that is not an explicit buy as sell side.
	if f.Side == string(SideBuy) {
		t.Side = SideBuy
	} else {
		t.Side = SideSell
	}

	t.High = f.Price.value
	if f.High.set {
		t.High = f.High.value
	}
	t.Low = f.Price.value
	if f.Low.set {
		t.Low = f.Low.value
	}

	return t, nil
}

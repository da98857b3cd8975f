package relay

// Outbound message shapes. Raw passthrough keeps the inbound frame verbatim;
// everything else is built here.

// VWAPMessage carries the running volume-weighted average price of a symbol.
type VWAPMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	VWAP      float64 `json:"vwap"`
	Timestamp int64   `json:"timestamp"`
}

// CVDMessage carries the running cumulative volume delta of a symbol.
type CVDMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	CVD       float64 `json:"cvd"`
	Timestamp int64   `json:"timestamp"`
}

// ackSuccess acknowledges a well-formed control message.
type ackSuccess struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ackError is returned to a client that sent a bad control message. The
// connection stays open.
type ackError struct {
	Error string `json:"error"`
}

// NewVWAPMessage builds a vwap broadcast for channel "vwap:<symbol>".
func NewVWAPMessage(symbol string, vwap float64, tsMillis int64) VWAPMessage {
	return VWAPMessage{Type: "vwap", Symbol: symbol, VWAP: vwap, Timestamp: tsMillis}
}

// NewCVDMessage builds a cvd broadcast for channel "cvd:<symbol>".
func NewCVDMessage(symbol string, cvd float64, tsMillis int64) CVDMessage {
	return CVDMessage{Type: "cvd", Symbol: symbol, CVD: cvd, Timestamp: tsMillis}
}

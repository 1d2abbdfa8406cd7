package marketdata

// Event is a single message produced by a Provider. It is a closed union:
// only StatusEvent, TradeEvent, QuoteEvent and CandleEvent implement it.
// Events on one channel arrive in production order; there is no ordering
// guarantee across symbols or categories.
type Event interface {
	event()
}

// StatusEvent is a free-text notification about the source itself:
// connection changes, dropped poll cycles, vendor errors.
type StatusEvent struct {
	Message string
}

// TradeEvent carries a single trade.
type TradeEvent struct {
	Trade Trade
}

// QuoteEvent carries a single quote.
type QuoteEvent struct {
	Quote Quote
}

// CandleEvent carries the latest known bar of a fixed interval.
type CandleEvent struct {
	Candle Candle
}

func (StatusEvent) event() {}
func (TradeEvent) event()  {}
func (QuoteEvent) event()  {}
func (CandleEvent) event() {}

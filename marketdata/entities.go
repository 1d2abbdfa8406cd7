package marketdata

import (
	"time"

	// Required for easyjson generation
	_ "github.com/mailru/easyjson/gen"
)

//go:generate go install github.com/mailru/easyjson/...@v0.7.7
//go:generate easyjson -all -lower_camel_case $GOFILE

// Trade is a single trade that happened on the market.
type Trade struct {
	Symbol    string    `json:"S"`
	Price     float64   `json:"p"`
	Size      uint32    `json:"s"`
	Timestamp time.Time `json:"t"`
}

// Quote is the best bid and offer for a symbol.
//
// A quote synthesized from a bar close (see the fallback policy of the polling
// providers) carries zero bid and ask sizes.
type Quote struct {
	Symbol    string    `json:"S"`
	BidPrice  float64   `json:"bp"`
	BidSize   uint32    `json:"bs"`
	AskPrice  float64   `json:"ap"`
	AskSize   uint32    `json:"as"`
	Timestamp time.Time `json:"t"`
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 {
	return (q.BidPrice + q.AskPrice) / 2
}

// Synthetic reports whether the quote was derived from a bar close rather than
// a real bid/ask pair.
func (q Quote) Synthetic() bool {
	return q.BidSize == 0 && q.AskSize == 0
}

// Candle is one aggregate bar of a fixed interval.
type Candle struct {
	Symbol string  `json:"S"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume uint64  `json:"v"`
	// VWAP is the volume weighted average price of the bar. It is zero when
	// the source does not provide it.
	VWAP  float64   `json:"vw"`
	Start time.Time `json:"ts"`
	End   time.Time `json:"te"`
}

// Interval is the resolution of intraday candles, e.g. "5min".
type Interval string

// List of intervals understood by the polling providers.
const (
	OneMin     Interval = "1min"
	FiveMin    Interval = "5min"
	FifteenMin Interval = "15min"
	ThirtyMin  Interval = "30min"
	SixtyMin   Interval = "60min"
)

// Duration returns the length of one bar of the interval. Unrecognized
// intervals map to the 5 minute duration.
func (i Interval) Duration() time.Duration {
	switch i {
	case OneMin:
		return time.Minute
	case FiveMin:
		return 5 * time.Minute
	case FifteenMin:
		return 15 * time.Minute
	case ThirtyMin:
		return 30 * time.Minute
	case SixtyMin:
		return time.Hour
	}
	return 5 * time.Minute
}

func (i Interval) String() string {
	return string(i)
}

// Package momentum classifies the short-horizon direction of a price stream.
package momentum

// Signal is the classification of a symbol's recent price action.
type Signal int

const (
	Neutral Signal = iota
	Bullish
	Bearish
)

func (s Signal) String() string {
	switch s {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	}
	return "neutral"
}

const (
	// alpha is the EMA smoothing factor.
	alpha = 0.2
	// threshold is the minimum |mid-EMA| divergence, as a fraction of the
	// EMA, before a streak counts as a signal.
	threshold = 0.001
	// historyLen bounds the delta sign history.
	historyLen = 3
)

// Tracker holds the incremental momentum state for one symbol. The zero value
// is ready to use. Tracker is not safe for concurrent use; the live store
// updates it from a single goroutine.
type Tracker struct {
	ema     float64
	lastMid float64
	seeded  bool
	signs   []int
}

// Update folds one mid-price sample into the state.
func (t *Tracker) Update(mid float64) {
	if !t.seeded {
		t.ema = mid
		t.lastMid = mid
		t.seeded = true
		return
	}

	t.ema += alpha * (mid - t.ema)

	sign := 0
	switch {
	case mid > t.lastMid:
		sign = 1
	case mid < t.lastMid:
		sign = -1
	}
	t.signs = append(t.signs, sign)
	if len(t.signs) > historyLen {
		t.signs = t.signs[1:]
	}
	t.lastMid = mid
}

// Signal classifies the current state. A tracker with no samples, or one
// whose EMA is zero, is neutral.
func (t *Tracker) Signal() Signal {
	if !t.seeded || t.ema == 0 || len(t.signs) < 2 {
		return Neutral
	}
	pctDiff := (t.lastMid - t.ema) / t.ema

	last := t.signs[len(t.signs)-1]
	prev := t.signs[len(t.signs)-2]
	switch {
	case pctDiff > threshold && last > 0 && prev > 0:
		return Bullish
	case pctDiff < -threshold && last < 0 && prev < 0:
		return Bearish
	}
	return Neutral
}

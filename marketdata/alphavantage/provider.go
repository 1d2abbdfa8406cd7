package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quotewatch/quotewatch-go/internal/ctxtime"
	"github.com/quotewatch/quotewatch-go/marketdata"
)

const (
	// defaultCycle is the target period of one polling cycle.
	defaultCycle = 15 * time.Second
	// minimumFloor bounds the inter-cycle sleep from below so slow upstream
	// requests never collapse the pause between cycles.
	minimumFloor = time.Second
)

// Provider is a polling marketdata.Provider backed by the Alpha Vantage REST
// API. It refreshes one symbol per category per cycle using independent round
// robin cursors. Alpha Vantage has no trade-by-trade feed, so the trade
// category of a subscription is dropped silently.
type Provider struct {
	logger   marketdata.Logger
	interval marketdata.Interval
	cycle    time.Duration
	floor    time.Duration
	queue    *marketdata.Queue

	// newClient builds the REST client at Connect time, when the key is known.
	newClient func(apiKey string) Client

	mu        sync.Mutex
	client    Client
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ marketdata.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for operational messages.
func WithLogger(logger marketdata.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithInterval sets the candle resolution requested from the vendor.
func WithInterval(interval marketdata.Interval) Option {
	return func(p *Provider) { p.interval = interval }
}

// WithCycle sets the target duration of one polling cycle.
func WithCycle(cycle time.Duration) Option {
	return func(p *Provider) { p.cycle = cycle }
}

// WithFloor sets the minimum pause between cycles.
func WithFloor(floor time.Duration) Option {
	return func(p *Provider) { p.floor = floor }
}

// WithClient replaces the REST client built at Connect time. Used by tests
// and by callers that need custom client options.
func WithClient(c Client) Option {
	return func(p *Provider) {
		p.newClient = func(string) Client { return c }
	}
}

// NewProvider returns a disconnected Alpha Vantage provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		logger:   marketdata.DefaultLogger(),
		interval: marketdata.FiveMin,
		cycle:    defaultCycle,
		floor:    minimumFloor,
		queue:    marketdata.NewQueue(),
		newClient: func(apiKey string) Client {
			return NewClient(ClientOpts{APIKey: apiKey})
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect validates the credential and transitions to connected. No request
// is issued until the first subscription.
func (p *Provider) Connect(_ context.Context, apiKey string) error {
	if apiKey == "" {
		return marketdata.ErrMissingCredential
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}
	p.client = p.newClient(apiKey)
	p.connected = true
	p.queue.Push(marketdata.StatusEvent{Message: "alphavantage: connected"})
	return nil
}

// Disconnect stops the polling loop and transitions to disconnected. The
// loop observes the cancellation before issuing its next upstream request.
// Disconnect is idempotent.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	p.stopLoop(cancel, done)
	p.queue.Push(marketdata.StatusEvent{Message: "alphavantage: disconnected"})
}

// Subscribe replaces the active subscription. Symbols already being polled
// but absent from the new request are no longer refreshed.
func (p *Provider) Subscribe(_ context.Context, sub marketdata.Subscription) error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return marketdata.ErrInvalidRequest
	}
	sub = sub.Normalize()
	if len(sub.Trades) > 0 {
		p.logger.Infof("alphavantage: no trade feed, dropping trade subscription for %v", sub.Trades)
	}

	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil

	client := p.client
	if len(sub.Quotes) == 0 && len(sub.Candles) == 0 {
		p.mu.Unlock()
		p.stopLoop(cancel, done)
		return nil
	}

	ctx, newCancel := context.WithCancel(context.Background())
	newDone := make(chan struct{})
	p.cancel, p.done = newCancel, newDone
	p.mu.Unlock()

	p.stopLoop(cancel, done)
	go p.poll(ctx, client, sub.Quotes, sub.Candles, newDone)
	return nil
}

// Events exposes the provider's output channel. The channel stays open for
// the provider's lifetime; after Disconnect it is simply idle.
func (p *Provider) Events() <-chan marketdata.Event {
	return p.queue.C()
}

func (p *Provider) stopLoop(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// poll runs the scheduling loop: one request per category per cycle, then a
// sleep of max(floor, cycle-elapsed). Cancellation is checked at the top of
// every cycle and interrupts the sleep; an in-flight request is never aborted
// but no new one starts after cancellation.
func (p *Provider) poll(ctx context.Context, client Client, quotes, candles []string, done chan struct{}) {
	defer close(done)
	var quoteCursor, candleCursor int
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if len(quotes) > 0 {
			p.pollQuote(ctx, client, quotes[quoteCursor%len(quotes)])
			quoteCursor++
		}
		if len(candles) > 0 {
			p.pollCandle(ctx, client, candles[candleCursor%len(candles)])
			candleCursor++
		}
		sleep := p.cycle - time.Since(start)
		if sleep < p.floor {
			sleep = p.floor
		}
		if ctxtime.Sleep(ctx, sleep) != nil {
			return
		}
	}
}

// pollQuote fetches the current quote for one symbol, falling back to the
// latest intraday close when the realtime endpoint has nothing usable. A
// fallback quote spreads bid/ask symmetrically around the close and carries
// zero sizes.
func (p *Provider) pollQuote(ctx context.Context, client Client, symbol string) {
	quote, err := client.LatestQuote(ctx, symbol)
	if err == nil {
		p.queue.Push(marketdata.QuoteEvent{Quote: *quote})
		return
	}
	if ctx.Err() != nil {
		return
	}
	if !errors.Is(err, marketdata.ErrNoData) {
		p.status("alphavantage: quote poll for %s failed: %v", symbol, err)
		return
	}
	p.logger.Infof("alphavantage: quote for %s unavailable (%v), using intraday close", symbol, err)

	candle, err := p.latestIntraday(ctx, client, symbol)
	if err != nil {
		p.status("alphavantage: no quote for %s: %v", symbol, err)
		return
	}
	p.queue.Push(marketdata.QuoteEvent{Quote: marketdata.Quote{
		Symbol:    symbol,
		BidPrice:  candle.Close * 0.999,
		AskPrice:  candle.Close * 1.001,
		Timestamp: candle.End,
	}})
}

func (p *Provider) pollCandle(ctx context.Context, client Client, symbol string) {
	candle, err := p.latestIntraday(ctx, client, symbol)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.status("alphavantage: no bars for %s: %v", symbol, err)
		return
	}
	p.queue.Push(marketdata.CandleEvent{Candle: *candle})
}

func (p *Provider) latestIntraday(ctx context.Context, client Client, symbol string) (*marketdata.Candle, error) {
	candles, err := client.IntradayCandles(ctx, symbol, IntradayParams{
		Interval:   p.interval,
		OutputSize: Compact,
	})
	if err != nil {
		return nil, err
	}
	return &candles[len(candles)-1], nil
}

func (p *Provider) status(format string, v ...interface{}) {
	p.logger.Warnf(format, v...)
	p.queue.Push(marketdata.StatusEvent{Message: fmt.Sprintf(format, v...)})
}

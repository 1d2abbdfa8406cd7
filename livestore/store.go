// Package livestore maintains the last known per-symbol market state fed by a
// marketdata.Provider.
package livestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/quotewatch/quotewatch-go/marketdata"
	"github.com/quotewatch/quotewatch-go/momentum"
)

// Store is the single consumer of a provider's event channel. It keeps the
// most recent trade, quote and candle per symbol and drives the momentum
// trackers. All map writes happen on the drain goroutine; readers go through
// the store's lock.
type Store struct {
	provider marketdata.Provider
	logger   marketdata.Logger

	mu         sync.RWMutex
	connected  bool
	lastStatus string
	trades     map[string]marketdata.Trade
	quotes     map[string]marketdata.Quote
	candles    map[string]marketdata.Candle
	trackers   map[string]*momentum.Tracker

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for operational messages.
func WithLogger(logger marketdata.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a store consuming from the given provider.
func New(provider marketdata.Provider, opts ...Option) *Store {
	s := &Store{
		provider: provider,
		logger:   marketdata.DefaultLogger(),
		trades:   map[string]marketdata.Trade{},
		quotes:   map[string]marketdata.Quote{},
		candles:  map[string]marketdata.Candle{},
		trackers: map[string]*momentum.Tracker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectAndSubscribe connects the provider, subscribes to the wanted
// categories of the given symbols and starts draining the event channel.
// It never fails to its caller: on any provider error the store stays
// disconnected and the error is recorded as the last status message.
func (s *Store) ConnectAndSubscribe(
	ctx context.Context,
	apiKey string,
	symbols []string,
	wantTrades, wantQuotes, wantCandles bool,
) {
	s.Disconnect()

	if err := s.provider.Connect(ctx, apiKey); err != nil {
		s.logger.Warnf("livestore: connect failed: %v", err)
		s.setStatus(fmt.Sprintf("connect failed: %v", err))
		return
	}

	sub := marketdata.Subscription{}
	if wantTrades {
		sub.Trades = symbols
	}
	if wantQuotes {
		sub.Quotes = symbols
	}
	if wantCandles {
		sub.Candles = symbols
	}
	if err := s.provider.Subscribe(ctx, sub); err != nil {
		s.logger.Warnf("livestore: subscribe failed: %v", err)
		s.provider.Disconnect()
		s.setStatus(fmt.Sprintf("subscribe failed: %v", err))
		return
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.connected = true
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.drain(drainCtx, done)
}

// Disconnect stops the drain loop and disconnects the provider. Idempotent.
func (s *Store) Disconnect() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	wasConnected := s.connected
	s.connected = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.provider.Disconnect()
	if wasConnected {
		s.setStatus("disconnected")
	}
}

// drain consumes the provider's event channel until it closes or ctx is
// cancelled. It is the only writer of the per-symbol maps.
func (s *Store) drain(ctx context.Context, done chan struct{}) {
	defer close(done)
	events := s.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.apply(ev)
		}
	}
}

func (s *Store) apply(ev marketdata.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e := ev.(type) {
	case marketdata.StatusEvent:
		s.lastStatus = e.Message
	case marketdata.TradeEvent:
		s.trades[e.Trade.Symbol] = e.Trade
		s.track(e.Trade.Symbol, e.Trade.Price)
	case marketdata.QuoteEvent:
		s.quotes[e.Quote.Symbol] = e.Quote
		s.track(e.Quote.Symbol, e.Quote.Mid())
	case marketdata.CandleEvent:
		// bars refresh the aggregate view only; momentum is tick driven
		s.candles[e.Candle.Symbol] = e.Candle
	}
}

func (s *Store) track(symbol string, mid float64) {
	tr := s.trackers[symbol]
	if tr == nil {
		tr = &momentum.Tracker{}
		s.trackers[symbol] = tr
	}
	tr.Update(mid)
}

func (s *Store) setStatus(msg string) {
	s.mu.Lock()
	s.lastStatus = msg
	s.mu.Unlock()
}

// Momentum returns the current classification for the symbol. Symbols with no
// recorded price events are neutral.
func (s *Store) Momentum(symbol string) momentum.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr := s.trackers[symbol]
	if tr == nil {
		return momentum.Neutral
	}
	return tr.Signal()
}

// IsConnected reports whether ConnectAndSubscribe succeeded and Disconnect
// has not been called since.
func (s *Store) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastStatus returns the most recent status message, from either the provider
// or the store itself.
func (s *Store) LastStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatus
}

// LastTrade returns the most recent trade for the symbol.
func (s *Store) LastTrade(symbol string) (marketdata.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[symbol]
	return t, ok
}

// LastQuote returns the most recent quote for the symbol.
func (s *Store) LastQuote(symbol string) (marketdata.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// LastCandle returns the most recent candle for the symbol.
func (s *Store) LastCandle(symbol string) (marketdata.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candles[symbol]
	return c, ok
}

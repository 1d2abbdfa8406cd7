package alphavantage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotewatch/quotewatch-go/marketdata"
)

// mockClient scripts the vendor responses per symbol.
type mockClient struct {
	mu          sync.Mutex
	quoteCalls  []string
	candleCalls []string
	quoteErr    map[string]error
	candleErr   map[string]error
}

func newMockClient() *mockClient {
	return &mockClient{
		quoteErr:  map[string]error{},
		candleErr: map[string]error{},
	}
}

func (m *mockClient) LatestQuote(_ context.Context, symbol string) (*marketdata.Quote, error) {
	m.mu.Lock()
	m.quoteCalls = append(m.quoteCalls, symbol)
	err := m.quoteErr[symbol]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &marketdata.Quote{
		Symbol:   symbol,
		BidPrice: 100, BidSize: 1,
		AskPrice: 100.2, AskSize: 1,
		Timestamp: time.Now(),
	}, nil
}

func (m *mockClient) IntradayCandles(
	_ context.Context, symbol string, _ IntradayParams,
) ([]marketdata.Candle, error) {
	m.mu.Lock()
	m.candleCalls = append(m.candleCalls, symbol)
	err := m.candleErr[symbol]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []marketdata.Candle{{Symbol: symbol, Close: 200}}, nil
}

func (m *mockClient) DailyCandles(_ context.Context, _ string, _ OutputSize) ([]DailyCandle, error) {
	return nil, marketdata.ErrNoData
}

func (m *mockClient) polledQuotes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.quoteCalls...)
}

func (m *mockClient) polledCandles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.candleCalls...)
}

func newTestProvider(c Client) *Provider {
	return NewProvider(
		WithClient(c),
		WithCycle(time.Millisecond),
		WithFloor(time.Millisecond),
	)
}

// collect drains events from ch until the predicate says stop or the timeout
// elapses.
func collect(t *testing.T, ch <-chan marketdata.Event, enough func([]marketdata.Event) bool) []marketdata.Event {
	t.Helper()
	var events []marketdata.Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if enough(events) {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out, got %d events: %v", len(events), events)
		}
	}
}

func TestConnectRequiresCredential(t *testing.T) {
	p := newTestProvider(newMockClient())
	err := p.Connect(context.Background(), "")
	assert.ErrorIs(t, err, marketdata.ErrMissingCredential)

	require.NoError(t, p.Connect(context.Background(), "key"))
	p.Disconnect()
}

func TestSubscribeBeforeConnect(t *testing.T) {
	p := newTestProvider(newMockClient())
	err := p.Subscribe(context.Background(), marketdata.Subscription{Quotes: []string{"AAPL"}})
	assert.ErrorIs(t, err, marketdata.ErrInvalidRequest)
}

func TestConnectEmitsStatus(t *testing.T) {
	p := newTestProvider(newMockClient())
	require.NoError(t, p.Connect(context.Background(), "key"))
	defer p.Disconnect()

	ev := <-p.Events()
	status, ok := ev.(marketdata.StatusEvent)
	require.True(t, ok)
	assert.Contains(t, status.Message, "connected")
}

func TestPollingProducesQuotesAndCandles(t *testing.T) {
	mock := newMockClient()
	p := newTestProvider(mock)
	require.NoError(t, p.Connect(context.Background(), "key"))
	defer p.Disconnect()
	require.NoError(t, p.Subscribe(context.Background(), marketdata.Subscription{
		Quotes:  []string{"aapl", "msft"},
		Candles: []string{"AAPL"},
	}))

	collect(t, p.Events(), func(evs []marketdata.Event) bool {
		quotes, candles := 0, 0
		for _, ev := range evs {
			switch ev.(type) {
			case marketdata.QuoteEvent:
				quotes++
			case marketdata.CandleEvent:
				candles++
			}
		}
		return quotes >= 4 && candles >= 2
	})

	// round robin over the normalized quote set
	polled := mock.polledQuotes()
	require.GreaterOrEqual(t, len(polled), 4)
	assert.Equal(t, []string{"AAPL", "MSFT", "AAPL", "MSFT"}, polled[:4])
	// the candle cursor advances independently
	for _, sym := range mock.polledCandles() {
		assert.Equal(t, "AAPL", sym)
	}
}

func TestQuoteFallbackToIntradayClose(t *testing.T) {
	mock := newMockClient()
	mock.quoteErr["AAPL"] = marketdata.ErrNoData
	p := newTestProvider(mock)
	require.NoError(t, p.Connect(context.Background(), "key"))
	defer p.Disconnect()
	require.NoError(t, p.Subscribe(context.Background(), marketdata.Subscription{
		Quotes: []string{"AAPL"},
	}))

	events := collect(t, p.Events(), func(evs []marketdata.Event) bool {
		_, ok := evs[len(evs)-1].(marketdata.QuoteEvent)
		return ok
	})
	quote := events[len(events)-1].(marketdata.QuoteEvent).Quote
	// synthesized symmetrically around the 200 close, with zero sizes
	assert.InDelta(t, 199.8, quote.BidPrice, 1e-9)
	assert.InDelta(t, 200.2, quote.AskPrice, 1e-9)
	assert.True(t, quote.Synthetic())
}

func TestMalformedQuoteEmitsStatusAndContinues(t *testing.T) {
	mock := newMockClient()
	mock.quoteErr["BAD"] = marketdata.ErrMalformedResponse
	mock.candleErr["BAD"] = marketdata.ErrMalformedResponse
	p := newTestProvider(mock)
	require.NoError(t, p.Connect(context.Background(), "key"))
	defer p.Disconnect()
	require.NoError(t, p.Subscribe(context.Background(), marketdata.Subscription{
		Quotes: []string{"BAD", "GOOD"},
	}))

	collect(t, p.Events(), func(evs []marketdata.Event) bool {
		sawStatus, sawQuote := false, false
		for _, ev := range evs[1:] { // skip the connect status
			switch e := ev.(type) {
			case marketdata.StatusEvent:
				sawStatus = true
			case marketdata.QuoteEvent:
				sawQuote = sawQuote || e.Quote.Symbol == "GOOD"
			}
		}
		return sawStatus && sawQuote
	})
	// the loop kept scheduling requests after the failure
	assert.GreaterOrEqual(t, len(mock.polledQuotes()), 2)
}

func TestSubscribeReplacesSymbolSet(t *testing.T) {
	mock := newMockClient()
	p := newTestProvider(mock)
	require.NoError(t, p.Connect(context.Background(), "key"))
	defer p.Disconnect()

	require.NoError(t, p.Subscribe(context.Background(), marketdata.Subscription{
		Quotes: []string{"A", "B"},
	}))
	collect(t, p.Events(), func(evs []marketdata.Event) bool {
		quotes := 0
		for _, ev := range evs {
			if _, ok := ev.(marketdata.QuoteEvent); ok {
				quotes++
			}
		}
		return quotes >= 2
	})

	require.NoError(t, p.Subscribe(context.Background(), marketdata.Subscription{
		Quotes: []string{"C"},
	}))
	before := len(mock.polledQuotes())

	collect(t, p.Events(), func(evs []marketdata.Event) bool {
		for _, ev := range evs {
			if q, ok := ev.(marketdata.QuoteEvent); ok && q.Quote.Symbol == "C" {
				return true
			}
		}
		return false
	})
	// only C is refreshed after the replacement
	for _, sym := range mock.polledQuotes()[before:] {
		assert.Equal(t, "C", sym)
	}
}

func TestDisconnectStopsPolling(t *testing.T) {
	mock := newMockClient()
	p := newTestProvider(mock)
	require.NoError(t, p.Connect(context.Background(), "key"))
	require.NoError(t, p.Subscribe(context.Background(), marketdata.Subscription{
		Quotes: []string{"AAPL"},
	}))
	collect(t, p.Events(), func(evs []marketdata.Event) bool {
		_, ok := evs[len(evs)-1].(marketdata.QuoteEvent)
		return ok
	})

	p.Disconnect()
	after := len(mock.polledQuotes())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, len(mock.polledQuotes()))

	// a second disconnect is a no-op
	p.Disconnect()
}

func TestTradeCategoryDroppedSilently(t *testing.T) {
	mock := newMockClient()
	p := newTestProvider(mock)
	require.NoError(t, p.Connect(context.Background(), "key"))
	defer p.Disconnect()

	err := p.Subscribe(context.Background(), marketdata.Subscription{
		Trades: []string{"AAPL"},
	})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, mock.polledQuotes())
	assert.Empty(t, mock.polledCandles())
}

func TestEventsReturnsSameChannel(t *testing.T) {
	p := newTestProvider(newMockClient())
	assert.True(t, p.Events() == p.Events())
}

// Package stub provides a marketdata.Provider that produces no market data.
// It lets the rest of the system run without live credentials: every
// lifecycle operation is acknowledged with a status event only.
package stub

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/quotewatch/quotewatch-go/marketdata"
)

// Provider acknowledges connect and subscribe requests without ever emitting
// trades, quotes or candles.
type Provider struct {
	queue *marketdata.Queue

	mu        sync.Mutex
	connected bool
}

var _ marketdata.Provider = (*Provider)(nil)

// NewProvider returns a disconnected stub provider.
func NewProvider() *Provider {
	return &Provider{queue: marketdata.NewQueue()}
}

func (p *Provider) Connect(_ context.Context, apiKey string) error {
	if apiKey == "" {
		return marketdata.ErrMissingCredential
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}
	p.connected = true
	p.queue.Push(marketdata.StatusEvent{Message: "stub: connected, no live data will be produced"})
	return nil
}

func (p *Provider) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return
	}
	p.connected = false
	p.queue.Push(marketdata.StatusEvent{Message: "stub: disconnected"})
}

func (p *Provider) Subscribe(_ context.Context, sub marketdata.Subscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return marketdata.ErrInvalidRequest
	}
	sub = sub.Normalize()
	symbols := marketdata.NormalizeSymbols(append(append(append([]string{},
		sub.Trades...), sub.Quotes...), sub.Candles...))
	p.queue.Push(marketdata.StatusEvent{
		Message: fmt.Sprintf("stub: subscribed to %s", strings.Join(symbols, ", ")),
	})
	return nil
}

func (p *Provider) Events() <-chan marketdata.Event {
	return p.queue.C()
}

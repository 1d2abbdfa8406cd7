// Package stream provides a marketdata.Provider for sources with a push
// feed: a websocket connection carrying msgpack framed market messages.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quotewatch/quotewatch-go/marketdata"
)

var (
	// ErrNoConnected is returned when the server does not send the welcome
	// message after the dial.
	ErrNoConnected = errors.New("did not receive connected message")
	// ErrBadAuthResponse is returned when the server rejects the credential.
	ErrBadAuthResponse = errors.New("did not receive authenticated message")
)

var handshakeTimeout = 3 * time.Second

// Provider is a streaming marketdata.Provider. Connect dials the feed and
// performs the auth handshake; a reader goroutine then translates incoming
// frames into events until Disconnect or a read failure. The provider does
// not reconnect on its own: a lost connection surfaces as a status event and
// the consumer may connect again.
type Provider struct {
	logger  marketdata.Logger
	baseURL string
	queue   *marketdata.Queue

	connCreator func(ctx context.Context, u url.URL) (conn, error)

	mu        sync.Mutex
	connected bool
	closing   bool
	conn      conn
	done      chan struct{}
}

var _ marketdata.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for operational messages.
func WithLogger(logger marketdata.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// withConnCreator replaces the websocket dialer. Used in tests.
func withConnCreator(creator func(ctx context.Context, u url.URL) (conn, error)) Option {
	return func(p *Provider) { p.connCreator = creator }
}

// NewProvider returns a disconnected streaming provider for the feed at
// baseURL.
func NewProvider(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		logger:      marketdata.DefaultLogger(),
		baseURL:     baseURL,
		queue:       marketdata.NewQueue(),
		connCreator: newNhooyrWebsocketConn,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials the feed and authenticates. It fails with
// marketdata.ErrMissingCredential when apiKey is empty.
func (p *Provider) Connect(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return marketdata.ErrMissingCredential
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}

	u, err := p.constructURL()
	if err != nil {
		return err
	}
	c, err := p.connCreator(ctx, u)
	if err != nil {
		return fmt.Errorf("%w: %v", marketdata.ErrUpstreamUnavailable, err)
	}
	if err := p.handshake(ctx, c, apiKey); err != nil {
		c.close()
		return err
	}

	p.conn = c
	p.connected = true
	p.closing = false
	p.done = make(chan struct{})
	p.queue.Push(marketdata.StatusEvent{Message: "stream: connected to " + p.baseURL})
	go p.reader(c, p.done)
	go p.pinger(c, p.done)
	return nil
}

func (p *Provider) constructURL() (url.URL, error) {
	scheme := "wss"
	ub, err := url.Parse(p.baseURL)
	if err != nil {
		return url.URL{}, err
	}
	switch ub.Scheme {
	case "http", "ws":
		scheme = "ws"
	}
	return url.URL{Scheme: scheme, Host: ub.Host, Path: ub.Path}, nil
}

// handshake performs the initial flow:
//  1. wait to be welcomed
//  2. authenticate and wait for the response
func (p *Provider) handshake(ctx context.Context, c conn, apiKey string) error {
	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := readExpectedControl(hsCtx, c, "connected"); err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnected, err)
	}
	msg, err := authMessage(apiKey)
	if err != nil {
		return err
	}
	if err := c.writeMessage(hsCtx, msg); err != nil {
		return fmt.Errorf("%w: %v", marketdata.ErrUpstreamUnavailable, err)
	}
	if err := readExpectedControl(hsCtx, c, "authenticated"); err != nil {
		return fmt.Errorf("%w: %v", ErrBadAuthResponse, err)
	}
	return nil
}

func readExpectedControl(ctx context.Context, c conn, expected string) error {
	b, err := c.readMessage(ctx)
	if err != nil {
		return err
	}
	var resps []controlMessage
	if err := msgpack.Unmarshal(b, &resps); err != nil {
		return err
	}
	if len(resps) != 1 || resps[0].T != "success" || resps[0].Msg != expected {
		return fmt.Errorf("unexpected response: %+v", resps)
	}
	return nil
}

// Disconnect closes the connection and stops the reader. Idempotent.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	p.closing = true
	c, done := p.conn, p.done
	p.conn, p.done = nil, nil
	p.mu.Unlock()

	c.close()
	<-done
	p.queue.Push(marketdata.StatusEvent{Message: "stream: disconnected"})
}

// Subscribe replaces the subscription set on the feed. All three categories
// are supported.
func (p *Provider) Subscribe(ctx context.Context, sub marketdata.Subscription) error {
	p.mu.Lock()
	c := p.conn
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return marketdata.ErrInvalidRequest
	}

	msg, err := subscribeMessage(sub.Normalize())
	if err != nil {
		return err
	}
	if err := c.writeMessage(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", marketdata.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Events exposes the provider's output channel. The channel stays open for
// the provider's lifetime.
func (p *Provider) Events() <-chan marketdata.Event {
	return p.queue.C()
}

// reader pumps frames from the connection into the event queue until the
// connection fails or is closed by Disconnect.
func (p *Provider) reader(c conn, done chan struct{}) {
	defer close(done)
	for {
		b, err := c.readMessage(context.Background())
		if err != nil {
			p.mu.Lock()
			closing := p.closing
			p.connected = false
			p.mu.Unlock()
			if !closing {
				c.close()
				p.logger.Errorf("stream: reading from conn failed, error: %v", err)
				p.queue.Push(marketdata.StatusEvent{Message: "stream: connection lost"})
			}
			return
		}
		events, err := decodeMessages(b)
		if err != nil {
			p.logger.Warnf("stream: dropping frame: %v", err)
			p.queue.Push(marketdata.StatusEvent{Message: "stream: dropped an unreadable frame"})
			continue
		}
		for _, ev := range events {
			p.queue.Push(ev)
		}
	}
}

// pinger periodically pings the server to ensure the connection is alive.
// It stops when the reader finishes.
func (p *Provider) pinger(c conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(context.Background()); err != nil {
				p.logger.Warnf("stream: ping failed, error: %v", err)
				c.close()
				return
			}
		}
	}
}

package marketdata

import (
	"context"
	"sort"
	"strings"
)

// Provider is a live market data source.
//
// Connect must be called before Subscribe. Disconnect is idempotent and can be
// called in any state. Events returns the same channel handle on every call;
// the channel stays open for the provider's lifetime.
type Provider interface {
	// Connect establishes the connection to the source. It fails with
	// ErrMissingCredential when apiKey is empty. On success it emits a
	// StatusEvent describing the source.
	Connect(ctx context.Context, apiKey string) error
	// Disconnect stops any active polling or reading loop and emits a
	// StatusEvent. Calling it repeatedly or before Connect is harmless.
	Disconnect()
	// Subscribe replaces the provider's subscription set. Symbol sets are
	// normalized (uppercased, de-duplicated, sorted). A provider that cannot
	// serve a requested category drops that category silently.
	Subscribe(ctx context.Context, sub Subscription) error
	// Events exposes the provider's single long-lived output channel.
	Events() <-chan Event
}

// Subscription is the set of symbols wanted per category.
type Subscription struct {
	Trades  []string
	Quotes  []string
	Candles []string
}

// Normalize returns a copy of the subscription with every symbol set
// uppercased, de-duplicated and sorted.
func (s Subscription) Normalize() Subscription {
	return Subscription{
		Trades:  NormalizeSymbols(s.Trades),
		Quotes:  NormalizeSymbols(s.Quotes),
		Candles: NormalizeSymbols(s.Candles),
	}
}

// Empty reports whether no category has any symbols.
func (s Subscription) Empty() bool {
	return len(s.Trades) == 0 && len(s.Quotes) == 0 && len(s.Candles) == 0
}

// NormalizeSymbols uppercases, trims, de-duplicates and sorts symbols.
// It returns nil for an empty input.
func NormalizeSymbols(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

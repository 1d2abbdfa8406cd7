package stream

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quotewatch/quotewatch-go/marketdata"
)

// The wire protocol is a msgpack array of maps, each tagged with a "T" key:
// "t" trade, "q" quote, "b" bar, "s" status, plus the control tags "success",
// "error" and "subscription".

type tradeMessage struct {
	Symbol    string    `msgpack:"S"`
	Price     float64   `msgpack:"p"`
	Size      uint32    `msgpack:"s"`
	Timestamp time.Time `msgpack:"t"`
}

type quoteMessage struct {
	Symbol    string    `msgpack:"S"`
	BidPrice  float64   `msgpack:"bp"`
	BidSize   uint32    `msgpack:"bs"`
	AskPrice  float64   `msgpack:"ap"`
	AskSize   uint32    `msgpack:"as"`
	Timestamp time.Time `msgpack:"t"`
}

type barMessage struct {
	Symbol string    `msgpack:"S"`
	Open   float64   `msgpack:"o"`
	High   float64   `msgpack:"h"`
	Low    float64   `msgpack:"l"`
	Close  float64   `msgpack:"c"`
	Volume uint64    `msgpack:"v"`
	VWAP   float64   `msgpack:"vw"`
	Start  time.Time `msgpack:"ts"`
	End    time.Time `msgpack:"te"`
}

type controlMessage struct {
	T    string `msgpack:"T"`
	Msg  string `msgpack:"msg"`
	Code int    `msgpack:"code"`
}

// decodeMessages turns one websocket frame into market events. Unknown tags
// are skipped; a frame that is not a msgpack array fails as a whole.
func decodeMessages(b []byte) ([]marketdata.Event, error) {
	var raws []msgpack.RawMessage
	if err := msgpack.Unmarshal(b, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
	}

	events := make([]marketdata.Event, 0, len(raws))
	for _, raw := range raws {
		var tag controlMessage
		if err := msgpack.Unmarshal(raw, &tag); err != nil {
			return nil, fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
		}
		switch tag.T {
		case "t":
			var m tradeMessage
			if err := msgpack.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
			}
			events = append(events, marketdata.TradeEvent{Trade: marketdata.Trade(m)})
		case "q":
			var m quoteMessage
			if err := msgpack.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
			}
			events = append(events, marketdata.QuoteEvent{Quote: marketdata.Quote(m)})
		case "b":
			var m barMessage
			if err := msgpack.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
			}
			events = append(events, marketdata.CandleEvent{Candle: marketdata.Candle(m)})
		case "s":
			events = append(events, marketdata.StatusEvent{Message: tag.Msg})
		case "error":
			events = append(events, marketdata.StatusEvent{
				Message: fmt.Sprintf("stream: server error %d: %s", tag.Code, tag.Msg),
			})
		case "subscription":
			events = append(events, marketdata.StatusEvent{Message: "stream: subscription updated"})
		}
	}
	return events, nil
}

func authMessage(apiKey string) ([]byte, error) {
	return msgpack.Marshal(map[string]interface{}{
		"action": "auth",
		"key":    apiKey,
	})
}

func subscribeMessage(sub marketdata.Subscription) ([]byte, error) {
	return msgpack.Marshal(map[string]interface{}{
		"action":  "subscribe",
		"trades":  sub.Trades,
		"quotes":  sub.Quotes,
		"candles": sub.Candles,
	})
}

package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quotewatch/quotewatch-go/marketdata"
)

func frame(t *testing.T, msgs ...map[string]interface{}) []byte {
	t.Helper()
	b, err := msgpack.Marshal(msgs)
	require.NoError(t, err)
	return b
}

func TestDecodeDataFrame(t *testing.T) {
	ts := time.Date(2024, 1, 5, 19, 59, 59, 0, time.UTC)
	b := frame(t,
		map[string]interface{}{"T": "t", "S": "AAPL", "p": 190.0, "s": uint32(5), "t": ts},
		map[string]interface{}{"T": "q", "S": "AAPL", "bp": 189.9, "bs": uint32(1), "ap": 190.1, "as": uint32(2), "t": ts},
		map[string]interface{}{"T": "b", "S": "AAPL", "o": 189.0, "h": 190.5, "l": 188.9, "c": 190.0, "v": uint64(1000), "vw": 189.7, "ts": ts, "te": ts.Add(5 * time.Minute)},
		map[string]interface{}{"T": "s", "msg": "market open"},
	)

	events, err := decodeMessages(b)
	require.NoError(t, err)
	require.Len(t, events, 4)

	trade := events[0].(marketdata.TradeEvent).Trade
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, 190.0, trade.Price)
	assert.Equal(t, uint32(5), trade.Size)
	assert.True(t, trade.Timestamp.Equal(ts))

	quote := events[1].(marketdata.QuoteEvent).Quote
	assert.Equal(t, 189.9, quote.BidPrice)
	assert.Equal(t, uint32(2), quote.AskSize)

	candle := events[2].(marketdata.CandleEvent).Candle
	assert.Equal(t, 190.0, candle.Close)
	assert.Equal(t, uint64(1000), candle.Volume)
	assert.True(t, candle.End.Equal(ts.Add(5*time.Minute)))

	status := events[3].(marketdata.StatusEvent)
	assert.Equal(t, "market open", status.Message)
}

func TestDecodeServerError(t *testing.T) {
	b := frame(t, map[string]interface{}{"T": "error", "msg": "auth failed", "code": 402})
	events, err := decodeMessages(b)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].(marketdata.StatusEvent).Message, "auth failed")
}

func TestDecodeUnknownTagSkipped(t *testing.T) {
	b := frame(t,
		map[string]interface{}{"T": "x", "whatever": 1},
		map[string]interface{}{"T": "s", "msg": "still here"},
	)
	events, err := decodeMessages(b)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestDecodeGarbageFrame(t *testing.T) {
	_, err := decodeMessages([]byte{0xc1, 0x00, 0xff})
	assert.True(t, errors.Is(err, marketdata.ErrMalformedResponse))
}

func TestSubscribeMessageRoundTrip(t *testing.T) {
	b, err := subscribeMessage(marketdata.Subscription{
		Trades: []string{"AAPL"},
		Quotes: []string{"AAPL", "MSFT"},
	})
	require.NoError(t, err)

	var decoded struct {
		Action  string   `msgpack:"action"`
		Trades  []string `msgpack:"trades"`
		Quotes  []string `msgpack:"quotes"`
		Candles []string `msgpack:"candles"`
	}
	require.NoError(t, msgpack.Unmarshal(b, &decoded))
	assert.Equal(t, "subscribe", decoded.Action)
	assert.Equal(t, []string{"AAPL"}, decoded.Trades)
	assert.Equal(t, []string{"AAPL", "MSFT"}, decoded.Quotes)
	assert.Empty(t, decoded.Candles)
}

// Package alphavantage provides a REST client and a polling
// marketdata.Provider for the Alpha Vantage stock API.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/quotewatch/quotewatch-go/marketdata"
)

// Client is the low level Alpha Vantage REST client.
type Client interface {
	// LatestQuote returns the current bid/ask for the symbol. It returns
	// marketdata.ErrNoData when the endpoint answers with an empty result,
	// which is the normal behavior of non-premium keys.
	LatestQuote(ctx context.Context, symbol string) (*marketdata.Quote, error)
	// IntradayCandles returns the intraday bars for the symbol in ascending
	// time order.
	IntradayCandles(ctx context.Context, symbol string, params IntradayParams) ([]marketdata.Candle, error)
	// DailyCandles returns the daily bars for the symbol in ascending date order.
	DailyCandles(ctx context.Context, symbol string, outputSize OutputSize) ([]DailyCandle, error)
}

// ClientOpts contains options for the Alpha Vantage client.
type ClientOpts struct {
	// APIKey is the Alpha Vantage API key. Defaults to the
	// ALPHAVANTAGE_API_KEY environment variable.
	APIKey string
	// BaseURL defaults to the ALPHAVANTAGE_BASE_URL environment variable,
	// or the public endpoint.
	BaseURL    string
	Timeout    time.Duration
	RetryLimit int
	RetryDelay time.Duration
}

type client struct {
	opts ClientOpts

	do func(c *client, req *http.Request) (*http.Response, error)
}

// NewClient creates a new Alpha Vantage client using the given opts.
func NewClient(opts ClientOpts) Client {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("ALPHAVANTAGE_API_KEY")
	}
	if opts.BaseURL == "" {
		if s := os.Getenv("ALPHAVANTAGE_BASE_URL"); s != "" {
			opts.BaseURL = s
		} else {
			opts.BaseURL = "https://www.alphavantage.co"
		}
	}
	if opts.RetryLimit == 0 {
		opts.RetryLimit = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Second
	}
	return &client{
		opts: opts,

		do: defaultDo,
	}
}

func defaultDo(c *client, req *http.Request) (*http.Response, error) {
	httpClient := &http.Client{
		Timeout: c.opts.Timeout,
	}
	var resp *http.Response
	var err error
	for i := 0; ; i++ {
		resp, err = httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", marketdata.ErrUpstreamUnavailable, err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		if i >= c.opts.RetryLimit {
			break
		}
		resp.Body.Close()
		time.Sleep(c.opts.RetryDelay)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %s", marketdata.ErrUpstreamUnavailable, resp.Status)
	}
	return resp, nil
}

// get issues a query request with the given function specific parameters.
func (c *client) get(ctx context.Context, function string, params url.Values) ([]byte, error) {
	u, err := url.Parse(c.opts.BaseURL + "/query")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("function", function)
	q.Set("apikey", c.opts.APIKey)
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(c, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", marketdata.ErrUpstreamUnavailable, err)
	}
	return body, nil
}

// vendorTimestamp is the timestamp layout of the intraday series and the
// realtime quote entries.
const vendorTimestamp = "2006-01-02 15:04:05"

func (c *client) LatestQuote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	body, err := c.get(ctx, "REALTIME_BULK_QUOTES", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}
	if err := checkVendorError(body); err != nil {
		return nil, err
	}
	var resp bulkQuotesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
	}
	for _, entry := range resp.Data {
		if !strings.EqualFold(entry.Symbol, symbol) {
			continue
		}
		if entry.Bid <= 0 || entry.Ask <= 0 {
			break
		}
		ts, err := time.Parse(vendorTimestamp, entry.Timestamp)
		if err != nil {
			ts = time.Now()
		}
		return &marketdata.Quote{
			Symbol:    strings.ToUpper(symbol),
			BidPrice:  float64(entry.Bid),
			BidSize:   uint32(entry.BidSize),
			AskPrice:  float64(entry.Ask),
			AskSize:   uint32(entry.AskSize),
			Timestamp: ts,
		}, nil
	}
	return nil, fmt.Errorf("%w: no quote for %s", marketdata.ErrNoData, symbol)
}

// IntradayParams contains optional parameters for getting intraday candles.
type IntradayParams struct {
	// Interval is the bar resolution. Defaults to 5min.
	Interval marketdata.Interval
	// OutputSize defaults to Compact.
	OutputSize OutputSize
}

func (c *client) IntradayCandles(
	ctx context.Context, symbol string, params IntradayParams,
) ([]marketdata.Candle, error) {
	interval := params.Interval
	if interval == "" {
		interval = marketdata.FiveMin
	}
	outputSize := params.OutputSize
	if outputSize == "" {
		outputSize = Compact
	}
	body, err := c.get(ctx, "TIME_SERIES_INTRADAY", url.Values{
		"symbol":     {symbol},
		"interval":   {interval.String()},
		"outputsize": {outputSize},
	})
	if err != nil {
		return nil, err
	}
	series, err := extractTimeSeries(body)
	if err != nil {
		return nil, err
	}
	candles := make([]marketdata.Candle, 0, len(series))
	for ts, entry := range series {
		start, err := time.Parse(vendorTimestamp, ts)
		if err != nil {
			// skip rows with unparsable timestamps instead of failing the series
			continue
		}
		candles = append(candles, marketdata.Candle{
			Symbol: strings.ToUpper(symbol),
			Open:   float64(entry.Open),
			High:   float64(entry.High),
			Low:    float64(entry.Low),
			Close:  float64(entry.Close),
			Volume: uint64(entry.Volume),
			Start:  start,
			End:    start.Add(interval.Duration()),
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no intraday bars for %s", marketdata.ErrNoData, symbol)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Start.Before(candles[j].Start) })
	return candles, nil
}

// DailyCandle is one completed trading day of a symbol.
type DailyCandle struct {
	Symbol string
	Date   civil.Date
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume uint64
}

func (c *client) DailyCandles(
	ctx context.Context, symbol string, outputSize OutputSize,
) ([]DailyCandle, error) {
	if outputSize == "" {
		outputSize = Compact
	}
	body, err := c.get(ctx, "TIME_SERIES_DAILY", url.Values{
		"symbol":     {symbol},
		"outputsize": {outputSize},
	})
	if err != nil {
		return nil, err
	}
	series, err := extractTimeSeries(body)
	if err != nil {
		return nil, err
	}
	candles := make([]DailyCandle, 0, len(series))
	for ts, entry := range series {
		date, err := civil.ParseDate(ts)
		if err != nil {
			continue
		}
		candles = append(candles, DailyCandle{
			Symbol: strings.ToUpper(symbol),
			Date:   date,
			Open:   float64(entry.Open),
			High:   float64(entry.High),
			Low:    float64(entry.Low),
			Close:  float64(entry.Close),
			Volume: uint64(entry.Volume),
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no daily bars for %s", marketdata.ErrNoData, symbol)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })
	return candles, nil
}

// checkVendorError detects the error envelopes Alpha Vantage returns with a
// 200 status: "Error Message" for bad requests, "Note" and "Information" for
// throttled keys.
func checkVendorError(body []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
	}
	for _, key := range []string{"Error Message", "Note", "Information"} {
		if raw, ok := envelope[key]; ok {
			var msg string
			_ = json.Unmarshal(raw, &msg)
			return fmt.Errorf("%w: %s", marketdata.ErrNoData, msg)
		}
	}
	return nil
}

// extractTimeSeries finds the dynamically named "Time Series (...)" object of
// a time series payload.
func extractTimeSeries(body []byte) (map[string]timeSeriesEntry, error) {
	if err := checkVendorError(body); err != nil {
		return nil, err
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
	}
	for key, raw := range envelope {
		if !strings.HasPrefix(key, "Time Series") {
			continue
		}
		var series map[string]timeSeriesEntry
		if err := json.Unmarshal(raw, &series); err != nil {
			return nil, fmt.Errorf("%w: %v", marketdata.ErrMalformedResponse, err)
		}
		return series, nil
	}
	return nil, fmt.Errorf("%w: missing time series", marketdata.ErrNoData)
}

package alphavantage

import (
	"strings"

	"github.com/shopspring/decimal"
)

// OutputSize controls how much history the time series endpoints return.
type OutputSize = string

const (
	// Compact returns the latest 100 data points.
	Compact OutputSize = "compact"
	// Full returns the complete history.
	Full OutputSize = "full"
)

// number is a vendor numeric field. Alpha Vantage encodes most numbers as
// strings and occasionally omits them or sends placeholders like "-" or
// "None"; any value that does not parse becomes zero instead of failing the
// whole payload.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" || s == "-" || s == "None" {
		*n = 0
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		*n = 0
		return nil
	}
	f, _ := d.Float64()
	*n = number(f)
	return nil
}

// bulkQuotesResponse is the shape of function=REALTIME_BULK_QUOTES. The
// endpoint is premium tier only: free keys receive an empty data array.
type bulkQuotesResponse struct {
	Data []bulkQuoteEntry `json:"data"`
}

type bulkQuoteEntry struct {
	Symbol    string `json:"symbol"`
	Timestamp string `json:"timestamp"`
	Bid       number `json:"bid"`
	BidSize   number `json:"bid_size"`
	Ask       number `json:"ask"`
	AskSize   number `json:"ask_size"`
	Volume    number `json:"volume"`
}

// timeSeriesEntry is a single bar of the intraday and daily series, keyed by
// timestamp in the surrounding object.
type timeSeriesEntry struct {
	Open   number `json:"1. open"`
	High   number `json:"2. high"`
	Low    number `json:"3. low"`
	Close  number `json:"4. close"`
	Volume number `json:"5. volume"`
}

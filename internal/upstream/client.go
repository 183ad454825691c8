package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/kabu-tools/stockdata/internal/config"
	"github.com/kabu-tools/stockdata/internal/models"
)

// chartResponse is the subset of the provider's chart payload the
// collector consumes. Quote arrays use pointers because the provider
// emits null for samples with no trades.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol          string `json:"symbol"`
				DataGranularity string `json:"dataGranularity"`
				Timezone        string `json:"timezone"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Client fetches raw bars for one symbol from the market data provider and
// normalizes them into the canonical Bar shape. It performs exactly one
// logical fetch per call; retry policy is layered on top by RetryPolicy.
type Client struct {
	http *resty.Client
	log  *logrus.Logger
}

func NewClient(cfg config.UpstreamConfig, log *logrus.Logger) *Client {
	http := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent)

	return &Client{http: http, log: log}
}

// Fetch retrieves bars for symbol at the given interval over the lookback
// period. A successful call that carries zero samples returns (nil, nil):
// "no data" is not an error and must not be retried.
func (c *Client) Fetch(ctx context.Context, symbol, interval, period string) ([]models.Bar, error) {
	var out chartResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"interval":       interval,
			"range":          period,
			"includePrePost": "false",
		}).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("request failed for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("provider returned %s for %s", resp.Status(), symbol)
	}
	if out.Chart.Error != nil {
		return nil, fmt.Errorf("provider error for %s: %s - %s",
			symbol, out.Chart.Error.Code, out.Chart.Error.Description)
	}
	if len(out.Chart.Result) == 0 {
		c.log.WithField("symbol", symbol).Warn("No data returned by provider")
		return nil, nil
	}

	bars := normalize(symbol, interval, out)
	if len(bars) == 0 {
		c.log.WithField("symbol", symbol).Warn("No data returned by provider")
		return nil, nil
	}

	c.log.WithFields(logrus.Fields{
		"symbol": symbol,
		"rows":   len(bars),
	}).Info("Fetched bars from provider")

	return bars, nil
}

// normalize maps the provider's parallel arrays onto Bars, stamping symbol,
// interval and the ingestion time. Samples with a null price field are
// dropped; a null volume becomes zero.
func normalize(symbol, interval string, out chartResponse) []models.Bar {
	result := out.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]
	now := time.Now().UTC()

	bars := make([]models.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			break
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}
		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = int64(*quote.Volume[i])
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Interval:  interval,
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *quote.Open[i],
			High:      *quote.High[i],
			Low:       *quote.Low[i],
			Close:     *quote.Close[i],
			Volume:    volume,
			CreatedAt: now,
		})
	}
	return bars
}

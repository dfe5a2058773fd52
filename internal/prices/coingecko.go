package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptoalerts/internal/logger"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// ErrRateLimited is returned when the upstream answers 429. Callers treat
// it as a transient whole-pass failure, never as "no prices".
var ErrRateLimited = errors.New("price source rate limit exceeded")

// Client fetches spot prices from the CoinGecko simple price API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a price client. An empty baseURL selects the public
// CoinGecko endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: baseURL,
	}
}

// SimplePrices fetches current USD spot prices for the given symbols in a
// single batched call. Symbols are lowercased and deduplicated by the
// caller. A symbol absent from the response means its price is unavailable
// this round; it is simply missing from the returned map.
func (c *Client) SimplePrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		c.baseURL, url.QueryEscape(strings.Join(symbols, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("price source returned status %d: %s", resp.StatusCode, string(body))
	}

	// Response shape: { "bitcoin": { "usd": 50000.12 }, ... }
	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}

	result := make(map[string]float64, len(payload))
	for symbol, quotes := range payload {
		usd, ok := quotes["usd"]
		if !ok {
			logger.Log.Warn("Price response missing usd quote",
				zap.String("symbol", symbol),
			)
			continue
		}
		result[strings.ToLower(symbol)] = usd
	}

	return result, nil
}

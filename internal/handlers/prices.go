package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"cryptoalerts/internal/cache"
	"cryptoalerts/internal/logger"
	"cryptoalerts/internal/prices"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type priceResponse struct {
	Symbol string  `json:"symbol"`
	USD    float64 `json:"usd"`
	Source string  `json:"source"` // "stream" or "upstream"
}

// PricesHandler serves the latest known spot price for a symbol, preferring
// the streamed cache over a live upstream lookup.
type PricesHandler struct {
	client *prices.Client
}

func NewPricesHandler(client *prices.Client) *PricesHandler {
	return &PricesHandler{client: client}
}

func (h *PricesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// URL pattern: /prices/{symbol}
	symbol := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/prices/"))
	if symbol == "" || strings.Contains(symbol, "/") {
		writeJSONError(w, http.StatusBadRequest, "Symbol is required")
		return
	}

	ctx := r.Context()
	tracer := otel.Tracer("crypto-alerts")
	ctx, span := tracer.Start(ctx, "PricesHandler")
	defer span.End()

	price, ok, err := cache.LatestPrice(ctx, symbol)
	if err != nil {
		logger.Log.Warn("Failed to read cached price",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}
	if ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(priceResponse{Symbol: symbol, USD: price, Source: "stream"})
		return
	}

	quotes, err := h.client.SimplePrices(ctx, []string{symbol})
	if err != nil {
		if errors.Is(err, prices.ErrRateLimited) {
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		logger.Log.Error("Failed to fetch price",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusBadGateway, "Failed to fetch price")
		return
	}

	usd, ok := quotes[symbol]
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Unknown symbol")
		return
	}

	if err := cache.SetLatestPrice(ctx, symbol, usd, 30*time.Second); err != nil {
		logger.Log.Warn("Failed to cache price",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(priceResponse{Symbol: symbol, USD: usd, Source: "upstream"})
}

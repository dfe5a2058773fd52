package main

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"cryptoalerts/internal/cache"
	"cryptoalerts/internal/config"
	"cryptoalerts/internal/handlers"
	"cryptoalerts/internal/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// How long a streamed spot price stays servable before it is considered
// stale and the dashboard falls back to an upstream lookup.
const latestPriceTTL = 2 * time.Minute

// Price update structure (from Kafka)
type PriceUpdate struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

func main() {
	config.Load()
	logger.InitLogger()
	defer logger.Sync()

	cache.InitRedis(config.Getenv("REDIS_ADDR", "localhost:6379"))

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": config.Getenv("KAFKA_BROKER", "localhost:9094"),
		"group.id":          "price-processing-group",
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		logger.Log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Subscribe("price.updates", nil); err != nil {
		logger.Log.Fatal("Failed to subscribe to Kafka topic", zap.Error(err))
	}

	logger.Log.Info("Listening for price updates")

	for {
		msg, err := consumer.ReadMessage(-1)
		if err != nil {
			logger.Log.Error("Kafka consumer error", zap.Error(err))
			continue
		}

		var priceUpdate PriceUpdate
		if err := json.Unmarshal(msg.Value, &priceUpdate); err != nil {
			logger.Log.Error("Error parsing price update", zap.Error(err))
			continue
		}

		processPriceUpdate(priceUpdate)
	}
}

// processPriceUpdate stores the latest spot price and fans the tick out to
// the dashboard stream.
func processPriceUpdate(priceUpdate PriceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	symbol := baseSymbol(priceUpdate.Symbol)

	if err := cache.SetLatestPrice(ctx, symbol, priceUpdate.Price, latestPriceTTL); err != nil {
		logger.Log.Error("Failed to cache latest price",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	handlers.BroadcastTick(handlers.TickMessage{
		Exchange:  priceUpdate.Exchange,
		Symbol:    symbol,
		Price:     priceUpdate.Price,
		Timestamp: priceUpdate.Timestamp,
	})
}

// baseSymbol maps an exchange product id like "BTC-USD" to the lowercase
// asset symbol used everywhere else.
func baseSymbol(productID string) string {
	base, _, _ := strings.Cut(productID, "-")
	return strings.ToLower(base)
}

package main

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"cryptoalerts/internal/config"
	"cryptoalerts/internal/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Coinbase WebSocket feed for live trades
const coinbaseWS = "wss://ws-feed.exchange.coinbase.com"

const kafkaTopic = "price.updates"

// Coinbase WebSocket message format
type SubscriptionMessage struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// Trade message structure from Coinbase
type TradeMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Time      string `json:"time"`
}

// Standardized price update format
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

	broker := config.Getenv("KAFKA_BROKER", "localhost:9094")
	products := strings.Split(config.Getenv("INGEST_PRODUCTS", "BTC-USD,ETH-USD"), ",")

	producer, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": broker})
	if err != nil {
		logger.Log.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	for {
		conn := connectWebSocket()

		subscribe := SubscriptionMessage{
			Type:       "subscribe",
			ProductIDs: products,
			Channels:   []string{"matches"},
		}
		if err := conn.WriteJSON(subscribe); err != nil {
			logger.Log.Error("Subscription failed", zap.Error(err))
			conn.Close()
			continue
		}

		logger.Log.Info("Subscribed to trade feed", zap.Strings("products", products))

		readTrades(conn, producer)
		conn.Close()
	}
}

// readTrades pumps trade messages into Kafka until the connection drops.
func readTrades(conn *websocket.Conn, producer *kafka.Producer) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			logger.Log.Error("WebSocket error", zap.Error(err))
			return
		}

		var trade TradeMessage
		if err := json.Unmarshal(message, &trade); err != nil {
			logger.Log.Error("Error parsing message", zap.Error(err))
			continue
		}

		// Only "match" messages are completed trades
		if trade.Type != "match" {
			continue
		}

		price, err := strconv.ParseFloat(trade.Price, 64)
		if err != nil {
			logger.Log.Error("Error parsing trade price",
				zap.String("price", trade.Price),
				zap.Error(err),
			)
			continue
		}

		update := PriceUpdate{
			Exchange:  "coinbase",
			Symbol:    trade.ProductID,
			Price:     price,
			Timestamp: trade.Time,
		}

		publishToKafka(producer, update)
	}
}

// Publish message to Kafka
func publishToKafka(producer *kafka.Producer, priceData PriceUpdate) {
	value, err := json.Marshal(priceData)
	if err != nil {
		logger.Log.Error("Error marshaling price update", zap.Error(err))
		return
	}

	topic := kafkaTopic
	err = producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          value,
	}, nil)

	if err != nil {
		logger.Log.Error("Error producing Kafka message", zap.Error(err))
	}
}

// Connect to Coinbase WebSocket with exponential backoff
func connectWebSocket() *websocket.Conn {
	backoff := 1 * time.Second

	for {
		logger.Log.Info("Connecting to Coinbase WebSocket...")
		c, _, err := websocket.DefaultDialer.Dial(coinbaseWS, nil)
		if err != nil {
			logger.Log.Warn("WebSocket connection failed, retrying",
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		logger.Log.Info("Connected to Coinbase WebSocket")
		return c
	}
}

// handlers/sse.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cryptoalerts/internal/cache"
	"cryptoalerts/internal/evaluator"
	"cryptoalerts/internal/logger"

	"go.uber.org/zap"
)

// PriceTicksChannel is the Redis pub/sub channel carrying live market
// ticks from the ingestion pipeline.
const PriceTicksChannel = "price_ticks"

// TickMessage is a live market price update streamed to dashboard clients.
type TickMessage struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// StreamEvent is one server-sent event: either a triggered alert, a price
// tick, or a bare heartbeat.
type StreamEvent struct {
	Kind      string          `json:"kind"` // "alert_trigger", "price_tick" or "heartbeat"
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// SSE Clients
var (
	clients = make(map[chan StreamEvent]bool)
	mu      sync.Mutex
)

var streamSubscriber *cache.RedisSubscriber

// InitSSE subscribes to the trigger and tick channels and starts the
// fanout loop.
func InitSSE() {
	var err error
	streamSubscriber, err = cache.NewRedisSubscriber(evaluator.TriggersChannel, PriceTicksChannel)
	if err != nil {
		logger.Log.Error("Failed to create Redis subscriber", zap.Error(err))
		return
	}

	go listenForEvents()
}

// listenForEvents continuously relays published events to connected clients
func listenForEvents() {
	logger.Log.Info("Starting to listen for stream events from Redis")

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		msg, err := streamSubscriber.ReceiveMessage(ctx)
		cancel()

		if err != nil {
			logger.Log.Error("Error receiving message from Redis", zap.Error(err))
			time.Sleep(1 * time.Second) // Wait before retry
			continue
		}

		kind := "price_tick"
		if msg.Channel == evaluator.TriggersChannel {
			kind = "alert_trigger"
		}

		event := StreamEvent{
			Kind:      kind,
			Payload:   json.RawMessage(msg.Payload),
			Timestamp: time.Now().Format(time.RFC3339),
		}

		logger.Log.Info("Received stream event from Redis",
			zap.String("channel", msg.Channel),
			zap.String("kind", kind))

		broadcastToClients(event)
	}
}

// StreamAlertsHandler handles SSE connections
func StreamAlertsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientChan := make(chan StreamEvent, 10)

	mu.Lock()
	clients[clientChan] = true
	clientCount := len(clients)
	mu.Unlock()

	logger.Log.Info("New SSE client connected", zap.Int("total_clients", clientCount))

	defer func() {
		mu.Lock()
		delete(clients, clientChan)
		clientCount := len(clients)
		mu.Unlock()
		close(clientChan)
		logger.Log.Info("SSE client disconnected", zap.Int("total_clients", clientCount))
	}()

	// Send heartbeats to keep connection alive
	go func() {
		heartbeatTicker := time.NewTicker(15 * time.Second)
		defer heartbeatTicker.Stop()

		for {
			select {
			case <-heartbeatTicker.C:
				select {
				case clientChan <- StreamEvent{Kind: "heartbeat", Timestamp: time.Now().Format(time.RFC3339)}:
					// Heartbeat sent successfully
				default:
					// Channel is blocked or closed, exit goroutine
					return
				}
			case <-r.Context().Done():
				// Request context done, exit goroutine
				return
			}
		}
	}()

	// Stream events to client
	for event := range clientChan {
		eventData, err := json.Marshal(event)
		if err != nil {
			logger.Log.Error("Failed to marshal stream event", zap.Error(err))
			continue
		}

		fmt.Fprintf(w, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

// broadcastToClients sends an event to all connected SSE clients
func broadcastToClients(event StreamEvent) {
	mu.Lock()
	defer mu.Unlock()

	if len(clients) == 0 {
		return
	}

	logger.Log.Info("Broadcasting event to clients",
		zap.Int("client_count", len(clients)),
		zap.String("kind", event.Kind))

	for clientChan := range clients {
		select {
		case clientChan <- event:
			// Event sent successfully
		default:
			logger.Log.Warn("Event dropped due to slow client")
		}
	}
}

// BroadcastTick publishes a live price tick to Redis for distribution to
// every web server instance.
func BroadcastTick(tick TickMessage) {
	tickJSON, err := json.Marshal(tick)
	if err != nil {
		logger.Log.Error("Failed to marshal tick", zap.Error(err))
		return
	}

	if err := cache.PublishMessage(PriceTicksChannel, string(tickJSON)); err != nil {
		logger.Log.Error("Failed to publish tick to Redis",
			zap.String("symbol", tick.Symbol),
			zap.Error(err),
		)
	}
}

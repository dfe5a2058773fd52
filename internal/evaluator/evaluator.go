package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cryptoalerts/internal/logger"
	"cryptoalerts/internal/models"
	"cryptoalerts/internal/notifier"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TriggersChannel is the Redis pub/sub channel carrying trigger events to
// the SSE fanout.
const TriggersChannel = "alert_triggers"

var (
	passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_passes_total",
			Help: "Total number of alert evaluation passes by outcome",
		},
		[]string{"status"},
	)
	alertsTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_triggered_total",
			Help: "Total number of alerts triggered",
		},
	)
)

func init() {
	prometheus.MustRegister(passesTotal)
	prometheus.MustRegister(alertsTriggeredTotal)
}

// AlertStore is the slice of the database layer the evaluator touches.
type AlertStore interface {
	PendingAlerts(ctx context.Context) ([]*models.PriceAlert, error)
	MarkTriggered(ctx context.Context, ids []string, triggeredAt time.Time) (int64, error)
}

// PriceSource returns current USD spot prices for a batch of symbols.
type PriceSource interface {
	SimplePrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Notifier dispatches a triggered-alert email.
type Notifier interface {
	SendAlertEmail(ctx context.Context, email notifier.AlertEmail) error
}

// PublishFunc publishes a payload to a pub/sub channel. Wired to the Redis
// publisher in production; nil disables fanout.
type PublishFunc func(channel, payload string) error

// TriggerEvent is the fanout message emitted for each triggered alert.
type TriggerEvent struct {
	AlertID        string  `json:"alert_id"`
	UserID         string  `json:"user_id"`
	Cryptocurrency string  `json:"cryptocurrency"`
	Condition      string  `json:"condition"`
	TargetPrice    float64 `json:"target_price"`
	CurrentPrice   float64 `json:"current_price"`
	Timestamp      string  `json:"timestamp"`
}

// Result summarizes one evaluation pass.
type Result struct {
	Checked   int                  `json:"checked"`
	Triggered []*models.PriceAlert `json:"triggered"`
}

// Message renders the human-readable pass summary.
func (r *Result) Message() string {
	if r.Checked == 0 {
		return "No active alerts"
	}
	return fmt.Sprintf("Checked %d alerts, %d triggered", r.Checked, len(r.Triggered))
}

// Evaluator runs evaluation passes over pending price alerts. It is
// stateless between passes; a single Evaluator may be shared by the
// HTTP trigger and the internal scheduler loop.
type Evaluator struct {
	store    AlertStore
	prices   PriceSource
	notifier Notifier
	publish  PublishFunc
}

// New builds an Evaluator. publish may be nil to disable pub/sub fanout.
func New(store AlertStore, prices PriceSource, n Notifier, publish PublishFunc) *Evaluator {
	return &Evaluator{
		store:    store,
		prices:   prices,
		notifier: n,
		publish:  publish,
	}
}

// RunPass performs one evaluation pass: read pending alerts, batch-fetch
// prices for the distinct symbol set, evaluate each condition, dispatch
// best-effort notifications, and mark the triggered set inactive in one
// conditional batched update.
//
// Store or price-source failures abort the pass before any write; a failed
// batched update is returned as an error even though notifications may
// already be in flight, since notification delivery is not part of the
// trigger invariant.
func (e *Evaluator) RunPass(ctx context.Context) (*Result, error) {
	tracer := otel.Tracer("crypto-alerts")
	ctx, span := tracer.Start(ctx, "RunPass")
	defer span.End()

	alerts, err := e.store.PendingAlerts(ctx)
	if err != nil {
		passesTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("failed to fetch pending alerts: %w", err)
	}

	if len(alerts) == 0 {
		passesTotal.WithLabelValues("ok").Inc()
		return &Result{}, nil
	}

	symbols := distinctSymbols(alerts)
	span.SetAttributes(
		attribute.Int("alerts.pending", len(alerts)),
		attribute.Int("alerts.symbols", len(symbols)),
	)

	priceMap, err := e.prices.SimplePrices(ctx, symbols)
	if err != nil {
		passesTotal.WithLabelValues("price_error").Inc()
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	var triggered []*models.PriceAlert
	currentPrices := make(map[string]float64)
	for _, alert := range alerts {
		price, ok := priceMap[alert.Symbol()]
		if !ok {
			// No quote this round; the alert stays pending.
			logger.Log.Debug("Price unavailable, skipping alert",
				zap.String("alert_id", alert.ID),
				zap.String("symbol", alert.Symbol()),
			)
			continue
		}
		if alert.ShouldTrigger(price) {
			triggered = append(triggered, alert)
			currentPrices[alert.ID] = price
		}
	}

	result := &Result{Checked: len(alerts), Triggered: triggered}
	if len(triggered) == 0 {
		passesTotal.WithLabelValues("ok").Inc()
		return result, nil
	}

	// Notifications are independent of each other and of the state update;
	// they run concurrently and failures are logged, not propagated.
	var wg sync.WaitGroup
	for _, alert := range triggered {
		e.broadcastTrigger(alert, currentPrices[alert.ID])

		if !alert.EmailNotification || alert.Email == "" {
			continue
		}
		wg.Add(1)
		go func(alert *models.PriceAlert, price float64) {
			defer wg.Done()
			err := e.notifier.SendAlertEmail(ctx, notifier.AlertEmail{
				To:             []string{alert.Email},
				Cryptocurrency: alert.Cryptocurrency,
				Condition:      alert.Condition,
				TargetPrice:    alert.TargetPrice,
				CurrentPrice:   price,
			})
			if err != nil {
				logger.Log.Error("Failed to send alert notification",
					zap.String("alert_id", alert.ID),
					zap.String("user_id", alert.UserID),
					zap.Error(err),
				)
			}
		}(alert, currentPrices[alert.ID])
	}

	ids := make([]string, len(triggered))
	for i, alert := range triggered {
		ids[i] = alert.ID
	}

	updated, updateErr := e.store.MarkTriggered(ctx, ids, time.Now().UTC())
	wg.Wait()

	if updateErr != nil {
		passesTotal.WithLabelValues("update_error").Inc()
		return nil, fmt.Errorf("failed to mark alerts triggered: %w", updateErr)
	}

	if updated < int64(len(ids)) {
		// A concurrent pass won the conditional update for some rows.
		logger.Log.Warn("Some alerts were already triggered by another pass",
			zap.Int("evaluated", len(ids)),
			zap.Int64("updated", updated),
		)
	}

	passesTotal.WithLabelValues("ok").Inc()
	alertsTriggeredTotal.Add(float64(len(triggered)))
	logger.Log.Info("Alert pass completed",
		zap.Int("checked", result.Checked),
		zap.Int("triggered", len(triggered)),
		zap.Strings("triggered_ids", ids),
	)

	return result, nil
}

func (e *Evaluator) broadcastTrigger(alert *models.PriceAlert, price float64) {
	if e.publish == nil {
		return
	}

	event := TriggerEvent{
		AlertID:        alert.ID,
		UserID:         alert.UserID,
		Cryptocurrency: alert.Cryptocurrency,
		Condition:      alert.Condition,
		TargetPrice:    alert.TargetPrice,
		CurrentPrice:   price,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("Failed to marshal trigger event", zap.Error(err))
		return
	}

	if err := e.publish(TriggersChannel, string(payload)); err != nil {
		logger.Log.Error("Failed to publish trigger event",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}

// distinctSymbols returns the deduplicated lowercase symbol set across the
// given alerts, in first-seen order.
func distinctSymbols(alerts []*models.PriceAlert) []string {
	seen := make(map[string]bool, len(alerts))
	var symbols []string
	for _, alert := range alerts {
		s := alert.Symbol()
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	return symbols
}

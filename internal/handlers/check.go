package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"cryptoalerts/internal/evaluator"
	"cryptoalerts/internal/logger"
	"cryptoalerts/internal/models"

	"github.com/go-redis/redis_rate/v10"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Permissive headers because the trigger may be called from a browser-based
// scheduler or admin tool.
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
}

type errorResponse struct {
	Error string `json:"error"`
}

type checkResponse struct {
	Message         string      `json:"message"`
	TriggeredAlerts interface{} `json:"triggeredAlerts"`
}

// PassRunner runs one alert evaluation pass.
type PassRunner interface {
	RunPass(ctx context.Context) (*evaluator.Result, error)
}

// CheckHandler exposes the evaluation pass as an HTTP trigger.
type CheckHandler struct {
	eval    PassRunner
	limiter *redis_rate.Limiter
}

// NewCheckHandler builds the trigger handler. limiter may be nil to
// disable per-client rate limiting.
func NewCheckHandler(eval PassRunner, limiter *redis_rate.Limiter) *CheckHandler {
	return &CheckHandler{eval: eval, limiter: limiter}
}

func (h *CheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx := r.Context()
	tracer := otel.Tracer("crypto-alerts")
	ctx, span := tracer.Start(ctx, "CheckAlertsHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	if h.limiter != nil {
		res, err := h.limiter.Allow(ctx, "check_alerts:"+clientIP(r), redis_rate.PerMinute(10))
		if err != nil {
			// Limiter outage must not take the pipeline down with it.
			logger.Log.Warn("Rate limiter unavailable, allowing request",
				zap.String("trace_id", traceID),
				zap.Error(err),
			)
		} else if res.Allowed == 0 {
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
	}

	result, err := h.eval.RunPass(ctx)
	if err != nil {
		logger.Log.Error("Alert evaluation pass failed",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Marshal an empty list rather than null when nothing triggered.
	triggered := result.Triggered
	if triggered == nil {
		triggered = []*models.PriceAlert{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(checkResponse{
		Message:         result.Message(),
		TriggeredAlerts: triggered,
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"cryptoalerts/internal/cache"
	"cryptoalerts/internal/database"
	"cryptoalerts/internal/logger"
	"cryptoalerts/internal/models"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type CreateAlertRequest struct {
	UserID            string  `json:"user_id"`
	Cryptocurrency    string  `json:"cryptocurrency"`
	TargetPrice       float64 `json:"target_price"`
	Condition         string  `json:"condition"`
	EmailNotification *bool   `json:"email_notification,omitempty"`
}

// AlertsHandler routes all alert CRUD operations. The evaluation trigger
// lives in CheckHandler, not here.
type AlertsHandler struct {
	store    *database.Store
	instance string
}

func NewAlertsHandler(store *database.Store, instance string) *AlertsHandler {
	return &AlertsHandler{store: store, instance: instance}
}

func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// URL pattern: /alerts or /alerts/{id}
	pathParts := strings.Split(r.URL.Path, "/")

	// Root alerts endpoint
	if len(pathParts) <= 2 || pathParts[2] == "" {
		switch r.Method {
		case http.MethodGet:
			h.browseAlerts(w, r)
		case http.MethodPost:
			h.createAlert(w, r)
		case http.MethodDelete:
			h.deactivateUserAlerts(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	alertID := pathParts[2]

	switch r.Method {
	case http.MethodGet:
		h.getAlert(w, r, alertID)
	case http.MethodDelete:
		h.deleteAlert(w, r, alertID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// browseAlerts lists alerts, optionally filtered by user_id
func (h *AlertsHandler) browseAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("crypto-alerts")
	ctx, span := tracer.Start(ctx, "BrowseAlertsHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()
	cacheKey := generateCacheKey(r, "browse_alerts_")

	cached, err := cache.GetCache(ctx, cacheKey, "/alerts", h.instance)
	if err == nil && cached != "" {
		logger.Log.Info("Cache hit for /alerts",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cached))
		return
	}

	logger.Log.Info("Cache miss for /alerts, processing request",
		zap.String("trace_id", traceID),
		zap.String("cache_key", cacheKey),
	)

	userID := r.URL.Query().Get("user_id")

	var alerts []*models.PriceAlert
	var dbErr error

	if userID != "" {
		alerts, dbErr = h.store.AlertsByUserID(ctx, userID)
	} else {
		alerts, dbErr = h.store.AllAlerts(ctx)
	}

	if dbErr != nil {
		logger.Log.Error("Failed to fetch alerts",
			zap.String("trace_id", traceID),
			zap.Error(dbErr),
		)
		http.Error(w, "Failed to fetch alerts", http.StatusInternalServerError)
		return
	}

	response := Response{
		Message: "Alerts retrieved successfully",
		Data:    alerts,
	}

	respBytes, err := json.Marshal(response)
	if err != nil {
		logger.Log.Error("Failed to encode JSON response",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
		return
	}

	if cacheErr := cache.SetCache(ctx, cacheKey, string(respBytes), 30*time.Second, "/alerts", h.instance); cacheErr != nil {
		logger.Log.Warn("Failed to store response in cache",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
			zap.Error(cacheErr),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBytes)
}

// createAlert handles creating a new price alert
func (h *AlertsHandler) createAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("crypto-alerts")
	ctx, span := tracer.Start(ctx, "CreateAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Validation
	if req.UserID == "" || req.Cryptocurrency == "" {
		http.Error(w, "Missing required fields: user_id, cryptocurrency", http.StatusBadRequest)
		return
	}

	if req.TargetPrice <= 0 {
		http.Error(w, "target_price must be positive", http.StatusBadRequest)
		return
	}

	if !models.ValidCondition(req.Condition) {
		http.Error(w, "condition must be \"above\" or \"below\"", http.StatusBadRequest)
		return
	}

	emailNotification := true
	if req.EmailNotification != nil {
		emailNotification = *req.EmailNotification
	}

	now := time.Now()
	alert := &models.PriceAlert{
		ID:                uuid.New().String(),
		UserID:            req.UserID,
		Cryptocurrency:    req.Cryptocurrency,
		TargetPrice:       req.TargetPrice,
		Condition:         req.Condition,
		IsActive:          true,
		EmailNotification: emailNotification,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := h.store.CreateAlert(ctx, alert); err != nil {
		logger.Log.Error("Failed to create alert",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Failed to create alert", http.StatusInternalServerError)
		return
	}

	// Invalidate cache for browse alerts
	cache.InvalidateByPrefix(ctx, "browse_alerts_", "/alerts", h.instance)

	response := Response{
		Message: "Alert created successfully",
		Data:    alert,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// getAlert retrieves a specific alert by ID
func (h *AlertsHandler) getAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	ctx := r.Context()
	tracer := otel.Tracer("crypto-alerts")
	ctx, span := tracer.Start(ctx, "GetAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	alert, err := h.store.AlertByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			http.Error(w, "Alert not found", http.StatusNotFound)
			return
		}
		logger.Log.Error("Failed to fetch alert",
			zap.String("trace_id", traceID),
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		http.Error(w, "Failed to fetch alert", http.StatusInternalServerError)
		return
	}

	response := Response{
		Message: "Alert retrieved successfully",
		Data:    alert,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// deleteAlert deletes an alert
func (h *AlertsHandler) deleteAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	ctx := r.Context()
	tracer := otel.Tracer("crypto-alerts")
	ctx, span := tracer.Start(ctx, "DeleteAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	if err := h.store.DeleteAlert(ctx, alertID); err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			http.Error(w, "Alert not found", http.StatusNotFound)
			return
		}
		logger.Log.Error("Failed to delete alert",
			zap.String("trace_id", traceID),
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		http.Error(w, "Failed to delete alert", http.StatusInternalServerError)
		return
	}

	// Invalidate cache for browse alerts
	cache.InvalidateByPrefix(ctx, "browse_alerts_", "/alerts", h.instance)

	response := Response{
		Message: "Alert deleted successfully",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// deactivateUserAlerts bulk-deactivates every active alert a user owns.
// This is the hook the subscription-cancellation flow calls when an
// account lapses.
func (h *AlertsHandler) deactivateUserAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("crypto-alerts")
	ctx, span := tracer.Start(ctx, "DeactivateUserAlertsHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "Missing required query parameter: user_id", http.StatusBadRequest)
		return
	}

	deactivated, err := h.store.DeactivateAlertsForUser(ctx, userID)
	if err != nil {
		logger.Log.Error("Failed to deactivate alerts",
			zap.String("trace_id", traceID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		http.Error(w, "Failed to deactivate alerts", http.StatusInternalServerError)
		return
	}

	cache.InvalidateByPrefix(ctx, "browse_alerts_", "/alerts", h.instance)

	logger.Log.Info("Deactivated alerts for user",
		zap.String("trace_id", traceID),
		zap.String("user_id", userID),
		zap.Int64("deactivated", deactivated),
	)

	response := Response{
		Message: fmt.Sprintf("Deactivated %d alerts", deactivated),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func generateCacheKey(r *http.Request, prefix string) string {
	queryParams := r.URL.Query()
	var keys []string
	for k := range queryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var queryString []string
	for _, k := range keys {
		queryString = append(queryString, fmt.Sprintf("%s=%s", k, strings.Join(queryParams[k], ",")))
	}
	joinedParams := strings.Join(queryString, "&")

	hash := sha256.Sum256([]byte(joinedParams))
	return prefix + hex.EncodeToString(hash[:8])
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cryptoalerts/internal/evaluator"
	"cryptoalerts/internal/logger"
	"cryptoalerts/internal/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger()
	m.Run()
}

type fakeRunner struct {
	result *evaluator.Result
	err    error
	calls  int
}

func (f *fakeRunner) RunPass(ctx context.Context) (*evaluator.Result, error) {
	f.calls++
	return f.result, f.err
}

func TestCheckHandler(t *testing.T) {
	t.Run("OPTIONS preflight returns empty body with CORS headers", func(t *testing.T) {
		runner := &fakeRunner{}
		h := NewCheckHandler(runner, nil)

		req := httptest.NewRequest(http.MethodOptions, "/alerts/check", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("Preflight body should be empty, got %q", rec.Body.String())
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Expected permissive origin header, got %q", got)
		}
		if runner.calls != 0 {
			t.Error("Preflight must not run an evaluation pass")
		}
	})

	t.Run("successful pass returns message and triggered alerts", func(t *testing.T) {
		triggered := &models.PriceAlert{ID: "a1", Cryptocurrency: "BTC"}
		runner := &fakeRunner{result: &evaluator.Result{
			Checked:   3,
			Triggered: []*models.PriceAlert{triggered},
		}}
		h := NewCheckHandler(runner, nil)

		req := httptest.NewRequest(http.MethodPost, "/alerts/check", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var resp struct {
			Message         string              `json:"message"`
			TriggeredAlerts []models.PriceAlert `json:"triggeredAlerts"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Message != "Checked 3 alerts, 1 triggered" {
			t.Errorf("Unexpected message: %s", resp.Message)
		}
		if len(resp.TriggeredAlerts) != 1 || resp.TriggeredAlerts[0].ID != "a1" {
			t.Errorf("Unexpected triggered alerts: %+v", resp.TriggeredAlerts)
		}
	})

	t.Run("empty pass returns empty list not null", func(t *testing.T) {
		runner := &fakeRunner{result: &evaluator.Result{}}
		h := NewCheckHandler(runner, nil)

		req := httptest.NewRequest(http.MethodPost, "/alerts/check", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		body := rec.Body.String()
		if !strings.Contains(body, `"triggeredAlerts":[]`) {
			t.Errorf("Expected empty array in body, got %s", body)
		}
		if !strings.Contains(body, "No active alerts") {
			t.Errorf("Expected no-alerts message, got %s", body)
		}
	})

	t.Run("pass failure returns 500 with error body", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("failed to fetch prices: rate limit exceeded")}
		h := NewCheckHandler(runner, nil)

		req := httptest.NewRequest(http.MethodPost, "/alerts/check", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", rec.Code)
		}
		var resp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !strings.Contains(resp.Error, "rate limit") {
			t.Errorf("Unexpected error message: %s", resp.Error)
		}
	})

	t.Run("unsupported method is rejected", func(t *testing.T) {
		h := NewCheckHandler(&fakeRunner{}, nil)

		req := httptest.NewRequest(http.MethodDelete, "/alerts/check", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rec.Code)
		}
	})
}

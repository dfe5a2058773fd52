package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cryptoalerts/internal/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger()
	m.Run()
}

func TestClient_SendAlertEmail(t *testing.T) {
	t.Run("posts to emails endpoint with auth and payload", func(t *testing.T) {
		var gotAuth string
		var gotBody sendRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/emails" {
				t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
			}
			gotAuth = r.Header.Get("Authorization")
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("Failed to decode request body: %v", err)
			}
			w.Write([]byte(`{"id":"msg_1"}`))
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "test-key")
		err := client.SendAlertEmail(context.Background(), AlertEmail{
			To:             []string{"user@example.com"},
			Cryptocurrency: "BTC",
			Condition:      "above",
			TargetPrice:    50000,
			CurrentPrice:   50120.5,
		})
		if err != nil {
			t.Fatalf("SendAlertEmail failed: %v", err)
		}

		if gotAuth != "Bearer test-key" {
			t.Errorf("Unexpected Authorization header: %s", gotAuth)
		}
		if len(gotBody.To) != 1 || gotBody.To[0] != "user@example.com" {
			t.Errorf("Unexpected recipients: %v", gotBody.To)
		}
		if !strings.Contains(gotBody.Subject, "BTC") || !strings.Contains(gotBody.Subject, "above") {
			t.Errorf("Subject should carry symbol and condition: %s", gotBody.Subject)
		}
		if !strings.Contains(gotBody.HTML, "$50120.5") {
			t.Errorf("Body should carry current price: %s", gotBody.HTML)
		}
	})

	t.Run("non-2xx response is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message":"invalid recipient"}`))
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "test-key")
		err := client.SendAlertEmail(context.Background(), AlertEmail{To: []string{"bad"}})
		if err == nil {
			t.Fatal("Expected error for 422 response")
		}
	})

	t.Run("missing API key fails without a request", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("No request should be made without an API key")
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "")
		if err := client.SendAlertEmail(context.Background(), AlertEmail{}); err == nil {
			t.Fatal("Expected error when API key is unset")
		}
	})
}

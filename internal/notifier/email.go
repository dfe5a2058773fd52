package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cryptoalerts/internal/logger"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.resend.com"

// AlertEmail is the payload for a triggered-alert notification.
type AlertEmail struct {
	To             []string `json:"to"`
	Cryptocurrency string   `json:"cryptocurrency"`
	Condition      string   `json:"condition"`
	TargetPrice    float64  `json:"targetPrice"`
	CurrentPrice   float64  `json:"currentPrice"`
}

// Client dispatches alert emails through the Resend HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
}

// NewClient builds an email client. An empty baseURL selects the public
// Resend endpoint.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    "Crypto Alerts <onboarding@resend.dev>",
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendAlertEmail delivers one triggered-alert notification. Any non-2xx
// response is an error; the response body is logged for diagnosis.
func (c *Client) SendAlertEmail(ctx context.Context, email AlertEmail) error {
	if c.apiKey == "" {
		return fmt.Errorf("notifier API key is not configured")
	}

	payload := sendRequest{
		From:    c.from,
		To:      email.To,
		Subject: fmt.Sprintf("Price Alert: %s %s $%g", email.Cryptocurrency, email.Condition, email.TargetPrice),
		HTML: fmt.Sprintf(`
			<h2>Your Crypto Price Alert has been triggered!</h2>
			<p>Your alert for %s has been triggered:</p>
			<ul>
				<li>Condition: Price goes %s $%g</li>
				<li>Current Price: $%g</li>
			</ul>
			<p>This alert has now been deactivated. You can create a new alert anytime from your dashboard.</p>`,
			email.Cryptocurrency, email.Condition, email.TargetPrice, email.CurrentPrice),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Log.Error("Email provider rejected notification",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return fmt.Errorf("failed to send email: status %d", resp.StatusCode)
	}

	return nil
}

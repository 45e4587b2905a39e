package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Email is one outbound message.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Mailer sends an email and returns the provider-assigned message id.
type Mailer interface {
	Send(ctx context.Context, msg Email) (string, error)
}

// ProviderError carries the most specific message the provider returned.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("provider status %d: %s", e.Status, e.Message)
}

// ErrNoMessageID is returned when the provider accepted the request without
// assigning a message id.
var ErrNoMessageID = errors.New("provider returned no message id")

const (
	defaultEmailTimeout = 15 * time.Second
	maxErrorBody        = 64 << 10
)

// HTTPMailer posts messages to a transactional email HTTP API that accepts
// {from, to[], subject, html} and answers {id}.
type HTTPMailer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPMailer builds an HTTPMailer. A non-positive timeout uses 15s.
func NewHTTPMailer(endpoint, apiKey string, timeout time.Duration) *HTTPMailer {
	if timeout <= 0 {
		timeout = defaultEmailTimeout
	}
	return &HTTPMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in delivery log entries.
func (m *HTTPMailer) Name() string { return "http" }

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send posts msg to the provider.
func (m *HTTPMailer) Send(ctx context.Context, msg Email) (string, error) {
	if strings.TrimSpace(m.apiKey) == "" {
		return "", &ProviderError{Message: "email provider api key not configured"}
	}
	body, err := json.Marshal(sendRequest{From: msg.From, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{Status: resp.StatusCode, Message: providerMessage(raw)}
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.ID) == "" {
		return "", ErrNoMessageID
	}
	return out.ID, nil
}

// providerMessage digs the most specific human message out of an error body.
func providerMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
		Name    string `json:"name"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if m := strings.TrimSpace(payload.Message); m != "" {
			return m
		}
		switch e := payload.Error.(type) {
		case string:
			if m := strings.TrimSpace(e); m != "" {
				return m
			}
		case map[string]any:
			if m, ok := e["message"].(string); ok && strings.TrimSpace(m) != "" {
				return strings.TrimSpace(m)
			}
		}
		if n := strings.TrimSpace(payload.Name); n != "" {
			return n
		}
	}
	return ""
}

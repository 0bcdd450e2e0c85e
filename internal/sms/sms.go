// Package sms delivers one-time passcodes through an outbound gateway.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"atrium/internal/middleware"
	"atrium/internal/validation"

	"github.com/google/uuid"
)

// Sender is the narrow delivery contract the passcode flow depends on.
type Sender interface {
	Send(ctx context.Context, phone, message string) (messageID string, err error)
}

// HTTPGateway posts form-encoded messages to a provider endpoint.
type HTTPGateway struct {
	BaseURL  string
	APIKey   string
	SenderID string
	client   *http.Client
}

// NewHTTPGateway returns an HTTPGateway with a 10 second request timeout.
func NewHTTPGateway(baseURL, apiKey, senderID string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		SenderID: senderID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
}

// Send delivers message to phone. Provider response bodies are logged, never returned.
func (g *HTTPGateway) Send(ctx context.Context, phone, message string) (string, error) {
	start := time.Now()

	form := url.Values{}
	form.Set("senderid", g.SenderID)
	form.Set("msgType", "text")
	form.Set("msg", message)
	form.Set("mobile", phone)
	form.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if g.APIKey != "" {
		req.Header.Set("apikey", g.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "sms gateway unreachable",
			slog.String("recipient", validation.MaskPhone(phone)),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	duration := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		middleware.Logger.WarnContext(ctx, "sms gateway rejected message",
			slog.String("recipient", validation.MaskPhone(phone)),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", duration),
			slog.String("response", string(body)))
		return "", fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	var out gatewayResponse
	if err := json.Unmarshal(body, &out); err != nil || out.MessageID == "" {
		out.MessageID = uuid.NewString()
	}

	middleware.Logger.InfoContext(ctx, "sms sent",
		slog.String("recipient", validation.MaskPhone(phone)),
		slog.String("message_id", out.MessageID),
		slog.Duration("duration", duration))
	return out.MessageID, nil
}

// LogGateway writes messages to the structured log instead of sending them.
// Development only.
type LogGateway struct{}

func (LogGateway) Send(ctx context.Context, phone, message string) (string, error) {
	id := uuid.NewString()
	middleware.Logger.InfoContext(ctx, "sms (log gateway)",
		slog.String("recipient", phone),
		slog.String("message", message),
		slog.String("message_id", id))
	return id, nil
}

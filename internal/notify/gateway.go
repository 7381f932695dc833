package notify

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

	"github.com/google/uuid"
)

// Gateway is the one operation we need from the external messaging provider.
type Gateway interface {
	Send(ctx context.Context, phone string, body string) (providerMessageID string, err error)
}

// HTTPGateway posts messages to the provider endpoint with an API key header.
type HTTPGateway struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewHTTPGateway(url string, apiKey string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		http:   &http.Client{Timeout: timeout},
	}
}

type gatewaySendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gatewaySendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (g *HTTPGateway) Send(ctx context.Context, phone string, body string) (string, error) {
	if g.url == "" {
		return "", errors.New("messaging gateway url not configured")
	}

	raw, err := json.Marshal(gatewaySendRequest{Phone: phone, Message: body})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("X-Api-Key", g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := gatewayErrorDetail(payload)
		return "", fmt.Errorf("messaging gateway returned %d: %s", resp.StatusCode, detail)
	}

	var parsed gatewaySendResponse
	if err := json.Unmarshal(payload, &parsed); err != nil || parsed.MessageID == "" {
		// Some providers return an opaque body on success; synthesize an id
		// so the ledger still has something to correlate on.
		return "provider-" + uuid.NewString(), nil
	}
	return parsed.MessageID, nil
}

func gatewayErrorDetail(payload []byte) string {
	var parsed gatewaySendResponse
	if err := json.Unmarshal(payload, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	detail := strings.TrimSpace(string(payload))
	if detail == "" {
		return "no detail"
	}
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return detail
}

// NoopGateway is the simulated-mode provider: it accepts everything and
// returns a synthetic message id.
type NoopGateway struct{}

func (NoopGateway) Send(_ context.Context, _ string, _ string) (string, error) {
	return "simulated-" + uuid.NewString(), nil
}

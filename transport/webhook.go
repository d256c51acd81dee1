package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gridbase/automations/automation"
	"github.com/gridbase/automations/internal/logger"
)

const (
	defaultWebhookTimeout = 30 * time.Second

	// maxResponseBytes bounds how much of the remote reply is captured for
	// the trace and for downstream interpolation.
	maxResponseBytes = 64 * 1024
)

// HTTPWebhookCaller implements automation.WebhookCaller with a shared
// net/http client. Non-2xx statuses are reported as errors so a failing
// remote endpoint fails the action; the response is still captured.
type HTTPWebhookCaller struct {
	client *http.Client
}

// NewHTTPWebhookCaller creates a webhook caller with the given timeout.
// A zero timeout uses the default of 30 seconds.
func NewHTTPWebhookCaller(timeout time.Duration) *HTTPWebhookCaller {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &HTTPWebhookCaller{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPWebhookCaller) CallWebhook(ctx context.Context, req automation.WebhookRequest) (*automation.WebhookResponse, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader([]byte(req.Body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.Body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("webhook request to %s failed: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response from %s: %w", req.URL, err)
	}

	out := &automation.WebhookResponse{
		Status: resp.StatusCode,
		Body:   string(body),
	}

	logger.Debug("webhook call completed",
		"method", method, "url", req.URL, "status", resp.StatusCode)

	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("webhook %s %s returned HTTP %d", method, req.URL, resp.StatusCode)
	}
	return out, nil
}

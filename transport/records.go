package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPRecordClient talks to the table service's record API. It implements
// automation.DataStore for action side effects and the dispatcher's record
// listing for condition-poll triggers.
type HTTPRecordClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRecordClient creates a record client for the given service URL.
func NewHTTPRecordClient(baseURL string, timeout time.Duration) *HTTPRecordClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRecordClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPRecordClient) GetRecord(ctx context.Context, tableID, recordID string) (map[string]any, error) {
	var out struct {
		Record map[string]any `json:"record"`
	}
	path := fmt.Sprintf("/api/v1/tables/%s/records/%s", url.PathEscape(tableID), url.PathEscape(recordID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

func (c *HTTPRecordClient) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]string) (string, error) {
	body := map[string]any{"fields": fields}
	path := fmt.Sprintf("/api/v1/tables/%s/records/%s", url.PathEscape(tableID), url.PathEscape(recordID))
	if err := c.do(ctx, http.MethodPatch, path, body, nil); err != nil {
		return "", err
	}
	return recordID, nil
}

func (c *HTTPRecordClient) CreateRecord(ctx context.Context, tableID string, fields map[string]string) (string, error) {
	body := map[string]any{"fields": fields}
	var out struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/api/v1/tables/%s/records", url.PathEscape(tableID))
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPRecordClient) DeleteRecord(ctx context.Context, tableID, recordID string) error {
	path := fmt.Sprintf("/api/v1/tables/%s/records/%s", url.PathEscape(tableID), url.PathEscape(recordID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListRecords returns all records of a table keyed by record ID, for
// condition-poll evaluation.
func (c *HTTPRecordClient) ListRecords(ctx context.Context, baseID, tableID string) (map[string]map[string]any, error) {
	var out struct {
		Records map[string]map[string]any `json:"records"`
	}
	path := fmt.Sprintf("/api/v1/bases/%s/tables/%s/records", url.PathEscape(baseID), url.PathEscape(tableID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *HTTPRecordClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("table service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("table service returned HTTP %d for %s %s: %s", resp.StatusCode, method, path, string(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode table service response: %w", err)
		}
	}
	return nil
}

package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gridbase/automations/automation"
)

func TestCallWebhookDefaults(t *testing.T) {
	var gotMethod, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	caller := NewHTTPWebhookCaller(0)
	resp, err := caller.CallWebhook(context.Background(), automation.WebhookRequest{
		URL:  srv.URL,
		Body: `{"record":"rec1"}`,
	})
	if err != nil {
		t.Fatalf("CallWebhook() failed: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, should default to application/json", gotContentType)
	}
	if gotBody != `{"record":"rec1"}` {
		t.Errorf("body = %q", gotBody)
	}
	if resp.Status != http.StatusOK || resp.Body != `{"ok":true}` {
		t.Errorf("response = %+v", resp)
	}
}

func TestCallWebhookCustomMethodAndHeaders(t *testing.T) {
	var gotMethod, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	caller := NewHTTPWebhookCaller(time.Second)
	_, err := caller.CallWebhook(context.Background(), automation.WebhookRequest{
		URL:     srv.URL,
		Method:  "put",
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	if err != nil {
		t.Fatalf("CallWebhook() failed: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestCallWebhookErrorStatusKeepsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream broke"))
	}))
	defer srv.Close()

	caller := NewHTTPWebhookCaller(time.Second)
	resp, err := caller.CallWebhook(context.Background(), automation.WebhookRequest{URL: srv.URL})
	if err == nil {
		t.Fatal("HTTP 502 should be reported as an error")
	}
	if resp == nil || resp.Status != http.StatusBadGateway || resp.Body != "upstream broke" {
		t.Errorf("response should still be captured, got %+v", resp)
	}
}

func TestCallWebhookTruncatesLargeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", maxResponseBytes+1000)))
	}))
	defer srv.Close()

	caller := NewHTTPWebhookCaller(time.Second)
	resp, err := caller.CallWebhook(context.Background(), automation.WebhookRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("CallWebhook() failed: %v", err)
	}
	if len(resp.Body) != maxResponseBytes {
		t.Errorf("body length = %d, want %d", len(resp.Body), maxResponseBytes)
	}
}

func TestCallWebhookUnreachable(t *testing.T) {
	caller := NewHTTPWebhookCaller(time.Second)
	if _, err := caller.CallWebhook(context.Background(), automation.WebhookRequest{
		URL: "http://127.0.0.1:1/hook",
	}); err == nil {
		t.Error("unreachable endpoint should error")
	}
}

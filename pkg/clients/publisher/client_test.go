package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"drumbeat/pkg/clients"
)

func testExecutorConfig(maxAttempts int) clients.HTTPExecutorConfig {
	cfg := clients.DefaultHTTPExecutorConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestPublishSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") == "" {
			t.Errorf("expected idempotency key header")
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "remote_id": "urn:li:123"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "svc-token", WithHTTPExecutorConfig(testExecutorConfig(3)))
	res, err := c.Publish(context.Background(), "post body", "idem-1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.RemoteID != "urn:li:123" {
		t.Fatalf("unexpected remote id %q", res.RemoteID)
	}
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "remote_id": "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithHTTPExecutorConfig(testExecutorConfig(3)))
	res, err := c.Publish(context.Background(), "body", "idem-2")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.RemoteID != "ok" {
		t.Fatalf("unexpected remote id %q", res.RemoteID)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestPublishAttemptsAreBounded(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithHTTPExecutorConfig(testExecutorConfig(3)))
	if _, err := c.Publish(context.Background(), "body", "idem-3"); err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestPublishRemoteFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "rate limited by network"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithHTTPExecutorConfig(testExecutorConfig(1)))
	_, err := c.Publish(context.Background(), "body", "idem-4")
	if err == nil {
		t.Fatalf("expected failure")
	}
}

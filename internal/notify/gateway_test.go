package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPGateway_Send(t *testing.T) {
	var gotKey string
	var gotBody gatewaySendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"message_id": "prov-123"})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "secret-key", 2*time.Second)
	id, err := gw.Send(context.Background(), "+15550001111", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "prov-123" {
		t.Fatalf("provider id = %q", id)
	}
	if gotKey != "secret-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if gotBody.Phone != "+15550001111" || gotBody.Message != "hello" {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
}

func TestHTTPGateway_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "", 2*time.Second)
	_, err := gw.Send(context.Background(), "+15550001111", "hello")
	if err == nil {
		t.Fatal("expected error for 429")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error should carry status and detail: %v", err)
	}
}

func TestHTTPGateway_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "", 20*time.Millisecond)
	_, err := gw.Send(context.Background(), "+15550001111", "hello")
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestHTTPGateway_OpaqueSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "", time.Second)
	id, err := gw.Send(context.Background(), "+15550001111", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(id, "provider-") {
		t.Fatalf("expected synthetic provider id, got %q", id)
	}
}

func TestHTTPGateway_Unconfigured(t *testing.T) {
	gw := NewHTTPGateway("", "", time.Second)
	if _, err := gw.Send(context.Background(), "p", "b"); err == nil {
		t.Fatal("expected error when url missing")
	}
}

func TestNoopGateway(t *testing.T) {
	id, err := NoopGateway{}.Send(context.Background(), "p", "b")
	if err != nil {
		t.Fatalf("noop send: %v", err)
	}
	if !strings.HasPrefix(id, "simulated-") {
		t.Fatalf("unexpected id %q", id)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"stockhelper.org/internal/audit"
	"stockhelper.org/internal/ids"
	"stockhelper.org/internal/obs"
)

func TestRateLimitExceeded(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestID(RateLimit(base, 1, 1))

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(context.Background()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first call 200, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(context.Background()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", rr2.Header().Get("Retry-After"))
	}

	var body map[string]any
	if err := json.Unmarshal(rr2.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatalf("expected request_id in body, got %v", body)
	}

	// another client keeps its own bucket
	other := req.Clone(context.Background())
	other.RemoteAddr = "10.0.0.2:1234"
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, other)
	if rr3.Code != http.StatusOK {
		t.Fatalf("expected other client 200, got %d", rr3.Code)
	}
}

func TestRequestIDReuse(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = audit.RequestIDFromContext(r.Context())
	}))

	incoming := ids.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, incoming)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != incoming || rr.Header().Get(requestIDHeader) != incoming {
		t.Fatalf("expected request id %s to be reused, got ctx=%s header=%s", incoming, seen, rr.Header().Get(requestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "not a ulid")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen == "not a ulid" || !ids.Valid(seen) {
		t.Fatalf("expected a fresh request id, got %q", seen)
	}
}

func TestLoggingJSON(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetLogger(zerolog.New(&buf))
	defer restore()

	handler := RequestID(Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set("User-Agent", "probe")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", line, err)
	}
	if entry["message"] != "request_complete" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["path"] != "/v1/users" || entry["user_agent"] != "probe" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if rid, _ := entry["request_id"].(string); !ids.Valid(rid) {
		t.Fatalf("expected request id in log entry, got %v", entry["request_id"])
	}
}

func TestSecurityHeadersAndBodyLimit(t *testing.T) {
	handler := SecurityHeaders(MaxBodyBytes(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		if err := decodeJSON(r, &v); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}), 16))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a much longer value"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}
}

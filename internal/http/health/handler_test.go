package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, h http.Handler) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	var body Response
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp, body
}

func TestHealthHandlerWithoutChecks(t *testing.T) {
	resp, body := serve(t, NewHandler(nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", resp.Code)
	}
	if body.Status != "healthy" || body.Checks != nil {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestHealthHandlerReportsFailingCheck(t *testing.T) {
	h := NewHandler(map[string]Check{
		"firestore": func(context.Context) error { return errors.New("down") },
		"storage":   func(context.Context) error { return nil },
	})
	resp, body := serve(t, h)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if body.Status != "unhealthy" {
		t.Fatalf("expected unhealthy, got %s", body.Status)
	}
	if body.Checks["firestore"] != "unavailable" || body.Checks["storage"] != "ok" {
		t.Fatalf("unexpected checks %+v", body.Checks)
	}
}

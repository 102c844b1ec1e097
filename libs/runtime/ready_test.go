package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyzReportsFailingCheck(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["db"] != "ok" || body["redis"] != "connection refused" {
		t.Fatalf("unexpected body: %v", body)
	}

	rwHealth := httptest.NewRecorder()
	mux.ServeHTTP(rwHealth, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rwHealth.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rwHealth.Code)
	}
}

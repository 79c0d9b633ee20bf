package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthCheckNoProbes(t *testing.T) {
	h := NewHealthHandler(nil, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if _, ok := body["dependencies"]; ok {
		t.Error("dependencies reported with no probes registered")
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	checks := map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}
	h := NewHealthHandler(checks, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Dependencies["postgres"] != "ok" {
		t.Errorf("postgres = %q, want ok", body.Dependencies["postgres"])
	}
	if !strings.Contains(body.Dependencies["redis"], "connection refused") {
		t.Errorf("redis = %q, want the probe error", body.Dependencies["redis"])
	}
}

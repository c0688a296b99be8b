package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, m, registry := setupMetrics()
	if handler == nil || m == nil || registry == nil {
		t.Fatalf("expected non-nil handler, metrics, and registry")
	}

	m.ObserveInbound("signup", "ok")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "sanctuary_messaging_inbound_webhook_total") {
		t.Fatalf("expected inbound counter to be exported")
	}
}

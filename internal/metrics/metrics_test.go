package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Movement("check_out")
	m.Movement("check_out")
	m.Rejected("insufficient_stock")
	m.Retry()
	m.ImportRow("failed")

	if got := testutil.ToFloat64(m.movements.WithLabelValues("check_out")); got != 2 {
		t.Errorf("expected 2 check-outs, got %v", got)
	}
	if got := testutil.ToFloat64(m.retries); got != 1 {
		t.Errorf("expected 1 retry, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "shipstore_import_rows_total") {
		t.Error("expected import counter in exposition")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Movement("check_in")
	m.Rejected("x")
	m.Retry()
	m.ImportRow("success")
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
}

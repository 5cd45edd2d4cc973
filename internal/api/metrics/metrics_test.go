package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestU_Metrics_Counters(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/health", http.StatusOK, 0.01)
	m.CertificateStored("created")
	m.Verified(true)
	m.Verified(false)
	m.SignatureAttached(false)
	m.RateLimited()

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/health", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.verifications.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid verifications = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.limited); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}
}

func TestU_Metrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(http.MethodGet, "/", http.StatusOK, 0)
	m.CertificateStored("created")
	m.Verified(true)
	m.SignatureAttached(true)
	m.RateLimited()
}

func TestU_Metrics_Handler(t *testing.T) {
	m := New()
	m.CertificateStored("imported")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `evpki_certificates_total{origin="imported"} 1`) {
		t.Error("certificates counter missing from exposition")
	}
}

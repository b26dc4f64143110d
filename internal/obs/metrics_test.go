package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrument(t *testing.T) {
	Init()
	Init() // second call must not panic

	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), func(*http.Request) string { return "test" })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "test", "418"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "test", "418"))
	if after != before+1 {
		t.Errorf("http_requests_total = %v, want %v", after, before+1)
	}
	if v := testutil.ToFloat64(httpInFlight); v != 0 {
		t.Errorf("http_in_flight_requests = %v, want 0", v)
	}
}

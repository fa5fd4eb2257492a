package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mtlprog/oracle/internal/domain"
)

func TestEventCounter(t *testing.T) {
	m := New()
	n := m.Notifier("aggregator")

	n.Notify(context.Background(),
		domain.AggregatorChanged{},
		domain.TokenInformationAdded{},
		domain.AggregatorChanged{},
	)

	if got := testutil.ToFloat64(m.events.WithLabelValues("aggregator", "AggregatorChanged")); got != 2 {
		t.Errorf("AggregatorChanged = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("aggregator", "TokenInformationAdded")); got != 1 {
		t.Errorf("TokenInformationAdded = %v, want 1", got)
	}
}

func TestRecordPush(t *testing.T) {
	m := New()
	m.RecordPush("FTM/USD", nil)
	m.RecordPush("FTM/USD", errors.New("boom"))
	m.RecordPush("FTM/USD", nil)

	if got := testutil.ToFloat64(m.feederPushes.WithLabelValues("FTM/USD", "ok")); got != 2 {
		t.Errorf("ok pushes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.feederPushes.WithLabelValues("FTM/USD", "error")); got != 1 {
		t.Errorf("error pushes = %v, want 1", got)
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/tokens/{token}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Instrument(mux)

	for _, path := range []string{"/api/v1/tokens/0x1", "/api/v1/tokens/0x2"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "GET /api/v1/tokens/{token}", "404"))
	if got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordPush("FTM/USD", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `oracle_feeder_pushes_total{result="ok",symbol="FTM/USD"} 1`) {
		t.Errorf("metrics output missing feeder counter:\n%s", body)
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Passthrough(t *testing.T) {
	called := false
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("inner handler was not called")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMetrics_CapturesStatus(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMetrics_InFlightReturnsToZero(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// While inside, in-flight should be > 0
		val := testutil.ToFloat64(requestsInFlight)
		if val < 1 {
			t.Errorf("in-flight during request: got %f, want >= 1", val)
		}
		w.WriteHeader(http.StatusOK)
	}))

	before := testutil.ToFloat64(requestsInFlight)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	after := testutil.ToFloat64(requestsInFlight)
	if after != before {
		t.Errorf("in-flight after request: got %f, want %f", after, before)
	}
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	mux := chi.NewRouter()
	mux.Use(Metrics)
	mux.Get("/v1/objects/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Snapshot counter before request
	before := counterValue(t, "geodrop_requests_total", "GET", "/v1/objects/{id}", "200")

	req := httptest.NewRequest(http.MethodGet, "/v1/objects/550e8400-e29b-41d4-a716-446655440000", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	after := counterValue(t, "geodrop_requests_total", "GET", "/v1/objects/{id}", "200")
	if after-before != 1 {
		t.Errorf("requests_total delta: got %f, want 1", after-before)
	}
}

// counterValue reads the current value of requests_total for the given labels.
func counterValue(t *testing.T, name, method, route, status string) float64 {
	t.Helper()
	metrics, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == method && labels["route"] == route && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetrics_HijackUnsupported(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer should implement http.Hijacker")
		}
		if _, _, err := h.Hijack(); err == nil {
			t.Error("expected error hijacking a recorder")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/actors/a/position/ws", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestStatusWriter_Unwrap(t *testing.T) {
	inner := httptest.NewRecorder()
	sw := NewStatusWriter(inner)
	sw.WriteHeader(http.StatusCreated)
	if sw.Status() != http.StatusCreated {
		t.Errorf("status: got %d, want %d", sw.Status(), http.StatusCreated)
	}
	if sw.Unwrap() != inner {
		t.Error("Unwrap should expose the inner writer")
	}
}

func TestMetrics_UpgradedStreamTimedSeparately(t *testing.T) {
	mux := chi.NewRouter()
	mux.Use(Metrics)
	mux.Get("/v1/actors/{actor}/position/ws", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	})

	route := "/v1/actors/{actor}/position/ws"
	beforeStreams := histogramCount(t, "geodrop_position_stream_seconds")

	req := httptest.NewRequest(http.MethodGet, "/v1/actors/alice/position/ws", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)

	if got := counterValue(t, "geodrop_requests_total", "GET", route, "101"); got < 1 {
		t.Errorf("upgrade should still be counted, got %f", got)
	}
	if got := histogramCount(t, "geodrop_position_stream_seconds"); got-beforeStreams != 1 {
		t.Errorf("stream lifetime samples delta: got %d, want 1", got-beforeStreams)
	}
}

func TestStreamOpened(t *testing.T) {
	before := testutil.ToFloat64(streamsOpen)
	closed := StreamOpened()
	if got := testutil.ToFloat64(streamsOpen); got != before+1 {
		t.Errorf("open streams: got %f, want %f", got, before+1)
	}
	closed()
	if got := testutil.ToFloat64(streamsOpen); got != before {
		t.Errorf("open streams after close: got %f, want %f", got, before)
	}
}

// histogramCount sums sample counts across every series of a histogram.
func histogramCount(t *testing.T, name string) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var n uint64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			n += m.GetHistogram().GetSampleCount()
		}
	}
	return n
}

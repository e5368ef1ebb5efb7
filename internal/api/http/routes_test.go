package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/weather-sampler/internal/metrics"
	"github.com/i474232898/weather-sampler/internal/store"
)

func newTestApp(t *testing.T, history *store.MemoryStore) *fiber.App {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewPromMetrics(reg)
	m.CycleFinished(metrics.OutcomeSuccess)

	app := fiber.New()
	RegisterRoutes(app, "weather-sampler", "Tokyo", history, reg)
	return app
}

func seededHistory() *store.MemoryStore {
	h := store.NewMemoryStore(10, 0)
	base := time.Unix(1700000000, 0).UTC()
	h.SaveRecord(store.CycleRecord{StartedAt: base, Location: "Tokyo", Outcome: "success", CaptureTimeMS: 1700000000001})
	h.SaveRecord(store.CycleRecord{StartedAt: base.Add(time.Hour), Location: "Tokyo", Outcome: "fetch_rejected", ErrorKind: "FetchRejected", HTTPStatus: 401})
	return h
}

func doGet(t *testing.T, app *fiber.App, url string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore(10, 0))

	resp := doGet(t, app, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestLatestCycle(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore(10, 0))

	// Nothing recorded yet.
	resp := doGet(t, app, "/api/v1/cycles/latest")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}

	app = newTestApp(t, seededHistory())
	resp = doGet(t, app, "/api/v1/cycles/latest")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var rec store.CycleRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ErrorKind != "FetchRejected" || rec.HTTPStatus != 401 {
		t.Fatalf("unexpected latest record: %+v", rec)
	}
}

func TestCyclesQueryValidation(t *testing.T) {
	app := newTestApp(t, seededHistory())

	for _, url := range []string{
		"/api/v1/cycles?limit=0",
		"/api/v1/cycles?limit=abc",
		"/api/v1/cycles?from=1700000000",
		"/api/v1/cycles?from=1700003600&to=1700000000",
		"/api/v1/cycles?from=yesterday&to=today",
	} {
		resp := doGet(t, app, url)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", url, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestCyclesRecentAndRange(t *testing.T) {
	app := newTestApp(t, seededHistory())

	resp := doGet(t, app, "/api/v1/cycles?limit=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body struct {
		Location string              `json:"location"`
		Cycles   []store.CycleRecord `json:"cycles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Cycles) != 1 || body.Cycles[0].Outcome != "fetch_rejected" {
		t.Fatalf("unexpected cycles: %+v", body.Cycles)
	}

	resp = doGet(t, app, "/api/v1/cycles?from=2023-11-14T22:00:00Z&to=2023-11-14T22:30:00Z")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	resp = doGet(t, app, "/api/v1/cycles?from=1800000000&to=1800003600")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, seededHistory())

	resp := doGet(t, app, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `weather_sampler_cycles_total{outcome="success"} 1`) {
		t.Fatalf("metrics output missing cycle counter:\n%s", raw)
	}
}

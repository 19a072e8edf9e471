package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point carrying key=value,
// or -1 when none exists.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordAlignment(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAlignment(ctx, "tokens", "ok", 2*time.Millisecond, 8, 2)
	m.RecordAlignment(ctx, "tokens", "ok", time.Millisecond, 3, 0)
	m.RecordAlignment(ctx, "audio", "error", 0, 0, 0)

	rm := collect(t, reader)

	if got := sumFor(t, rm, "scriptsync.align.words", "outcome", "matched"); got != 11 {
		t.Errorf("matched words = %d, want 11", got)
	}
	if got := sumFor(t, rm, "scriptsync.align.words", "outcome", "interpolated"); got != 2 {
		t.Errorf("interpolated words = %d, want 2", got)
	}
	if got := sumFor(t, rm, "scriptsync.align.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}

	met := findMetric(rm, "scriptsync.align.duration")
	if met == nil {
		t.Fatal("align duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("align duration is not a histogram")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("align duration samples = %d, want 3", count)
	}
}

func TestRecordTranscription(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordTranscription(context.Background(), "whisper", 1500*time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "scriptsync.stt.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 1.5 {
		t.Errorf("data points = %+v, want one sample of 1.5s", hist.DataPoints)
	}
}

func TestRecordCacheLookupAndProviderError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookup(ctx, "hit")
	m.RecordCacheLookup(ctx, "hit")
	m.RecordCacheLookup(ctx, "miss")
	m.RecordProviderError(ctx, "openai")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "scriptsync.cache.lookups", "result", "hit"); got != 2 {
		t.Errorf("cache hits = %d, want 2", got)
	}
	if got := sumFor(t, rm, "scriptsync.cache.lookups", "result", "miss"); got != 1 {
		t.Errorf("cache misses = %d, want 1", got)
	}
	if got := sumFor(t, rm, "scriptsync.provider.errors", "provider", "openai"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}

func TestMetricsHandler_ExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "scriptsync_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "scriptsync_test_total 1") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}

func TestInitProvider(t *testing.T) {
	handler, shutdown, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()
	if handler == nil {
		t.Fatal("InitProvider returned nil handler")
	}
}

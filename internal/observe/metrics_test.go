package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"eclectech.rewrite.duration", m.RewriteDuration},
		{"eclectech.rewrite.step.duration", m.RewriteStepDuration},
		{"eclectech.transcription.duration", m.TranscriptionDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

// sumByAttr returns the counter value for the data point carrying key=value.
func sumByAttr(t *testing.T, met *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestRecordCacheLookup(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookup(ctx, CacheHit)
	m.RecordCacheLookup(ctx, CacheHit)
	m.RecordCacheLookup(ctx, CacheMiss)
	m.RecordCacheLookup(ctx, CacheInvalid)

	rm := collect(t, reader)
	met := findMetric(rm, "eclectech.cache.lookups")
	if met == nil {
		t.Fatal("metric not found")
	}

	tests := []struct {
		result string
		want   int64
	}{
		{CacheHit, 2},
		{CacheMiss, 1},
		{CacheInvalid, 1},
	}
	for _, tc := range tests {
		if got := sumByAttr(t, met, "result", tc.result); got != tc.want {
			t.Errorf("lookups[%s] = %d, want %d", tc.result, got, tc.want)
		}
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "gemini", "llm", "ok")
	m.RecordProviderRequest(ctx, "gemini", "llm", "ok")
	m.RecordProviderRequest(ctx, "deepgram", "stt", "error")

	rm := collect(t, reader)
	met := findMetric(rm, "eclectech.provider.requests")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumByAttr(t, met, "provider", "gemini"); got != 2 {
		t.Errorf("gemini requests = %d, want 2", got)
	}
	if got := sumByAttr(t, met, "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
}

func TestProviderErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "openai", "transcriber")

	rm := collect(t, reader)
	met := findMetric(rm, "eclectech.provider.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumByAttr(t, met, "kind", "transcriber"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActivePages.Add(ctx, 3)
	m.ActivePages.Add(ctx, -1)
	m.ActiveCaptionSessions.Add(ctx, 1)

	rm := collect(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"eclectech.active_pages", 2},
		{"eclectech.active_caption_sessions", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatal("no data points")
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAttr(t *testing.T) {
	kv := Attr("feature", "high-contrast")
	if string(kv.Key) != "feature" || kv.Value.AsString() != "high-contrast" {
		t.Errorf("Attr = %v, want feature=high-contrast", kv)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}

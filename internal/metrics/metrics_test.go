package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data map[string]metricdata.Aggregation, name string) int64 {
	t.Helper()
	agg, ok := data[name]
	if !ok {
		return 0
	}
	sum, ok := agg.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s is %T, want Sum[int64]", name, agg)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestOTel_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	rec := NewOTel(mp, nil)
	ctx := context.Background()

	rec.PollCompleted(ctx, "bist30", 120*time.Millisecond, nil)
	rec.PollCompleted(ctx, "bist30", time.Second, errors.New("upstream down"))
	rec.PollSkipped(ctx, "bist30")
	rec.UpstreamCall(ctx, "yahoo", 20, nil)
	rec.Delivery(ctx, "stock:THYAO", nil)
	rec.Delivery(ctx, "stock:THYAO", nil)
	rec.Delivery(ctx, "market", errors.New("queue full"))

	data := collect(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"poll.total", 2},
		{"poll.failed", 1},
		{"poll.skipped", 1},
		{"gateway.upstream.calls", 1},
		{"fanout.deliveries", 2},
		{"fanout.delivery.errors", 1},
	}
	for _, tt := range tests {
		if got := sumOf(t, data, tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}

	hist, ok := data["poll.duration"].(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("poll.duration is %T, want Histogram[float64]", data["poll.duration"])
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("poll.duration count = %d, want 2", count)
	}
}

func TestTopicKind(t *testing.T) {
	tests := map[string]string{
		"stock:AAPL":   "stock",
		"news:general": "news",
		"market":       "market",
	}
	for in, want := range tests {
		if got := topicKind(in); got != want {
			t.Errorf("topicKind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.PollCompleted(context.Background(), "x", 0, nil)
	r.PollSkipped(context.Background(), "x")
	r.UpstreamCall(context.Background(), "x", 1, nil)
	r.Delivery(context.Background(), "market", nil)
}

func TestSnapshot(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	rec := NewOTel(mp, nil)
	ctx := context.Background()
	rec.PollCompleted(ctx, "a", 500*time.Millisecond, nil)
	rec.PollCompleted(ctx, "b", 1500*time.Millisecond, errors.New("x"))

	snap, err := Snapshot(ctx, reader)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := snap["poll.total"].Sum; got != 2 {
		t.Errorf("poll.total = %v, want 2 across targets", got)
	}
	if got := snap["poll.failed"].Sum; got != 1 {
		t.Errorf("poll.failed = %v, want 1", got)
	}
	d := snap["poll.duration"]
	if d.Count != 2 || d.Sum != 2 {
		t.Errorf("poll.duration = %+v, want count 2 sum 2", d)
	}
	if _, ok := snap["fanout.deliveries"]; ok {
		t.Error("unused counter reported")
	}
}

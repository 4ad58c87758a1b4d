package metrics

import (
	"context"
	"fmt"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Value is the aggregate of one instrument across all attribute sets.
type Value struct {
	Count uint64  `json:"count,omitempty"` // histogram samples
	Sum   float64 `json:"sum"`
}

// Snapshot collects reader and folds every instrument to a single Value,
// keyed by instrument name.
func Snapshot(ctx context.Context, reader sdkmetric.Reader) (map[string]Value, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	out := make(map[string]Value)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			var v Value
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					v.Sum += float64(dp.Value)
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					v.Sum += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					v.Count += dp.Count
					v.Sum += dp.Sum
				}
			default:
				continue
			}
			out[m.Name] = v
		}
	}
	return out, nil
}

package metrics

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope name.
const MeterName = "quoted"

// Recorder receives pipeline measurements.
type Recorder interface {
	PollCompleted(ctx context.Context, target string, d time.Duration, err error)
	PollSkipped(ctx context.Context, target string)
	UpstreamCall(ctx context.Context, provider string, symbols int, err error)
	Delivery(ctx context.Context, topic string, err error)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) PollCompleted(context.Context, string, time.Duration, error) {}
func (Nop) PollSkipped(context.Context, string)                         {}
func (Nop) UpstreamCall(context.Context, string, int, error)            {}
func (Nop) Delivery(context.Context, string, error)                     {}

// OTel records measurements with OpenTelemetry instruments. Instruments that
// fail to register are left nil and skipped.
type OTel struct {
	pollTotal      metric.Int64Counter
	pollFailed     metric.Int64Counter
	pollSkipped    metric.Int64Counter
	pollDuration   metric.Float64Histogram
	upstreamCalls  metric.Int64Counter
	deliveries     metric.Int64Counter
	deliveryErrors metric.Int64Counter
}

// NewOTel registers instruments on mp. A nil mp uses the global provider.
func NewOTel(mp metric.MeterProvider, logger *slog.Logger) *OTel {
	if logger == nil {
		logger = slog.Default()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(MeterName)
	logger = logger.With("component", "metrics")

	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			logger.Warn("register counter", "name", name, "error", err)
			return nil
		}
		return c
	}

	o := &OTel{
		pollTotal:      counter("poll.total", "Scheduler polls executed", "{poll}"),
		pollFailed:     counter("poll.failed", "Scheduler polls that failed after retries", "{poll}"),
		pollSkipped:    counter("poll.skipped", "Scheduler polls skipped because the previous poll was still running", "{poll}"),
		upstreamCalls:  counter("gateway.upstream.calls", "Upstream provider batch calls", "{call}"),
		deliveries:     counter("fanout.deliveries", "Messages delivered to subscribed clients", "{message}"),
		deliveryErrors: counter("fanout.delivery.errors", "Failed deliveries to subscribed clients", "{message}"),
	}

	h, err := meter.Float64Histogram("poll.duration",
		metric.WithDescription("Scheduler poll latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("register histogram", "name", "poll.duration", "error", err)
	} else {
		o.pollDuration = h
	}
	return o
}

// PollCompleted implements Recorder.
func (o *OTel) PollCompleted(ctx context.Context, target string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("target", target))
	add(ctx, o.pollTotal, attrs)
	if err != nil {
		add(ctx, o.pollFailed, attrs)
	}
	if o.pollDuration != nil {
		o.pollDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// PollSkipped implements Recorder.
func (o *OTel) PollSkipped(ctx context.Context, target string) {
	add(ctx, o.pollSkipped, metric.WithAttributes(attribute.String("target", target)))
}

// UpstreamCall implements Recorder.
func (o *OTel) UpstreamCall(ctx context.Context, provider string, symbols int, err error) {
	add(ctx, o.upstreamCalls, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome(err)),
		attribute.Int("batch_size", symbols),
	))
}

// Delivery implements Recorder. Topics are reduced to their kind
// ("stock", "market", "news") to bound attribute cardinality.
func (o *OTel) Delivery(ctx context.Context, topic string, err error) {
	attrs := metric.WithAttributes(attribute.String("topic_kind", topicKind(topic)))
	if err != nil {
		add(ctx, o.deliveryErrors, attrs)
		return
	}
	add(ctx, o.deliveries, attrs)
}

func add(ctx context.Context, c metric.Int64Counter, opts ...metric.AddOption) {
	if c != nil {
		c.Add(ctx, 1, opts...)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func topicKind(topic string) string {
	kind, _, _ := strings.Cut(topic, ":")
	return kind
}

// Package metrics records pipeline metrics through OpenTelemetry.
//
// Instruments (meter "quoted"):
//   - poll.total, poll.failed, poll.skipped: scheduler polls by target
//   - poll.duration: poll latency histogram (seconds)
//   - gateway.upstream.calls: upstream batch calls by provider and outcome
//   - fanout.deliveries, fanout.delivery.errors: websocket pushes by topic kind
//
// Components depend on the Recorder interface; Nop is used when metrics are
// disabled.
package metrics

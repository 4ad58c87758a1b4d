// Package gateway is the bulk fetch gateway between quote consumers and the
// upstream provider.
//
// A Fetch resolves symbols in three tiers:
//
//  1. the in-process cache (cache.Cache)
//  2. the optional shared tier (sharedcache.Store)
//  3. the upstream provider, in batches of Config.BatchSize
//
// Upstream batches run concurrently but never more than
// Config.MaxConcurrency at once across the whole gateway; extra batches wait
// for a slot. Identical batches requested concurrently share one call; the
// shared call is bounded by Config.CallTimeout rather than by any caller's
// context, and each caller stops waiting when its own context ends.
//
// The gateway has no circuit breaker of its own. Pollers wrap Fetch in a
// breaker keyed by their own name so one failing symbol group cannot trip
// the others.
package gateway

// Package scheduler polls named symbol groups (targets) on independent
// cadences.
//
// Each enabled target gets one worker goroutine driven by a time.Ticker; the
// worker polls immediately on start and then on every tick. Workers carry a
// generation number so that a target always has at most one live worker,
// even across rapid updates. A tick that arrives while the previous poll of
// the same target is still running is skipped.
//
// Results are published on an events.Bus (dataUpdate, pollComplete,
// pollError, pollSkipped, healthCheck, started, stopped).
package scheduler

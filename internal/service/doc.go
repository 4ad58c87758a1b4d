// Package service is the composition root of quoted.
//
// It builds the quote pipeline from configuration, connects the optional
// PostgreSQL target store and Redis shared cache, seeds polling targets and
// runs periodic maintenance (cache cleanup, scheduler health checks) on a
// gocron scheduler. Target mutations made through the service are written
// through to the store.
package service

// Package database persists polling targets in PostgreSQL.
//
// The store is optional: when enabled, the service seeds the scheduler from
// the polling_targets table on boot and writes every target mutation made
// through the control API back to it.
package database

// Package httpapi exposes the service over HTTP with gin.
//
// The control API manages the scheduler and its targets, the quote
// endpoints read through the gateway, /api/events streams bus events as
// server-sent events and /ws upgrades to the fan-out websocket protocol.
package httpapi

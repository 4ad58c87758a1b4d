// Package fanout delivers quote, market and news updates to connected
// clients by topic.
//
// Topics:
//   - stock:<SYMBOL>  quote updates for one symbol
//   - market          market overviews
//   - news:<SYMBOL>   headlines about one symbol
//   - news:general    headlines with no symbol
//
// The Hub owns membership and routing and is transport agnostic; WSHandler
// attaches websocket clients to it. The first subscriber of a stock topic
// asks the Coverage to start polling the symbol, and the last one leaving
// releases it.
package fanout

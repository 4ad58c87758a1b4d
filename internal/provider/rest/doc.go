// Package rest is a provider.Provider backed by a JSON REST quote service.
//
// Endpoint:
//
//	GET {baseURL}/quotes?symbols=AAPL,MSFT
//	200 {"quotes":[{"symbol":"AAPL","price":"189.20",...}]}
//
// Non-2xx responses become *APIError, which implements IsRetryable and
// RateLimited so resilience.Executor can classify it.
package rest

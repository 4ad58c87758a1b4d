// Package cache implements the bounded, in-process quote cache.
//
// Entries carry their own TTL and are purged lazily on access or by an
// external sweep calling Cleanup. The cache never holds more than MaxSize
// entries: inserting a new key at capacity evicts the least recently accessed
// entry. Get and Touch count as accesses; Has, Extend and Entry do not.
package cache

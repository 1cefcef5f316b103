// Package cache stores raw provider payloads keyed by enrichment fingerprint.
//
// Each entry carries its own creation time and TTL. Expiry is lazy: an expired
// entry is dropped when it is next read and is indistinguishable from an
// absent one. Three backends implement [Store]: [File] (one JSON document per
// fingerprint, the default), [Redis] (shared across processes) and [Memory].
//
// The cache is an optimization only. Callers treat every failure as a miss.
package cache

// Package cache implements the resolver's three TTL-bounded name caches
// (spec §3 "Caches", §4.3 C3): AnswerCache, CnameCache, and
// AuthoritativeNsCache. All three clamp inserted TTLs into [minTTL, maxTTL]
// and bound the number of distinct names they track with an LRU eviction
// policy, the same shape of cache the teacher resolver's own hand-rolled
// container/list-based Cache approximated before golang-lru/v2 replaced it.
package cache

import "time"

// clampTTL bounds ttl into [min, max]. A non-positive max means unbounded.
func clampTTL(ttl, min, max time.Duration) time.Duration {
	if ttl < min {
		ttl = min
	}
	if max > 0 && ttl > max {
		ttl = max
	}
	return ttl
}

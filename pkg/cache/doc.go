// Package cache provides the in-memory TTL caches shared by every fetch path.
//
// Each data kind gets its own Cache instance (a "tier") with its own capacity
// and TTL: listing pages, gallery detail, resolved image lists, cursor links,
// raw image bytes and encoded proxy artifacts. Tiers are constructed at
// startup and injected into the components that use them; there is no
// package-level cache state.
//
// Features:
//
//   - Get-or-compute with absolute per-entry expiry
//   - LRU eviction once capacity is exceeded
//   - Single-flight: concurrent misses for one key collapse into one compute
//   - Compute failures are never cached (a failing key retries on next call)
//   - Prometheus metrics per tier
//
// # Basic Usage
//
//	listings := cache.New[parser.ListPage]("listing", 100, 5*time.Minute)
//
//	page, err := listings.GetOrCompute(ctx, url, func(ctx context.Context) (parser.ListPage, error) {
//		return fetchAndParse(ctx, url)
//	})
//
// # Metrics
//
//   - eh_cache_hits_total{tier} - Cache hits
//   - eh_cache_misses_total{tier} - Cache misses
//   - eh_cache_evictions_total{tier} - LRU evictions
//   - eh_cache_entries{tier} - Current entry count
//
// Cache state is process-local and in-memory only. It does not survive a
// restart and is not shared across instances; two servers behind a load
// balancer may briefly return different results for the same request.
package cache

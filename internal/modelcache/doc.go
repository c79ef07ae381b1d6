// Package modelcache keeps trained models in memory under a bounded LRU
// policy so repeated inference avoids disk I/O.
//
// Loads happen outside the cache lock. Two callers racing on the same
// uncached id may both load; the first to insert wins and the other result
// is discarded and counted in Stats.DuplicateLoads. Config.DedupeLoads
// collapses such races into a single load instead.
//
// Every artifact path, caller supplied or derived from the model id, is
// resolved (symlinks included) and must lie strictly inside the storage
// root; anything else is rejected with *InvalidPathError before any I/O on
// the target.
package modelcache

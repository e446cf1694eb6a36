// Package history keeps a bounded recent-run window per test identity.
//
// Store is sharded by fingerprint so unrelated tests never contend for the
// same lock. Each window is a fixed-capacity ring: Append is O(1) and evicts
// the oldest run once capacity is reached. Windows are created lazily on the
// first observed run and retained for the process lifetime — pruning is the
// embedder's concern.
//
// Snapshot returns a copy in oldest-to-newest order; the scoring engine only
// ever sees the copy, so appends never race a score computation.
package history

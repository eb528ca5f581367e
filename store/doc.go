// Package store provides the DynamoDB row store backing the tree engine.
//
// # Layout
//
// Node rows live in a single table keyed by id:
//
//	{id S, parent_id S?, forest_id S, depth N, lo N, hi N,
//	 created_at S, root S?, deleting N?}
//
// Three GSIs serve the engine's read paths:
//
//   - forest-lo-index (forest_id, lo): ordered forest scans
//   - parent-lo-index (parent_id, lo): child listings in sibling order
//   - root-index (root, created_at): roots in forest creation order
//
// parent_id and root are sparse: child rows carry parent_id, root rows
// carry the constant root marker. Lo and hi are DynamoDB numbers, which
// are exact decimals; comparisons never pass through binary floating
// point.
//
// # Locking and commits
//
// Update takes a lease item per forest in the lock table (conditional
// put, uuid fencing token, TTL-bounded), runs the mutation, and commits
// the buffered writes through TransactWriteItems with a condition check
// on every held lease — a stolen lease fails the commit instead of
// corrupting the forest. Contention surfaces as [ErrForestLocked].
//
// Commits larger than the DynamoDB transaction cap split by kind:
// oversize delete sets are tombstoned at the subtree root (the deleting
// attribute), logged at warn level, and completed by the stream package;
// oversize put sets fail with [ErrMutationTooLarge] before anything is
// written, because a put set applied across several transactions would
// expose a half-renumbered forest on any mid-sequence failure. In
// practice this caps a single renumbering or subtree relocation at
// MaxTransactItems rows less the lock checks.
//
// # Consistency
//
// Mutation reads use strongly consistent point reads on the base table;
// forest and child scans ride the GSIs, which DynamoDB serves eventually
// consistent only. The forest locks serialize writers, but they do not
// make index reads read-your-writes: a mutation that starts immediately
// after a commit on the same forest can read an index image that misses
// the just-committed rows, and no lease duration bounds that window.
// A stale scan surfaces as wrong neighbor bounds, so callers that mutate
// one forest in rapid succession must pace their writes past index
// propagation (single-digit milliseconds typically, unbounded in the
// worst case); anything stricter needs a store that can read its indexes
// consistently.
package store

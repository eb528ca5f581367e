// Package tree maintains forests of hierarchical records in a shared row
// store using a nested-interval encoding.
//
// Every node carries a fixed-point range [Lo, Hi] that strictly nests
// inside its parent's range and stays disjoint from its siblings'.
// Ancestry, descent, and sibling order are therefore answered by pure
// range comparison, with no recursive traversal.
//
// # Writing
//
// [Engine] is the only writer. It places new nodes with margins on both
// sides so neighbors remain insertable, relocates whole subtrees with a
// single affine remap (cost bounded by the subtree, not the forest), and
// watches range widths with a precision monitor: when a computed range
// gets too tight to subdivide further, the affected forest is rebalanced
// to evenly spaced ranges before the operation completes. Rebalancing is a
// pure renumbering; structure never changes.
//
// Every mutation commits atomically through a [RowStore], holding an
// exclusive lock on each involved forest for the full read-compute-write
// sequence. A failed legality check, allocation, or rebalance rolls back
// completely.
//
// # Reading
//
// [Queries] derives relationships (ancestors, descendants, siblings,
// root, family) from stored ranges and the forest key alone. It needs no
// locks and is independent of the mutator.
//
// # Positions
//
// Nodes are placed relative to a target with one of four positions:
// "first-child", "last-child", "left", "right". String surfaces parse the
// token once at the boundary with [ParsePosition]; anything else fails
// with [ErrInvalidPosition].
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrInvalidMove] - illegal relocation (four wrapped reasons)
//   - [ErrInvalidPosition] - unrecognized position token
//   - [ErrAlreadyInserted] - inserting an already-persisted node
//   - [ErrPrecisionExhausted] - the scale cannot represent the tree; fatal
//   - [ErrNotFound] - node or root lookup miss
//
// Ordering precision is never silently degraded: exhaustion is reported,
// not absorbed.
package tree

package tree

import "context"

// Reader is the read surface the engine needs from the row store. Result
// slices are ordered by Lo ascending, which is preorder within a forest.
type Reader interface {
	// Get returns the node with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Node, error)

	// Forest returns every node sharing the forest id, ordered by Lo.
	Forest(ctx context.Context, forestID string) ([]*Node, error)

	// Children returns the nodes whose stored parent reference equals
	// parentID, ordered by Lo.
	Children(ctx context.Context, parentID string) ([]*Node, error)

	// Roots returns every root node in forest creation order.
	Roots(ctx context.Context) ([]*Node, error)
}

// Txn is the handle a mutation works through. Reads observe the committed
// state; writes buffer until the enclosing Update commits. The engine
// always finishes reading before it starts writing.
type Txn interface {
	Reader

	// Put buffers an insert or full overwrite of a node row.
	Put(n *Node)

	// Delete buffers removal of a node row.
	Delete(id string)
}

// RowStore is the storage capability the tree engine runs against. The
// engine holds no persistent state of its own; everything lives in the
// store.
//
// Update runs fn holding an exclusive lock on every listed forest, then
// commits fn's buffered writes atomically. An error from fn discards the
// buffer and releases the locks; no partial application is ever visible.
// Concurrent readers require snapshot isolation from the backing store to
// avoid observing a half-applied relocation.
type RowStore interface {
	Reader

	Update(ctx context.Context, forestIDs []string, fn func(Txn) error) error
}

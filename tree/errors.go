package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMove is the base error for every rejected relocation.
	// The wrapped variants below carry the specific reason; all of them
	// satisfy errors.Is(err, ErrInvalidMove).
	ErrInvalidMove = errors.New("espalier: invalid move")

	// ErrMoveChildOfSelf is returned when a node is moved under itself.
	ErrMoveChildOfSelf = fmt.Errorf("%w: a node may not be made a child of itself", ErrInvalidMove)

	// ErrMoveChildOfDescendant is returned when a node is moved under one
	// of its own descendants.
	ErrMoveChildOfDescendant = fmt.Errorf("%w: a node may not be made a child of any of its descendants", ErrInvalidMove)

	// ErrMoveSiblingOfSelf is returned when a node is moved beside itself.
	ErrMoveSiblingOfSelf = fmt.Errorf("%w: a node may not be made a sibling of itself", ErrInvalidMove)

	// ErrMoveSiblingOfDescendant is returned when a node is moved beside
	// one of its own descendants.
	ErrMoveSiblingOfDescendant = fmt.Errorf("%w: a node may not be made a sibling of any of its descendants", ErrInvalidMove)

	// ErrInvalidPosition is returned for an unrecognized position token,
	// on insert or move alike. The wrapping site appends the bad token.
	ErrInvalidPosition = errors.New("espalier: an invalid position was given")

	// ErrAlreadyInserted is returned when inserting a node that already
	// has an identity. Persisted nodes are relocated with Move, never
	// inserted twice.
	ErrAlreadyInserted = errors.New("espalier: cannot insert a node which has already been saved")

	// ErrRootSibling is returned when a sibling position names a root
	// node as the reference; roots have no siblings.
	ErrRootSibling = errors.New("espalier: cannot take a sibling position relative to a root node")

	// ErrNotSaved is returned when a relationship query is asked about a
	// node that has never been persisted.
	ErrNotSaved = errors.New("espalier: node has not been saved")

	// ErrPrecisionExhausted is returned when even a full rebalance cannot
	// produce distinguishable boundaries for the tree's node count at the
	// configured scale. It is fatal: the scale must grow before the tree
	// can change shape again.
	ErrPrecisionExhausted = errors.New("espalier: fixed-point scale exhausted for this tree")

	// ErrNotFound is returned when a node or root lookup misses.
	ErrNotFound = errors.New("espalier: node not found")
)

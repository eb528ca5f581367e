package tree

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rebalance renumbers every range in the forest to restore even spacing
// and subdivision headroom. It is a pure renumbering: parent/child
// relationships and sibling order never change, and running it twice in a
// row yields identical boundaries the second time.
//
// The walk is a single top-down pass with one constant increment per
// boundary step: a node takes its lo on entry, recurses through its
// children in sibling order, and closes its hi one increment past the last
// child. Every leaf is exactly one increment wide and every margin and
// sibling gap is exactly one increment. O(n) in the forest size, nothing
// cleverer.
func (e *Engine) Rebalance(ctx context.Context, forestID string) error {
	var count int
	err := e.store.Update(ctx, []string{forestID}, func(txn Txn) error {
		rows, err := txn.Forest(ctx, forestID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("%w: forest %s", ErrNotFound, forestID)
		}
		count = len(rows)

		var root *Node
		children := make(map[string][]*Node, len(rows))
		for _, r := range rows {
			if r.IsRoot() {
				root = r
			} else {
				// rows arrive ordered by lo, so each child list
				// is already in sibling order
				children[r.ParentID] = append(children[r.ParentID], r)
			}
		}
		if root == nil {
			return fmt.Errorf("%w: forest %s has no root", ErrNotFound, forestID)
		}

		span := e.alloc.RootInterval()
		steps := decimal.NewFromInt(2*int64(len(rows)) - 1)
		inc := span.Width().DivRound(steps, e.alloc.Scale+4).RoundDown(e.alloc.Scale)
		if inc.Sign() <= 0 {
			return fmt.Errorf("%w: %d nodes do not fit at scale %d", ErrPrecisionExhausted, len(rows), e.alloc.Scale)
		}

		var walk func(n *Node, lo decimal.Decimal) decimal.Decimal
		walk = func(n *Node, lo decimal.Decimal) decimal.Decimal {
			hi := lo.Add(inc)
			for _, c := range children[n.ID] {
				hi = walk(c, hi)
			}
			n.Lo, n.Hi = lo, hi
			txn.Put(n)
			return hi.Add(inc)
		}
		walk(root, span.Lo)
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("rebalanced forest", "forest", forestID, "nodes", count)
	return nil
}

// RebalanceAll rebalances every forest in the store, one transaction per
// forest.
func (e *Engine) RebalanceAll(ctx context.Context) error {
	roots, err := e.store.Roots(ctx)
	if err != nil {
		return err
	}
	for _, root := range roots {
		if err := e.Rebalance(ctx, root.ForestID); err != nil {
			return err
		}
	}
	return nil
}

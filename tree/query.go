package tree

import (
	"context"
	"fmt"
)

// Queries answers relationship questions from stored ranges and the forest
// key alone. It holds no state beyond the reader it derives from and is
// independent of the mutator; every answer is computed per call from
// current stored values.
type Queries struct {
	reader Reader
}

// NewQueries creates a query engine over any row reader.
func NewQueries(r Reader) *Queries {
	return &Queries{reader: r}
}

func requireSaved(n *Node) error {
	if !n.Saved() {
		return ErrNotSaved
	}
	return nil
}

// Ancestors returns the chain above n: same forest, range strictly
// containing n's. Root-first by default; ascending=true orders
// nearest-parent-first instead.
func (q *Queries) Ancestors(ctx context.Context, n *Node, ascending bool) ([]*Node, error) {
	if err := requireSaved(n); err != nil {
		return nil, err
	}
	rows, err := q.reader.Forest(ctx, n.ForestID)
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, r := range rows {
		if r.Lo.LessThan(n.Lo) && n.Hi.LessThan(r.Hi) {
			out = append(out, r)
		}
	}
	if ascending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Descendants returns everything contained in n's range, in lo order
// (preorder).
func (q *Queries) Descendants(ctx context.Context, n *Node, includeSelf bool) ([]*Node, error) {
	if err := requireSaved(n); err != nil {
		return nil, err
	}
	rows, err := q.reader.Forest(ctx, n.ForestID)
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, r := range rows {
		switch {
		case r.ID == n.ID:
			if includeSelf {
				out = append(out, r)
			}
		case n.Lo.LessThan(r.Lo) && r.Lo.LessThan(n.Hi):
			out = append(out, r)
		}
	}
	return out, nil
}

// DescendantCount returns the number of nodes strictly contained in n's
// range.
func (q *Queries) DescendantCount(ctx context.Context, n *Node) (int, error) {
	desc, err := q.Descendants(ctx, n, false)
	if err != nil {
		return 0, err
	}
	return len(desc), nil
}

// IsLeaf reports whether n has no descendants.
func (q *Queries) IsLeaf(ctx context.Context, n *Node) (bool, error) {
	count, err := q.DescendantCount(ctx, n)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Children returns n's immediate children in sibling order, resolved
// through the stored parent reference rather than re-derived from ranges.
func (q *Queries) Children(ctx context.Context, n *Node) ([]*Node, error) {
	if err := requireSaved(n); err != nil {
		return nil, err
	}
	return q.reader.Children(ctx, n.ID)
}

// Siblings returns the nodes sharing n's parent, in lo order. Roots have
// no siblings.
func (q *Queries) Siblings(ctx context.Context, n *Node, includeSelf bool) ([]*Node, error) {
	if err := requireSaved(n); err != nil {
		return nil, err
	}
	if n.IsRoot() {
		if includeSelf {
			return []*Node{n}, nil
		}
		return nil, nil
	}
	sibs, err := q.reader.Children(ctx, n.ParentID)
	if err != nil {
		return nil, err
	}
	if includeSelf {
		return sibs, nil
	}
	out := make([]*Node, 0, len(sibs))
	for _, s := range sibs {
		if s.ID != n.ID {
			out = append(out, s)
		}
	}
	return out, nil
}

// PreviousSibling returns the nearest sibling before n, or nil.
func (q *Queries) PreviousSibling(ctx context.Context, n *Node) (*Node, error) {
	sibs, err := q.Siblings(ctx, n, false)
	if err != nil {
		return nil, err
	}
	var prev *Node
	for _, s := range sibs {
		if s.Hi.LessThan(n.Lo) {
			prev = s
		}
	}
	return prev, nil
}

// NextSibling returns the nearest sibling after n, or nil.
func (q *Queries) NextSibling(ctx context.Context, n *Node) (*Node, error) {
	sibs, err := q.Siblings(ctx, n, false)
	if err != nil {
		return nil, err
	}
	for _, s := range sibs {
		if n.Hi.LessThan(s.Lo) {
			return s, nil
		}
	}
	return nil, nil
}

// Root returns the root of n's tree (n itself for a root).
func (q *Queries) Root(ctx context.Context, n *Node) (*Node, error) {
	if err := requireSaved(n); err != nil {
		return nil, err
	}
	if n.IsRoot() {
		return n, nil
	}
	return q.RootNode(ctx, n.ForestID)
}

// RootNode returns the root of the given forest. The forest key is the
// root's own id, so this is a point read.
func (q *Queries) RootNode(ctx context.Context, forestID string) (*Node, error) {
	root, err := q.reader.Get(ctx, forestID)
	if err != nil {
		return nil, err
	}
	if !root.IsRoot() || root.ForestID != forestID {
		return nil, fmt.Errorf("%w: no root for forest %s", ErrNotFound, forestID)
	}
	return root, nil
}

// RootNodes returns every root, in forest creation order.
func (q *Queries) RootNodes(ctx context.Context) ([]*Node, error) {
	return q.reader.Roots(ctx)
}

// Family returns the connected chain from n's root down through n's own
// subtree: ancestors, n itself, and descendants, in lo order.
func (q *Queries) Family(ctx context.Context, n *Node) ([]*Node, error) {
	anc, err := q.Ancestors(ctx, n, false)
	if err != nil {
		return nil, err
	}
	desc, err := q.Descendants(ctx, n, true)
	if err != nil {
		return nil, err
	}
	return append(anc, desc...), nil
}

// IsDescendantOf reports whether a's range nests strictly inside b's in
// the same forest. With includeSelf, a node also counts as its own
// descendant. Pure range comparison; no store access.
func IsDescendantOf(a, b *Node, includeSelf bool) bool {
	if includeSelf && a.Saved() && a.ID == b.ID {
		return true
	}
	return b.contains(a)
}

// IsAncestorOf is the mirror of IsDescendantOf.
func IsAncestorOf(a, b *Node, includeSelf bool) bool {
	return IsDescendantOf(b, a, includeSelf)
}

package tree

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jacentio/espalier/interval"
)

// Node is one row of the forest. The Lo/Hi pair is a strictly nested
// fixed-point range: a node's range contains every descendant's range and
// is disjoint from every sibling's, so ancestry and ordering are decided
// by range comparison alone.
type Node struct {
	// ID is the node's identity, assigned at first persist.
	ID string

	// ParentID is a weak back-reference to the parent row. Empty for
	// roots.
	ParentID string

	// ForestID groups every node of one tree and equals the root's own
	// ID.
	ForestID string

	// Depth is the distance from the root; roots sit at 0.
	Depth int

	// Lo and Hi are the node's range boundaries, quantized to the
	// engine's scale. Lo < Hi always.
	Lo decimal.Decimal
	Hi decimal.Decimal

	// CreatedAt orders forests by creation.
	CreatedAt time.Time
}

// Saved reports whether the node has been persisted.
func (n *Node) Saved() bool {
	return n != nil && n.ID != ""
}

// IsRoot reports whether the node founds its own forest.
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// IsChild reports whether the node has a parent.
func (n *Node) IsChild() bool {
	return !n.IsRoot()
}

// Interval returns the node's range.
func (n *Node) Interval() interval.Interval {
	return interval.Interval{Lo: n.Lo, Hi: n.Hi}
}

// contains reports whether other's range nests strictly inside n's, within
// the same forest.
func (n *Node) contains(other *Node) bool {
	return n.ForestID == other.ForestID &&
		n.Lo.LessThan(other.Lo) && other.Hi.LessThan(n.Hi)
}

// Position is where a node lands relative to a target: inside it as its
// first or last child, or beside it as its previous or next sibling.
type Position int

const (
	FirstChild Position = iota
	LastChild
	Left
	Right
)

var positionTokens = map[string]Position{
	"first-child": FirstChild,
	"last-child":  LastChild,
	"left":        Left,
	"right":       Right,
}

// ParsePosition converts a position token into its closed variant.
// Unrecognized input fails with ErrInvalidPosition naming the token.
func ParsePosition(token string) (Position, error) {
	p, ok := positionTokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPosition, token)
	}
	return p, nil
}

// isChild reports whether the position places the node inside the target.
func (p Position) isChild() bool {
	return p == FirstChild || p == LastChild
}

// valid reports whether p is one of the four recognized positions.
func (p Position) valid() bool {
	return p >= FirstChild && p <= Right
}

func (p Position) String() string {
	switch p {
	case FirstChild:
		return "first-child"
	case LastChild:
		return "last-child"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("position(%d)", int(p))
	}
}

package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jacentio/espalier/interval"
)

// Config holds tuning for the tree engine.
type Config struct {
	// Scale is the number of decimal places boundaries are quantized to.
	// Default: interval.DefaultScale.
	Scale int32

	// Headroom is the tightness threshold, in smallest-step units, below
	// which a freshly computed range triggers a rebalance.
	// Default: interval.DefaultHeadroom.
	Headroom int64

	// Logger receives rebalance and precision events. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Scale:    interval.DefaultScale,
		Headroom: interval.DefaultHeadroom,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Scale <= 0 {
		c.Scale = interval.DefaultScale
	}
	if c.Headroom <= 0 {
		c.Headroom = interval.DefaultHeadroom
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine is the only writer of tree state. It validates mutation legality,
// allocates ranges, applies affine remaps to relocated subtrees, and
// rebalances when the precision monitor flags a tight range. Every
// mutation commits atomically through the RowStore.
type Engine struct {
	store   RowStore
	alloc   interval.Allocator
	monitor interval.Monitor
	logger  *slog.Logger
}

// New creates an Engine over the given row store.
func New(store RowStore, cfg Config) *Engine {
	cfg.validate()
	return &Engine{
		store:   store,
		alloc:   interval.NewAllocator(cfg.Scale),
		monitor: interval.NewMonitor(cfg.Scale, cfg.Headroom),
		logger:  cfg.Logger,
	}
}

// Insert places an unsaved node relative to the target. An empty targetID
// founds a new forest with node as its root. With persist=false the node's
// fields are computed but nothing is written and no identity is assigned.
//
// If the gap at the requested position is too small to subdivide, the
// target's forest is rebalanced once and the insert retried; only a truly
// exhausted scale surfaces, as ErrPrecisionExhausted.
func (e *Engine) Insert(ctx context.Context, node *Node, targetID string, pos Position, persist bool) (*Node, error) {
	if node == nil {
		node = &Node{}
	}
	if node.Saved() {
		return nil, ErrAlreadyInserted
	}
	if !pos.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPosition, pos)
	}

	if targetID == "" {
		return e.insertRoot(ctx, node, persist)
	}

	for attempt := 0; ; attempt++ {
		landed, err := e.tryInsert(ctx, node, targetID, pos, persist)
		if err == nil {
			if persist && e.monitor.IsTight(landed) {
				e.logger.Info("tight range after insert, rebalancing",
					"node", node.ID,
					"forest", node.ForestID,
				)
				if err := e.Rebalance(ctx, node.ForestID); err != nil {
					return nil, err
				}
				fresh, err := e.store.Get(ctx, node.ID)
				if err != nil {
					return nil, err
				}
				*node = *fresh
			}
			return node, nil
		}
		if !errors.Is(err, interval.ErrInsufficientPrecision) {
			return nil, err
		}
		if attempt > 0 {
			return nil, fmt.Errorf("%w: no room at %s of node %s", ErrPrecisionExhausted, pos, targetID)
		}
		target, gerr := e.store.Get(ctx, targetID)
		if gerr != nil {
			return nil, gerr
		}
		if rerr := e.Rebalance(ctx, target.ForestID); rerr != nil {
			return nil, rerr
		}
	}
}

// InsertAt is string-token sugar for Insert with persist=true.
func (e *Engine) InsertAt(ctx context.Context, node *Node, targetID, position string) (*Node, error) {
	pos, err := ParsePosition(position)
	if err != nil {
		return nil, err
	}
	return e.Insert(ctx, node, targetID, pos, true)
}

// insertRoot founds a new forest with node as its root.
func (e *Engine) insertRoot(ctx context.Context, node *Node, persist bool) (*Node, error) {
	iv := e.alloc.RootInterval()
	node.ParentID = ""
	node.Depth = 0
	node.Lo, node.Hi = iv.Lo, iv.Hi

	if !persist {
		// Identity (and with it the forest key) is only minted at
		// first persist.
		return node, nil
	}

	node.ID = uuid.NewString()
	node.ForestID = node.ID
	node.CreatedAt = time.Now().UTC()

	err := e.store.Update(ctx, nil, func(txn Txn) error {
		txn.Put(node)
		return nil
	})
	if err != nil {
		node.ID = ""
		node.ForestID = ""
		node.CreatedAt = time.Time{}
		return nil, err
	}
	return node, nil
}

// errStaleLockSet signals that a row landed in a forest outside the held
// lock set between the pre-read and lock acquisition, for example through
// a concurrent re-root. Mutations recompute the set and retry.
var errStaleLockSet = errors.New("espalier: lock set is stale")

func lockedForest(forests []string, forestID string) bool {
	for _, f := range forests {
		if f == forestID {
			return true
		}
	}
	return false
}

// tryInsert performs one placement attempt and reports the landed range.
func (e *Engine) tryInsert(ctx context.Context, node *Node, targetID string, pos Position, persist bool) (interval.Interval, error) {
	for {
		target, err := e.store.Get(ctx, targetID)
		if err != nil {
			return interval.Interval{}, err
		}

		if !persist {
			if err := e.placeNew(ctx, e.store, node, target, pos); err != nil {
				return interval.Interval{}, err
			}
			return node.Interval(), nil
		}

		forests := []string{target.ForestID}
		var landed interval.Interval
		err = e.store.Update(ctx, forests, func(txn Txn) error {
			target, err := txn.Get(ctx, targetID)
			if err != nil {
				return err
			}
			if !lockedForest(forests, target.ForestID) {
				return errStaleLockSet
			}
			if err := e.placeNew(ctx, txn, node, target, pos); err != nil {
				return err
			}
			node.ID = uuid.NewString()
			node.CreatedAt = time.Now().UTC()
			landed = node.Interval()
			txn.Put(node)
			return nil
		})
		if errors.Is(err, errStaleLockSet) {
			continue
		}
		if err != nil {
			node.ID = ""
			node.CreatedAt = time.Time{}
			return interval.Interval{}, err
		}
		return landed, nil
	}
}

// placeNew computes the stored fields for a node entering the tree
// relative to target. It does not write.
func (e *Engine) placeNew(ctx context.Context, r Reader, node, target *Node, pos Position) error {
	lower, upper, err := e.insertionBounds(ctx, r, target, pos, "")
	if err != nil {
		return err
	}
	iv, err := e.alloc.Allocate(lower, upper, 1)
	if err != nil {
		return err
	}

	node.Lo, node.Hi = iv.Lo, iv.Hi
	node.ForestID = target.ForestID
	if pos.isChild() {
		node.ParentID = target.ID
		node.Depth = target.Depth + 1
	} else {
		node.ParentID = target.ParentID
		node.Depth = target.Depth
	}
	return nil
}

// insertionBounds returns the open gap a new or relocated range must land
// in, per the position relative to target. exclude names a node whose
// current range is ignored during neighbor lookup (the node being moved).
func (e *Engine) insertionBounds(ctx context.Context, r Reader, target *Node, pos Position, exclude string) (lower, upper decimal.Decimal, err error) {
	switch pos {
	case FirstChild:
		kids, kerr := e.childrenExcluding(ctx, r, target.ID, exclude)
		if kerr != nil {
			return lower, upper, kerr
		}
		lower = target.Lo
		upper = target.Hi
		if len(kids) > 0 {
			upper = kids[0].Lo
		}
	case LastChild:
		kids, kerr := e.childrenExcluding(ctx, r, target.ID, exclude)
		if kerr != nil {
			return lower, upper, kerr
		}
		lower = target.Lo
		upper = target.Hi
		if len(kids) > 0 {
			lower = kids[len(kids)-1].Hi
		}
	case Left, Right:
		if target.IsRoot() {
			return lower, upper, ErrRootSibling
		}
		parent, perr := r.Get(ctx, target.ParentID)
		if perr != nil {
			return lower, upper, perr
		}
		sibs, serr := e.childrenExcluding(ctx, r, target.ParentID, exclude)
		if serr != nil {
			return lower, upper, serr
		}
		if pos == Left {
			lower = parent.Lo
			for _, s := range sibs {
				if s.Hi.LessThan(target.Lo) {
					lower = s.Hi
				}
			}
			upper = target.Lo
		} else {
			lower = target.Hi
			upper = parent.Hi
			for _, s := range sibs {
				if s.Lo.GreaterThan(target.Hi) {
					upper = s.Lo
					break
				}
			}
		}
	default:
		return lower, upper, fmt.Errorf("%w: %s", ErrInvalidPosition, pos)
	}
	return lower, upper, nil
}

func (e *Engine) childrenExcluding(ctx context.Context, r Reader, parentID, exclude string) ([]*Node, error) {
	kids, err := r.Children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if exclude == "" {
		return kids, nil
	}
	out := kids[:0]
	for _, k := range kids {
		if k.ID != exclude {
			out = append(out, k)
		}
	}
	return out, nil
}

// Move relocates a persisted node, and with it its whole subtree, to the
// given position relative to target. An empty targetID turns the node into
// the root of a fresh forest. The subtree's ranges are carried by a single
// affine remap, so the cost is bounded by the subtree size, not the
// forest.
func (e *Engine) Move(ctx context.Context, nodeID, targetID string, pos Position) error {
	if !pos.valid() {
		return fmt.Errorf("%w: %s", ErrInvalidPosition, pos)
	}

	for attempt := 0; ; attempt++ {
		landed, destForest, err := e.tryMove(ctx, nodeID, targetID, pos)
		if err == nil {
			if destForest != "" && e.monitor.IsTight(landed) {
				e.logger.Info("tight range after move, rebalancing",
					"node", nodeID,
					"forest", destForest,
				)
				return e.Rebalance(ctx, destForest)
			}
			return nil
		}
		if !errors.Is(err, interval.ErrInsufficientPrecision) {
			return err
		}
		if attempt > 0 || targetID == "" {
			return fmt.Errorf("%w: no room at %s of node %s", ErrPrecisionExhausted, pos, targetID)
		}
		target, gerr := e.store.Get(ctx, targetID)
		if gerr != nil {
			return gerr
		}
		if rerr := e.Rebalance(ctx, target.ForestID); rerr != nil {
			return rerr
		}
	}
}

// MoveTo is string-token sugar for Move that refreshes the caller's node
// from the store afterwards.
func (e *Engine) MoveTo(ctx context.Context, node *Node, targetID, position string) error {
	if !node.Saved() {
		return ErrNotSaved
	}
	pos, err := ParsePosition(position)
	if err != nil {
		return err
	}
	if err := e.Move(ctx, node.ID, targetID, pos); err != nil {
		return err
	}
	fresh, err := e.store.Get(ctx, node.ID)
	if err != nil {
		return err
	}
	*node = *fresh
	return nil
}

// tryMove performs one relocation attempt. It reports the landed range and
// the destination forest so the caller can run the tightness check.
func (e *Engine) tryMove(ctx context.Context, nodeID, targetID string, pos Position) (interval.Interval, string, error) {
	for {
		landed, destForest, err := e.tryMoveOnce(ctx, nodeID, targetID, pos)
		if errors.Is(err, errStaleLockSet) {
			continue
		}
		return landed, destForest, err
	}
}

func (e *Engine) tryMoveOnce(ctx context.Context, nodeID, targetID string, pos Position) (interval.Interval, string, error) {
	node0, err := e.store.Get(ctx, nodeID)
	if err != nil {
		return interval.Interval{}, "", err
	}

	forests := []string{node0.ForestID}
	if targetID != "" {
		target0, terr := e.store.Get(ctx, targetID)
		if terr != nil {
			return interval.Interval{}, "", terr
		}
		if target0.ForestID != node0.ForestID {
			forests = append(forests, target0.ForestID)
		}
	}

	var landed interval.Interval
	var destForest string
	err = e.store.Update(ctx, forests, func(txn Txn) error {
		node, err := txn.Get(ctx, nodeID)
		if err != nil {
			return err
		}
		if !lockedForest(forests, node.ForestID) {
			return errStaleLockSet
		}
		var target *Node
		if targetID != "" {
			if target, err = txn.Get(ctx, targetID); err != nil {
				return err
			}
			if !lockedForest(forests, target.ForestID) {
				return errStaleLockSet
			}
		}
		if err := checkMoveLegality(node, target, pos); err != nil {
			return err
		}

		rows, err := txn.Forest(ctx, node.ForestID)
		if err != nil {
			return err
		}
		var subtree []*Node
		for _, r := range rows {
			if node.contains(r) {
				subtree = append(subtree, r)
			}
		}

		var dest interval.Interval
		var newParentID, newForest string
		var newDepth int
		if target == nil {
			if node.IsRoot() {
				// Already the root of its own forest.
				return nil
			}
			dest = e.alloc.RootInterval()
			newParentID = ""
			newDepth = 0
			newForest = node.ID
		} else {
			lower, upper, berr := e.insertionBounds(ctx, txn, target, pos, node.ID)
			if berr != nil {
				return berr
			}
			dest, err = e.alloc.Allocate(lower, upper, 1+len(subtree))
			if err != nil {
				return err
			}
			if pos.isChild() {
				newParentID = target.ID
				newDepth = target.Depth + 1
			} else {
				newParentID = target.ParentID
				newDepth = target.Depth
			}
			newForest = target.ForestID
		}

		if err := remapSubtree(node, subtree, dest, e.alloc.Scale); err != nil {
			return err
		}

		depthOffset := newDepth - node.Depth
		node.ParentID = newParentID
		node.Depth = newDepth
		node.ForestID = newForest
		txn.Put(node)
		for _, d := range subtree {
			d.Depth += depthOffset
			d.ForestID = newForest
			txn.Put(d)
		}

		landed = dest
		destForest = newForest
		return nil
	})
	if err != nil {
		return interval.Interval{}, "", err
	}
	return landed, destForest, nil
}

// checkMoveLegality enforces the relocation rules: a node may not become a
// child or sibling of itself or of any of its descendants, and roots have
// no siblings. A nil target (re-root) is always legal.
func checkMoveLegality(node, target *Node, pos Position) error {
	if target == nil {
		return nil
	}
	self := node.ID == target.ID
	ofDescendant := node.contains(target)
	if pos.isChild() {
		if self {
			return ErrMoveChildOfSelf
		}
		if ofDescendant {
			return ErrMoveChildOfDescendant
		}
	} else {
		if self {
			return ErrMoveSiblingOfSelf
		}
		if ofDescendant {
			return ErrMoveSiblingOfDescendant
		}
		if target.IsRoot() {
			return ErrRootSibling
		}
	}
	return nil
}

// remapSubtree carries node and its descendants into dest with one affine
// transform, preserving relative order and nesting. Quantization can
// collapse boundaries that were distinct in the source; that is detected
// here, before anything is written, and reported as an insufficient
// precision signal so the caller rebalances and retries.
func remapSubtree(node *Node, subtree []*Node, dest interval.Interval, scale int32) error {
	rm := interval.NewRemap(node.Interval(), dest, scale)

	bounds := make([]decimal.Decimal, 0, 2+2*len(subtree))
	bounds = append(bounds, node.Lo, node.Hi)
	for _, d := range subtree {
		bounds = append(bounds, d.Lo, d.Hi)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].LessThan(bounds[j]) })
	prev := rm.Apply(bounds[0])
	for _, b := range bounds[1:] {
		cur := rm.Apply(b)
		if !prev.LessThan(cur) {
			return interval.ErrInsufficientPrecision
		}
		prev = cur
	}

	for _, d := range subtree {
		d.Lo = rm.Apply(d.Lo)
		d.Hi = rm.Apply(d.Hi)
	}
	node.Lo, node.Hi = dest.Lo, dest.Hi
	return nil
}

// Delete removes a persisted node together with its entire contained
// range: descendants go with it, in one atomic commit. Deleting a root
// deletes its whole forest.
func (e *Engine) Delete(ctx context.Context, nodeID string) error {
	for {
		node0, err := e.store.Get(ctx, nodeID)
		if err != nil {
			return err
		}
		forests := []string{node0.ForestID}
		err = e.store.Update(ctx, forests, func(txn Txn) error {
			node, err := txn.Get(ctx, nodeID)
			if err != nil {
				return err
			}
			if !lockedForest(forests, node.ForestID) {
				return errStaleLockSet
			}
			rows, err := txn.Forest(ctx, node.ForestID)
			if err != nil {
				return err
			}
			for _, r := range rows {
				if r.ID == node.ID || node.contains(r) {
					txn.Delete(r.ID)
				}
			}
			return nil
		})
		if errors.Is(err, errStaleLockSet) {
			continue
		}
		return err
	}
}

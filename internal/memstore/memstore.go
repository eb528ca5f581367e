// Package memstore provides an in-memory tree.RowStore for tests and
// dry-run experimentation. Not for production use: state lives in the
// process and dies with it.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jacentio/espalier/tree"
)

// Store is an in-memory row store. Rows are stored by value so callers
// never alias internal state; reads hand out copies.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]tree.Node
	seq   map[string]int64
	next  int64

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		nodes: make(map[string]tree.Node),
		seq:   make(map[string]int64),
		locks: make(map[string]*sync.Mutex),
	}
}

// All returns a copy of every stored row, ordered by forest then Lo.
// Test support.
func (s *Store) All() []*tree.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tree.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		n := n
		out = append(out, &n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ForestID != out[j].ForestID {
			return out[i].ForestID < out[j].ForestID
		}
		return out[i].Lo.LessThan(out[j].Lo)
	})
	return out
}

// Len returns the number of stored rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Get implements tree.Reader.
func (s *Store) Get(ctx context.Context, id string) (*tree.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tree.ErrNotFound, id)
	}
	return &n, nil
}

// Forest implements tree.Reader; results are ordered by Lo ascending.
func (s *Store) Forest(ctx context.Context, forestID string) ([]*tree.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*tree.Node
	for _, n := range s.nodes {
		if n.ForestID == forestID {
			n := n
			out = append(out, &n)
		}
	}
	sortByLo(out)
	return out, nil
}

// Children implements tree.Reader; results are ordered by Lo ascending.
func (s *Store) Children(ctx context.Context, parentID string) ([]*tree.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*tree.Node
	for _, n := range s.nodes {
		if parentID != "" && n.ParentID == parentID {
			n := n
			out = append(out, &n)
		}
	}
	sortByLo(out)
	return out, nil
}

// Roots implements tree.Reader; results are ordered by insertion.
func (s *Store) Roots(ctx context.Context) ([]*tree.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*tree.Node
	for _, n := range s.nodes {
		if n.ParentID == "" {
			n := n
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out, nil
}

// Update implements tree.RowStore. Locks are taken per forest in sorted
// order so two concurrent mutations touching the same pair of forests
// cannot deadlock. fn's reads observe committed state; its writes buffer
// and apply in one step after fn returns.
func (s *Store) Update(ctx context.Context, forestIDs []string, fn func(tree.Txn) error) error {
	held := s.acquire(forestIDs)
	defer func() {
		for _, m := range held {
			m.Unlock()
		}
	}()

	txn := &memTxn{
		store: s,
		puts:  make(map[string]tree.Node),
		dels:  make(map[string]bool),
	}
	if err := fn(txn); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range txn.dels {
		delete(s.nodes, id)
		delete(s.seq, id)
	}
	for id, n := range txn.puts {
		if _, exists := s.seq[id]; !exists {
			s.next++
			s.seq[id] = s.next
		}
		s.nodes[id] = n
	}
	return nil
}

func (s *Store) acquire(forestIDs []string) []*sync.Mutex {
	ids := make([]string, 0, len(forestIDs))
	seen := make(map[string]bool, len(forestIDs))
	for _, id := range forestIDs {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	held := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		s.lockMu.Lock()
		m, ok := s.locks[id]
		if !ok {
			m = &sync.Mutex{}
			s.locks[id] = m
		}
		s.lockMu.Unlock()
		m.Lock()
		held = append(held, m)
	}
	return held
}

// memTxn buffers writes against a Store.
type memTxn struct {
	store *Store
	puts  map[string]tree.Node
	dels  map[string]bool
}

func (t *memTxn) Get(ctx context.Context, id string) (*tree.Node, error) {
	return t.store.Get(ctx, id)
}

func (t *memTxn) Forest(ctx context.Context, forestID string) ([]*tree.Node, error) {
	return t.store.Forest(ctx, forestID)
}

func (t *memTxn) Children(ctx context.Context, parentID string) ([]*tree.Node, error) {
	return t.store.Children(ctx, parentID)
}

func (t *memTxn) Roots(ctx context.Context) ([]*tree.Node, error) {
	return t.store.Roots(ctx)
}

func (t *memTxn) Put(n *tree.Node) {
	delete(t.dels, n.ID)
	t.puts[n.ID] = *n
}

func (t *memTxn) Delete(id string) {
	delete(t.puts, id)
	t.dels[id] = true
}

func sortByLo(nodes []*tree.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Lo.LessThan(nodes[j].Lo)
	})
}

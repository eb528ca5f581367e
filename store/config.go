package store

import "time"

// Config holds configuration for the Store.
type Config struct {
	// NodeTable is the name of the node table.
	// Default: "espalier_nodes"
	NodeTable string

	// LockTable is the name of the forest lock table.
	// Default: "espalier_forest_locks"
	LockTable string

	// ForestIndex is the GSI projecting (forest_id, lo) for ordered
	// forest scans. Default: "forest-lo-index"
	ForestIndex string

	// ParentIndex is the sparse GSI projecting (parent_id, lo) for
	// child listings. Default: "parent-lo-index"
	ParentIndex string

	// RootIndex is the sparse GSI projecting (root, created_at) for
	// listing roots in forest creation order. Default: "root-index"
	RootIndex string

	// LockTTL bounds how long a crashed writer can hold a forest lock
	// before it may be stolen. It must comfortably exceed the longest
	// expected mutation plus index propagation. Default: 30s.
	LockTTL time.Duration

	// MaxTransactItems caps the size of a single transactional commit.
	// Default and hard ceiling: 100 (the DynamoDB limit). Cascade
	// deletes larger than this are tombstoned and completed by the
	// stream handler; mutations that would write more rows than this
	// fail with ErrMutationTooLarge before anything is written.
	MaxTransactItems int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		NodeTable:        "espalier_nodes",
		LockTable:        "espalier_forest_locks",
		ForestIndex:      "forest-lo-index",
		ParentIndex:      "parent-lo-index",
		RootIndex:        "root-index",
		LockTTL:          30 * time.Second,
		MaxTransactItems: 100,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.NodeTable == "" {
		c.NodeTable = "espalier_nodes"
	}
	if c.LockTable == "" {
		c.LockTable = "espalier_forest_locks"
	}
	if c.ForestIndex == "" {
		c.ForestIndex = "forest-lo-index"
	}
	if c.ParentIndex == "" {
		c.ParentIndex = "parent-lo-index"
	}
	if c.RootIndex == "" {
		c.RootIndex = "root-index"
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.MaxTransactItems < 2 {
		c.MaxTransactItems = 100
	}
	if c.MaxTransactItems > 100 {
		c.MaxTransactItems = 100
	}
}

// Package idgen generates the 64-bit monotonic record identifiers used by
// the Storage Engine (spec §3 MemoryRecord.id): timestamp‖shard‖sequence,
// Snowflake-style. Ids are monotonic per process only — clock skew across
// processes is a known hazard the design notes call out explicitly; callers
// that need cross-process ordering guarantees must not rely on id order
// alone.
package idgen

import "github.com/bwmarrin/snowflake"

// Generator allocates ids for one shard (machine/process).
type Generator struct {
	node *snowflake.Node
}

// New creates a Generator for the given shard number (0-1023).
func New(shard int64) (*Generator, error) {
	node, err := snowflake.NewNode(shard)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

// Next returns a fresh, monotonic-per-process id.
func (g *Generator) Next() int64 {
	return g.node.Generate().Int64()
}

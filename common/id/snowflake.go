// Package id mints the int64 row ids for aggregations, drawer entries and
// stored payloads.
package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Each binary owns a node id so ids minted by concurrent processes never collide.
const (
	NodeServer     int64 = 1
	NodeEngine     int64 = 2
	NodeAggregator int64 = 3
)

var (
	mu   sync.RWMutex
	node *snowflake.Node
)

// Init sets the generator node. Later calls are no-ops, so test suites may
// call it from every BeforeSuite.
func Init(nodeID int64) error {
	mu.Lock()
	defer mu.Unlock()
	if node != nil {
		return nil
	}
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("creating snowflake node %d: %w", nodeID, err)
	}
	node = n
	return nil
}

// New returns a time-ordered id. It panics when Init was never called.
func New() int64 {
	mu.RLock()
	defer mu.RUnlock()
	if node == nil {
		panic("id: New called before Init")
	}
	return node.Generate().Int64()
}

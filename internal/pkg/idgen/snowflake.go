package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// DefaultNodeID is used when Initialize was never called
const DefaultNodeID int64 = 1

var (
	node    *snowflake.Node
	nodeErr error
	once    sync.Once
)

// Initialize sets up the Snowflake ID generator with a node ID.
// Only the first call has any effect.
func Initialize(nodeID int64) error {
	once.Do(func() {
		node, nodeErr = snowflake.NewNode(nodeID)
		if nodeErr != nil {
			nodeErr = fmt.Errorf("snowflake node %d: %w", nodeID, nodeErr)
		}
	})
	return nodeErr
}

// GenerateID generates a new Snowflake ID as a string.
// User ids are opaque to callers; the snowflake form just keeps them sortable by creation.
func GenerateID() string {
	if err := Initialize(DefaultNodeID); err != nil || node == nil {
		panic(fmt.Sprintf("idgen: generator unavailable: %v", err))
	}
	return node.Generate().String()
}

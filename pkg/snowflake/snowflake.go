// Package snowflake generates time-ordered 63-bit ids for the stores that
// have no database sequence of their own.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

var ErrInvalidNode = errors.New("node number must be between 0 and 1023")

type Node struct {
	mu   sync.Mutex
	now  func() int64
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	return newNode(node, func() int64 { return time.Now().UnixMilli() })
}

func newNode(node int64, now func() int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, ErrInvalidNode
	}
	return &Node{node: node, now: now}, nil
}

// Generate returns an id greater than every id this node returned before,
// even if the wall clock steps backwards.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if now < n.time {
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			// Sequence exhausted for this millisecond; borrow the next one.
			now++
		}
	} else {
		n.step = 0
	}
	n.time = now

	return ((now - epoch) << timeShift) | (n.node << nodeShift) | n.step
}

package dispatch

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cuemby/flock/pkg/types"
)

// ErrInvalidPartition is returned for a negative target or non-positive width
var ErrInvalidPartition = errors.New("invalid partition")

// Partition tiles [0, target) into range blocks of width units. The last
// block holds the remainder. A zero target yields no blocks.
func Partition(target, width int64) ([]types.WorkBlock, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: width %d must be positive", ErrInvalidPartition, width)
	}
	if target < 0 {
		return nil, fmt.Errorf("%w: target %d must not be negative", ErrInvalidPartition, target)
	}

	n := target / width
	if target%width != 0 {
		n++
	}
	blocks := make([]types.WorkBlock, 0, n)
	for from := int64(0); from < target; from += width {
		to := from + width
		if to > target {
			to = target
		}
		blocks = append(blocks, types.RangeBlock(from, to))
	}
	return blocks, nil
}

// Queue hands out pre-built blocks to concurrent clients. Every block is
// delivered at most once; the queue is filled at creation and never grows.
type Queue struct {
	blocks []types.WorkBlock
	next   atomic.Int64
}

// NewQueue creates a queue over blocks
func NewQueue(blocks []types.WorkBlock) *Queue {
	return &Queue{blocks: blocks}
}

// TryDequeue returns the next block without blocking, or false when drained
func (q *Queue) TryDequeue() (types.WorkBlock, bool) {
	i := q.next.Add(1) - 1
	if i >= int64(len(q.blocks)) {
		return types.WorkBlock{}, false
	}
	return q.blocks[i], true
}

// Len returns the number of blocks the queue was created with
func (q *Queue) Len() int {
	return len(q.blocks)
}

// Remaining returns the number of blocks not yet handed out
func (q *Queue) Remaining() int {
	taken := q.next.Load()
	if taken >= int64(len(q.blocks)) {
		return 0
	}
	return len(q.blocks) - int(taken)
}

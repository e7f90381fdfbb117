// Package shm - BlockingPriorityQueue: single-producer-multi-consumer
// queue with a normal channel (a pair of StackQueueRaw push/pull stacks
// swapped on drain to preserve FIFO ordering while keeping push and pop on
// separate locks) and a priority channel (a CircularBufferRaw drained
// ahead of the normal one).
package shm

import (
	"sync"
	"time"
)

const defaultRingCapacity = 1 << 20 // 1 MiB priority ring, generous for control frames

type BlockingPriorityQueue struct {
	pushMu sync.Mutex
	pullMu sync.Mutex
	cond   *sync.Cond
	condMu sync.Mutex

	pushStack *StackQueueRaw
	pullStack *StackQueueRaw
	stackCap  int

	priority *CircularBufferRaw

	empty bool
}

func NewBlockingPriorityQueue(stackCapacity int) *BlockingPriorityQueue {
	q := &BlockingPriorityQueue{
		pushStack: NewStackQueueRaw(stackCapacity),
		pullStack: NewStackQueueRaw(stackCapacity),
		stackCap:  stackCapacity,
		priority:  NewCircularBufferRaw(defaultRingCapacity),
		empty:     true,
	}
	q.cond = sync.NewCond(&q.condMu)
	return q
}

// Push appends to the push-stack. If the queue was observed empty, deliver
// directly under the pull lock instead of waiting for the next swap,
// avoiding a wake/swap cycle on the common single-item case.
func (q *BlockingPriorityQueue) Push(data []byte) {
	q.condMu.Lock()
	wasEmpty := q.empty
	q.condMu.Unlock()

	if wasEmpty {
		q.pullMu.Lock()
		if q.pullStack.Empty() {
			_ = q.pullStack.Push(data)
			q.pullMu.Unlock()
			q.signalNonEmpty()
			return
		}
		q.pullMu.Unlock()
	}

	q.pushMu.Lock()
	_ = q.pushStack.Push(data)
	q.pushMu.Unlock()
	q.signalNonEmpty()
}

// PushPriority bypasses the normal channel entirely.
func (q *BlockingPriorityQueue) PushPriority(data []byte) {
	q.pullMu.Lock()
	_ = q.priority.Push(data)
	q.pullMu.Unlock()
	q.signalNonEmpty()
}

func (q *BlockingPriorityQueue) signalNonEmpty() {
	q.condMu.Lock()
	q.empty = false
	q.cond.Signal()
	q.condMu.Unlock()
}

// tryPopLocked performs one priority-then-pull attempt without blocking;
// caller holds no locks. Returns ok=false if nothing is available.
func (q *BlockingPriorityQueue) tryPopLocked() ([]byte, bool) {
	q.pullMu.Lock()
	if !q.priority.Empty() {
		data, err := q.priority.Pop()
		q.pullMu.Unlock()
		return data, err == nil
	}
	if !q.pullStack.Empty() {
		data, ok := q.pullStack.Pop()
		q.pullMu.Unlock()
		return data, ok
	}
	// pull side empty: swap with push side, taking both locks briefly.
	q.pushMu.Lock()
	if q.pushStack.Len() == 0 {
		q.pushMu.Unlock()
		q.pullMu.Unlock()
		return nil, false
	}
	q.pullStack, q.pushStack = q.pushStack, q.pullStack
	q.pushStack.Reset()
	q.pushMu.Unlock()

	q.pullStack.Reverse() // restore FIFO order: oldest pushed pops first
	data, ok := q.pullStack.Pop()
	q.pullMu.Unlock()
	return data, ok
}

// TryPop returns immediately with the same priority-then-pull ordering,
// without blocking.
func (q *BlockingPriorityQueue) TryPop() ([]byte, bool) {
	data, ok := q.tryPopLocked()
	if !ok {
		q.condMu.Lock()
		if q.pullEmptyUnlocked() {
			q.empty = true
		}
		q.condMu.Unlock()
	}
	return data, ok
}

func (q *BlockingPriorityQueue) pullEmptyUnlocked() bool {
	q.pullMu.Lock()
	defer q.pullMu.Unlock()
	return q.priority.Empty() && q.pullStack.Empty() && q.peekPushEmpty()
}

func (q *BlockingPriorityQueue) peekPushEmpty() bool {
	q.pushMu.Lock()
	defer q.pushMu.Unlock()
	return q.pushStack.Len() == 0
}

// Pop drains priority first, then pull; blocks on the condition variable
// when fully empty, so producers never miss a wake. All empty-flag
// transitions are serialized by the condition lock.
func (q *BlockingPriorityQueue) Pop() []byte {
	for {
		if data, ok := q.tryPopLocked(); ok {
			return data
		}
		q.condMu.Lock()
		for q.empty {
			q.cond.Wait()
		}
		q.condMu.Unlock()
	}
}

// PopTimeout waits at most d for an item; returns ok=false on timeout.
func (q *BlockingPriorityQueue) PopTimeout(d time.Duration) ([]byte, bool) {
	deadline := time.Now().Add(d)
	for {
		if data, ok := q.tryPopLocked(); ok {
			return data, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		if q.waitOrTimeout(remaining) {
			continue // woken, try again
		}
		return nil, false // timed out while waiting
	}
}

// waitOrTimeout waits on the condition variable for at most d, returning
// true if woken (not necessarily signaled - a conservative poll is fine
// since the caller re-checks tryPopLocked).
func (q *BlockingPriorityQueue) waitOrTimeout(d time.Duration) bool {
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		q.condMu.Lock()
		q.cond.Broadcast()
		q.condMu.Unlock()
	})
	defer timer.Stop()

	q.condMu.Lock()
	if q.empty {
		go func() {
			<-time.After(d)
			close(done)
		}()
		q.cond.Wait()
	}
	q.condMu.Unlock()

	select {
	case <-done:
		return false
	default:
		return true
	}
}

package relay

import (
	"context"
	"sync"

	"rtdrelay/internal/application/port"
)

// SnapshotQueue bridges the worker loop to the presentation consumer with
// latest-value-wins semantics: at most one snapshot is ever pending, a newer
// one replaces it, because the consumer only wants the freshest state. Error
// and status messages are never collapsed and are delivered before any
// pending snapshot.
type SnapshotQueue struct {
	mu      sync.Mutex
	snap    *port.Message
	backlog []port.Message

	wake chan struct{}
}

func NewSnapshotQueue() *SnapshotQueue {
	return &SnapshotQueue{wake: make(chan struct{}, 1)}
}

// Publish enqueues a message. Never blocks.
func (q *SnapshotQueue) Publish(m port.Message) error {
	q.mu.Lock()
	if m.Kind == port.KindSnapshot {
		q.snap = &m
	} else {
		q.backlog = append(q.backlog, m)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Poll returns the next pending message without blocking.
func (q *SnapshotQueue) Poll() (port.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.backlog) > 0 {
		m := q.backlog[0]
		q.backlog = q.backlog[1:]
		return m, true
	}
	if q.snap != nil {
		m := *q.snap
		q.snap = nil
		return m, true
	}
	return port.Message{}, false
}

// Receive blocks until a message is pending or ctx is done.
func (q *SnapshotQueue) Receive(ctx context.Context) (port.Message, error) {
	for {
		if m, ok := q.Poll(); ok {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return port.Message{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len reports how many messages are currently pending.
func (q *SnapshotQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.backlog)
	if q.snap != nil {
		n++
	}
	return n
}

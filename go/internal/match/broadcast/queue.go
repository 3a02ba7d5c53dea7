package broadcast

import "sync"

// Queue is a bounded, close-once message buffer drained by a single writer.
// Sinks embed it to get non-blocking Send semantics.
type Queue struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewQueue creates a queue holding up to size messages
func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan []byte, size)}
}

// Push queues msg, failing if the queue is full or closed
func (q *Queue) Push(msg []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrSinkClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close stops accepting messages. Queued messages remain readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// C is the channel the writer drains; it is closed after Close once empty
func (q *Queue) C() <-chan []byte {
	return q.ch
}

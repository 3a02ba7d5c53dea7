package gateway

import (
	"github.com/aakashthirteen/football-stars/go/internal/match/broadcast"
	"github.com/google/uuid"
)

// queueSink is a subscriber backed by a bounded queue that a single
// connection writer drains
type queueSink struct {
	id string
	*broadcast.Queue
}

func newQueueSink(size int) *queueSink {
	return &queueSink{
		id:    uuid.New().String(),
		Queue: broadcast.NewQueue(size),
	}
}

func (s *queueSink) ID() string {
	return s.id
}

func (s *queueSink) Send(msg []byte) error {
	return s.Push(msg)
}

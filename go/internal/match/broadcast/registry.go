package broadcast

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrSinkClosed is returned by a sink that can no longer accept messages
var ErrSinkClosed = errors.New("sink closed")

// ErrSinkFull is returned by a sink whose send buffer is full
var ErrSinkFull = errors.New("sink send buffer full")

// Sink is one viewer's output channel.
//
// Send queues a message without blocking; any error means the sink has
// permanently failed and will be pruned. Close releases the sink after
// already-queued messages are flushed.
type Sink interface {
	ID() string
	Send(msg []byte) error
	Close()
}

// Registry maps match ids to the sinks subscribed to them
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]map[Sink]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]map[Sink]struct{}),
	}
}

// Subscribe adds sink to the match's subscriber set
func (r *Registry) Subscribe(matchID string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sinks[matchID] == nil {
		r.sinks[matchID] = make(map[Sink]struct{})
	}
	r.sinks[matchID][sink] = struct{}{}

	log.Debug().
		Str("match_id", matchID).
		Str("subscriber_id", sink.ID()).
		Int("subscribers", len(r.sinks[matchID])).
		Msg("subscriber registered")
}

// Unsubscribe removes sink from the match. The entry is pruned once empty.
func (r *Registry) Unsubscribe(matchID string, sink Sink) {
	if r.remove(matchID, sink) {
		sink.Close()
		log.Debug().
			Str("match_id", matchID).
			Str("subscriber_id", sink.ID()).
			Msg("subscriber unregistered")
	}
}

func (r *Registry) remove(matchID string, sink Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sinks[matchID]
	if !ok {
		return false
	}
	if _, ok := set[sink]; !ok {
		return false
	}
	delete(set, sink)
	if len(set) == 0 {
		delete(r.sinks, matchID)
	}
	return true
}

// Broadcast queues msg on every sink of the match and returns how many
// accepted it. Failed sinks are pruned; other sinks are unaffected.
func (r *Registry) Broadcast(matchID string, msg []byte) int {
	r.mu.RLock()
	set := r.sinks[matchID]
	targets := make([]Sink, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			log.Warn().
				Err(err).
				Str("match_id", matchID).
				Str("subscriber_id", s.ID()).
				Msg("pruning failed subscriber")
			r.Unsubscribe(matchID, s)
			continue
		}
		delivered++
	}
	return delivered
}

// CloseMatch drops every subscriber of the match, letting each flush what it already queued
func (r *Registry) CloseMatch(matchID string) {
	r.mu.Lock()
	set := r.sinks[matchID]
	delete(r.sinks, matchID)
	r.mu.Unlock()

	for s := range set {
		s.Close()
	}
	if len(set) > 0 {
		log.Info().Str("match_id", matchID).Int("subscribers", len(set)).Msg("closed match subscribers")
	}
}

// Count returns the number of subscribers of the match
func (r *Registry) Count(matchID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks[matchID])
}

// Total returns the number of subscribers across all matches
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.sinks {
		n += len(set)
	}
	return n
}

// Stats returns per-match subscriber counts
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	perMatch := make(map[string]int, len(r.sinks))
	for id, set := range r.sinks {
		perMatch[id] = len(set)
		total += len(set)
	}
	return map[string]interface{}{
		"total_subscribers": total,
		"active_matches":    len(r.sinks),
		"match_subscribers": perMatch,
	}
}

// Package eventstest provides an in-memory events.Store for tests and local runs.
package eventstest

import (
	"context"
	"sync"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/google/uuid"
)

// Store keeps events in memory, dropping duplicates by id.
type Store struct {
	mu      sync.RWMutex
	events  []events.Event
	seen    map[uuid.UUID]struct{}
	queries int

	// FailAppend, when set, is returned by the next append calls until cleared.
	FailAppend error
}

func NewStore(seed ...events.Event) *Store {
	s := &Store{seen: make(map[uuid.UUID]struct{})}
	for _, e := range seed {
		s.add(e)
	}
	return s
}

func (s *Store) Append(ctx context.Context, event events.Event) error {
	return s.AppendBatch(ctx, []events.Event{event})
}

func (s *Store) AppendBatch(ctx context.Context, batch []events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return s.FailAppend
	}
	for _, e := range batch {
		s.add(e)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q events.Query) ([]events.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.queries++
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for _, e := range s.events {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	events.SortByTime(out)
	return out, nil
}

// SetFailAppend toggles append failures under the store lock.
func (s *Store) SetFailAppend(err error) {
	s.mu.Lock()
	s.FailAppend = err
	s.mu.Unlock()
}

// Len returns the number of distinct stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// All returns a time-ordered copy of every stored event.
func (s *Store) All() []events.Event {
	s.mu.RLock()
	out := append([]events.Event(nil), s.events...)
	s.mu.RUnlock()
	events.SortByTime(out)
	return out
}

// Queries returns how many Query calls were served.
func (s *Store) Queries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries
}

func (s *Store) add(e events.Event) {
	if _, ok := s.seen[e.ID]; ok {
		return
	}
	s.seen[e.ID] = struct{}{}
	s.events = append(s.events, e)
}

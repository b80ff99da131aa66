// Package events defines the immutable behavioral event model and the store
// contract shared by the collector and the analytical engines.
package events

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	"github.com/google/uuid"
)

// SchemaVersion is stamped on every event the collector produces.
const SchemaVersion = "1.0"

// Context describes where an event originated.
type Context struct {
	Platform string `json:"platform,omitempty"`
	Source   string `json:"source,omitempty"`
	Device   string `json:"device,omitempty"`
	Location string `json:"location,omitempty"`
}

type Metadata struct {
	SchemaVersion string `json:"schema_version"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Event is immutable once persisted. Filtered, Route and Alerts are set by
// collector rules before the event is buffered.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	UserID     string          `json:"user_id"`
	SessionID  string          `json:"session_id"`
	Type       enums.EventType `json:"event_type"`
	Name       string          `json:"event_name"`
	Timestamp  time.Time       `json:"timestamp"`
	Properties map[string]any  `json:"properties,omitempty"`
	Context    Context         `json:"context"`
	Metadata   Metadata        `json:"metadata"`
	Filtered   bool            `json:"filtered,omitempty"`
	Route      string          `json:"route,omitempty"`
	Alerts     []string        `json:"alerts,omitempty"`
}

// Store is the append-only event store.
type Store interface {
	Append(ctx context.Context, event Event) error
	AppendBatch(ctx context.Context, events []Event) error
	// Query returns matching events ordered by timestamp.
	Query(ctx context.Context, q Query) ([]Event, error)
}

// Query selects events in a range. An event matches the name filter when its
// name is in EventNames or its type is in Types; both empty selects every event.
type Query struct {
	EventNames      []string
	Types           []enums.EventType
	UserIDs         []string
	Range           DateRange
	IncludeFiltered bool
}

// Matches applies the query to a single event.
func (q Query) Matches(e Event) bool {
	if !q.Range.Contains(e.Timestamp) {
		return false
	}
	if e.Filtered && !q.IncludeFiltered {
		return false
	}
	if len(q.UserIDs) > 0 && !containsString(q.UserIDs, e.UserID) {
		return false
	}
	if len(q.EventNames) == 0 && len(q.Types) == 0 {
		return true
	}
	if containsString(q.EventNames, e.Name) {
		return true
	}
	for _, t := range q.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}

// SortByTime orders events by timestamp, breaking ties by id so the order is stable
// across reads.
func SortByTime(evts []Event) {
	sort.SliceStable(evts, func(i, j int) bool {
		if !evts[i].Timestamp.Equal(evts[j].Timestamp) {
			return evts[i].Timestamp.Before(evts[j].Timestamp)
		}
		return strings.Compare(evts[i].ID.String(), evts[j].ID.String()) < 0
	})
}

// GroupByUser partitions time-ordered events per user and returns the user ids sorted.
func GroupByUser(evts []Event) (map[string][]Event, []string) {
	byUser := make(map[string][]Event)
	for _, e := range evts {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}
	users := make([]string, 0, len(byUser))
	for id := range byUser {
		users = append(users, id)
	}
	sort.Strings(users)
	return byUser, users
}

// Names returns the distinct event names in first-seen order.
func Names(evts []Event) []string {
	seen := make(map[string]struct{}, len(evts))
	var out []string
	for _, e := range evts {
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		out = append(out, e.Name)
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

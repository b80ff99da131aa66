package eventstest

import (
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	"github.com/google/uuid"
)

// Event builds a user_action event with a fresh id.
func Event(user, name string, at time.Time) events.Event {
	return events.Event{
		ID:        uuid.New(),
		UserID:    user,
		Name:      name,
		Type:      enums.EventTypeUserAction,
		Timestamp: at.UTC(),
		Metadata:  events.Metadata{SchemaVersion: events.SchemaVersion},
	}
}

// WithProps returns e with the given properties merged.
func WithProps(e events.Event, props map[string]any) events.Event {
	merged := make(map[string]any, len(e.Properties)+len(props))
	for k, v := range e.Properties {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}
	e.Properties = merged
	return e
}

// WithType returns e with its type overridden.
func WithType(e events.Event, t enums.EventType) events.Event {
	e.Type = t
	return e
}

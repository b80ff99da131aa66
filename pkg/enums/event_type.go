package enums

import "fmt"

// EventType classifies a behavioral event. It is derived from the event name
// prefix by the collector and stored in the event_type column.
type EventType string

const (
	EventTypeUserAction  EventType = "user_action"
	EventTypeBusiness    EventType = "business"
	EventTypeSystem      EventType = "system"
	EventTypePerformance EventType = "performance"
	EventTypeError       EventType = "error"
)

var validEventTypes = []EventType{
	EventTypeUserAction,
	EventTypeBusiness,
	EventTypeSystem,
	EventTypePerformance,
	EventTypeError,
}

// String implements fmt.Stringer.
func (e EventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EventType.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts the raw string to EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

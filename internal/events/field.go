package events

import (
	"strings"
	"time"
)

// Lookup resolves a dotted field path against the event. Top-level names map to
// event attributes; "context.", "metadata." and "properties." descend into the
// respective sections. Any other path is resolved inside Properties.
func (e Event) Lookup(path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	switch path {
	case "id":
		return e.ID.String(), true
	case "user_id":
		return e.UserID, true
	case "session_id":
		return e.SessionID, true
	case "event_type":
		return string(e.Type), true
	case "event_name":
		return e.Name, true
	case "timestamp":
		return e.Timestamp.Format(time.RFC3339Nano), true
	case "filtered":
		return e.Filtered, true
	case "route":
		return e.Route, true
	}

	head, rest, _ := strings.Cut(path, ".")
	switch head {
	case "context":
		return e.Context.lookup(rest)
	case "metadata":
		switch rest {
		case "schema_version":
			return e.Metadata.SchemaVersion, true
		case "correlation_id":
			return e.Metadata.CorrelationID, e.Metadata.CorrelationID != ""
		}
		return nil, false
	case "properties":
		return lookupMap(e.Properties, rest)
	}
	return lookupMap(e.Properties, path)
}

func (c Context) lookup(field string) (any, bool) {
	var v string
	switch field {
	case "platform":
		v = c.Platform
	case "source":
		v = c.Source
	case "device":
		v = c.Device
	case "location":
		v = c.Location
	default:
		return nil, false
	}
	return v, v != ""
}

func lookupMap(m map[string]any, path string) (any, bool) {
	if m == nil || path == "" {
		return nil, false
	}
	if v, ok := m[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	child, ok := m[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupMap(child, rest)
}

// SetField writes a value at a dotted path. Only route, context fields and
// properties are writable.
func (e *Event) SetField(path string, value any) bool {
	head, rest, _ := strings.Cut(strings.TrimSpace(path), ".")
	switch head {
	case "route":
		s, ok := value.(string)
		if ok {
			e.Route = s
		}
		return ok
	case "context":
		s, ok := value.(string)
		if !ok {
			return false
		}
		switch rest {
		case "platform":
			e.Context.Platform = s
		case "source":
			e.Context.Source = s
		case "device":
			e.Context.Device = s
		case "location":
			e.Context.Location = s
		default:
			return false
		}
		return true
	case "properties":
		path = rest
	case "id", "user_id", "session_id", "event_type", "event_name", "timestamp", "metadata", "filtered":
		return false
	}
	if path == "" {
		return false
	}
	if e.Properties == nil {
		e.Properties = map[string]any{}
	}
	e.Properties[path] = value
	return true
}

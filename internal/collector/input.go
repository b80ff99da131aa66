package collector

import (
	"regexp"
	"strings"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const errorCodeProperty = "error_code"

var eventNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Input is one raw interaction handed to the collector.
type Input struct {
	EventID       string         `json:"event_id,omitempty"`
	UserID        string         `json:"user_id"`
	EventName     string         `json:"event_name"`
	Properties    map[string]any `json:"properties,omitempty"`
	Context       events.Context `json:"context"`
	ErrorCode     string         `json:"error_code,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	OccurredAt    *time.Time     `json:"occurred_at,omitempty"`
}

// rejection reasons, used as metric labels.
const (
	reasonMissingUser   = "missing_user_id"
	reasonMissingName   = "missing_event_name"
	reasonInvalidName   = "invalid_event_name"
	reasonPropsTooLarge = "properties_too_large"
	reasonPropsEncoding = "properties_not_serializable"
	reasonInvalidID     = "invalid_event_id"
)

type rejection struct {
	reason string
	err    *pkgerrors.Error
}

func validateInput(in Input, maxPropertiesBytes int) *rejection {
	if strings.TrimSpace(in.UserID) == "" {
		return reject(reasonMissingUser, "user_id is required", map[string]any{"field": "user_id"})
	}
	if strings.TrimSpace(in.EventName) == "" {
		return reject(reasonMissingName, "event_name is required", map[string]any{"field": "event_name"})
	}
	if !eventNamePattern.MatchString(in.EventName) {
		return reject(reasonInvalidName, "event_name may only contain letters, digits and underscores",
			map[string]any{"field": "event_name", "value": in.EventName})
	}
	if in.EventID != "" {
		if _, err := uuid.Parse(in.EventID); err != nil {
			return reject(reasonInvalidID, "event_id must be a uuid", map[string]any{"field": "event_id"})
		}
	}
	if len(in.Properties) > 0 {
		raw, err := json.Marshal(in.Properties)
		if err != nil {
			return reject(reasonPropsEncoding, "properties must be JSON serializable", map[string]any{"field": "properties"})
		}
		if len(raw) > maxPropertiesBytes {
			return reject(reasonPropsTooLarge, "properties exceed the size limit", map[string]any{
				"field": "properties",
				"size":  len(raw),
				"limit": maxPropertiesBytes,
			})
		}
	}
	return nil
}

func reject(reason, msg string, details map[string]any) *rejection {
	return &rejection{
		reason: reason,
		err:    pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details),
	}
}

// Classify maps an event name to its type. A non-empty error code, given
// directly or as the error_code property, always yields an error event.
func Classify(eventName, errorCode string, props map[string]any) enums.EventType {
	if errorCode != "" || hasErrorCode(props) {
		return enums.EventTypeError
	}
	switch {
	case strings.HasPrefix(eventName, "business_"):
		return enums.EventTypeBusiness
	case strings.HasPrefix(eventName, "system_"):
		return enums.EventTypeSystem
	case strings.HasPrefix(eventName, "performance_"):
		return enums.EventTypePerformance
	default:
		return enums.EventTypeUserAction
	}
}

func hasErrorCode(props map[string]any) bool {
	v, ok := props[errorCodeProperty]
	if !ok || v == nil {
		return false
	}
	s, isString := v.(string)
	return !isString || strings.TrimSpace(s) != ""
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+4)
	for k, v := range in {
		out[k] = v
	}
	return out
}

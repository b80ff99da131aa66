package bqstore

import (
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// eventRow mirrors the behavior_events BigQuery schema.
type eventRow struct {
	EventID       string               `bigquery:"event_id"`
	UserID        string               `bigquery:"user_id"`
	SessionID     cbigquery.NullString `bigquery:"session_id"`
	EventType     string               `bigquery:"event_type"`
	EventName     string               `bigquery:"event_name"`
	OccurredAt    time.Time            `bigquery:"occurred_at"`
	IngestedAt    time.Time            `bigquery:"ingested_at"`
	Platform      cbigquery.NullString `bigquery:"platform"`
	Source        cbigquery.NullString `bigquery:"source"`
	Device        cbigquery.NullString `bigquery:"device"`
	Location      cbigquery.NullString `bigquery:"location"`
	SchemaVersion string               `bigquery:"schema_version"`
	CorrelationID cbigquery.NullString `bigquery:"correlation_id"`
	Properties    cbigquery.NullJSON   `bigquery:"properties"`
	Filtered      bool                 `bigquery:"filtered"`
	Route         cbigquery.NullString `bigquery:"route"`
	Alerts        []string             `bigquery:"alerts"`
}

// readRow is the projection returned by the dedupe query.
type readRow struct {
	EventID        string               `bigquery:"event_id"`
	UserID         string               `bigquery:"user_id"`
	SessionID      cbigquery.NullString `bigquery:"session_id"`
	EventType      string               `bigquery:"event_type"`
	EventName      string               `bigquery:"event_name"`
	OccurredAt     time.Time            `bigquery:"occurred_at"`
	Platform       cbigquery.NullString `bigquery:"platform"`
	Source         cbigquery.NullString `bigquery:"source"`
	Device         cbigquery.NullString `bigquery:"device"`
	Location       cbigquery.NullString `bigquery:"location"`
	SchemaVersion  string               `bigquery:"schema_version"`
	CorrelationID  cbigquery.NullString `bigquery:"correlation_id"`
	PropertiesJSON cbigquery.NullString `bigquery:"properties_json"`
	Filtered       bool                 `bigquery:"filtered"`
	Route          cbigquery.NullString `bigquery:"route"`
	Alerts         []string             `bigquery:"alerts"`
}

func toRow(e events.Event, ingestedAt time.Time) (eventRow, error) {
	props, err := EncodeJSON(e.Properties)
	if err != nil {
		return eventRow{}, fmt.Errorf("event %s properties: %w", e.ID, err)
	}
	return eventRow{
		EventID:       e.ID.String(),
		UserID:        e.UserID,
		SessionID:     nullString(e.SessionID),
		EventType:     string(e.Type),
		EventName:     e.Name,
		OccurredAt:    e.Timestamp.UTC(),
		IngestedAt:    ingestedAt.UTC(),
		Platform:      nullString(e.Context.Platform),
		Source:        nullString(e.Context.Source),
		Device:        nullString(e.Context.Device),
		Location:      nullString(e.Context.Location),
		SchemaVersion: e.Metadata.SchemaVersion,
		CorrelationID: nullString(e.Metadata.CorrelationID),
		Properties:    props,
		Filtered:      e.Filtered,
		Route:         nullString(e.Route),
		Alerts:        e.Alerts,
	}, nil
}

func fromRow(r readRow) (events.Event, error) {
	id, err := uuid.Parse(r.EventID)
	if err != nil {
		return events.Event{}, fmt.Errorf("event_id %q: %w", r.EventID, err)
	}
	eventType, err := enums.ParseEventType(r.EventType)
	if err != nil {
		return events.Event{}, err
	}
	var props map[string]any
	if r.PropertiesJSON.Valid && r.PropertiesJSON.StringVal != "" && r.PropertiesJSON.StringVal != "null" {
		if err := json.Unmarshal([]byte(r.PropertiesJSON.StringVal), &props); err != nil {
			return events.Event{}, fmt.Errorf("event %s properties: %w", id, err)
		}
	}
	return events.Event{
		ID:         id,
		UserID:     r.UserID,
		SessionID:  r.SessionID.StringVal,
		Type:       eventType,
		Name:       r.EventName,
		Timestamp:  r.OccurredAt.UTC(),
		Properties: props,
		Context: events.Context{
			Platform: r.Platform.StringVal,
			Source:   r.Source.StringVal,
			Device:   r.Device.StringVal,
			Location: r.Location.StringVal,
		},
		Metadata: events.Metadata{
			SchemaVersion: r.SchemaVersion,
			CorrelationID: r.CorrelationID.StringVal,
		},
		Filtered: r.Filtered,
		Route:    r.Route.StringVal,
		Alerts:   r.Alerts,
	}, nil
}

func nullString(v string) cbigquery.NullString {
	return cbigquery.NullString{StringVal: v, Valid: v != ""}
}

// EncodeJSON serializes a payload for a BigQuery JSON column. Empty payloads are NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case map[string]any:
		if len(value) == 0 {
			return cbigquery.NullJSON{}, nil
		}
	case []byte:
		if len(value) == 0 {
			return cbigquery.NullJSON{}, nil
		}
		return cbigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	}
	marshaled, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(marshaled)}, nil
}

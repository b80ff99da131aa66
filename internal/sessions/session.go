// Package sessions tracks per-user visits. At most one session is open per user;
// a session closes explicitly or after an inactivity gap.
package sessions

import (
	"context"
	"time"
)

// Session is a bounded sequence of one user's events.
type Session struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Start           time.Time      `json:"start"`
	End             *time.Time     `json:"end,omitempty"`
	DurationMs      *int64         `json:"duration_ms,omitempty"`
	Platform        string         `json:"platform,omitempty"`
	Source          string         `json:"source,omitempty"`
	LastActivity    time.Time      `json:"last_activity"`
	EventCount      int            `json:"event_count"`
	EventNames      []string       `json:"event_names,omitempty"`
	ConversionCount int            `json:"conversion_count"`
	Properties      map[string]any `json:"properties,omitempty"`
}

// Store persists open sessions. Get returns a NOT_FOUND error for unknown ids;
// OpenForUser returns nil without error when the user has no open session.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	OpenForUser(ctx context.Context, userID string) (*Session, error)
	ListOpen(ctx context.Context) ([]*Session, error)
}

// Record updates the running counters for one event.
func (s *Session) Record(eventName string, at time.Time, conversion bool) {
	s.EventCount++
	if !containsName(s.EventNames, eventName) {
		s.EventNames = append(s.EventNames, eventName)
	}
	if conversion {
		s.ConversionCount++
	}
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
}

// Idle reports whether the session saw no activity for longer than gap.
func (s *Session) Idle(now time.Time, gap time.Duration) bool {
	return gap > 0 && now.Sub(s.LastActivity) > gap
}

// Age returns the time since the session started.
func (s *Session) Age(now time.Time) time.Duration {
	if now.Before(s.Start) {
		return 0
	}
	return now.Sub(s.Start)
}

// Close finalizes end, duration and the property snapshot.
func (s *Session) Close(at time.Time) {
	if at.Before(s.LastActivity) {
		at = s.LastActivity
	}
	end := at.UTC()
	dur := end.Sub(s.Start).Milliseconds()
	if dur < 0 {
		dur = 0
	}
	s.End = &end
	s.DurationMs = &dur
	if s.Properties == nil {
		s.Properties = map[string]any{}
	}
	s.Properties["event_count"] = s.EventCount
	s.Properties["distinct_events"] = len(s.EventNames)
	s.Properties["conversion_count"] = s.ConversionCount
	if s.Platform != "" {
		s.Properties["platform"] = s.Platform
	}
	if s.Source != "" {
		s.Properties["source"] = s.Source
	}
}

// Clone returns a deep-enough copy for handing out of a store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.EventNames = append([]string(nil), s.EventNames...)
	if s.Properties != nil {
		out.Properties = make(map[string]any, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = v
		}
	}
	if s.End != nil {
		end := *s.End
		out.End = &end
	}
	if s.DurationMs != nil {
		d := *s.DurationMs
		out.DurationMs = &d
	}
	return &out
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

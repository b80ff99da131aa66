// Package funnels reconstructs per-user journeys through ordered step
// sequences and reports step conversion, dropoffs, segments and A/B tests.
package funnels

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Step is one stage of a funnel. An event matches when its name equals
// EventName and every condition holds.
type Step struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	EventName  string             `json:"event_name"`
	Conditions []events.Condition `json:"conditions,omitempty"`
	Order      int                `json:"order"`
	Required   bool               `json:"required"`
}

// Matches reports whether e satisfies the step.
func (s Step) Matches(e events.Event) bool {
	return e.Name == s.EventName && events.MatchAll(s.Conditions, e)
}

// Funnel is immutable once defined.
type Funnel struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	Steps      []Step        `json:"steps"`
	TimeWindow time.Duration `json:"-"`
	CreatedAt  time.Time     `json:"created_at"`
}

type funnelJSON struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Steps             []Step    `json:"steps"`
	TimeWindowSeconds int64     `json:"time_window_seconds"`
	CreatedAt         time.Time `json:"created_at"`
}

func (f Funnel) MarshalJSON() ([]byte, error) {
	return json.Marshal(funnelJSON{
		ID:                f.ID,
		Name:              f.Name,
		Steps:             f.Steps,
		TimeWindowSeconds: int64(f.TimeWindow / time.Second),
		CreatedAt:         f.CreatedAt,
	})
}

func (f *Funnel) UnmarshalJSON(data []byte) error {
	var raw funnelJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Funnel{
		ID:         raw.ID,
		Name:       raw.Name,
		Steps:      raw.Steps,
		TimeWindow: time.Duration(raw.TimeWindowSeconds) * time.Second,
		CreatedAt:  raw.CreatedAt,
	}
	return nil
}

// EventNames returns the distinct step event names in step order.
func (f Funnel) EventNames() []string {
	seen := make(map[string]struct{}, len(f.Steps))
	names := make([]string, 0, len(f.Steps))
	for _, s := range f.Steps {
		if _, ok := seen[s.EventName]; ok {
			continue
		}
		seen[s.EventName] = struct{}{}
		names = append(names, s.EventName)
	}
	return names
}

// NewFunnel validates a definition and returns it with steps sorted by order.
// Steps without an id get "step_<order>".
func NewFunnel(name string, steps []Step, window time.Duration) (Funnel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Funnel{}, invalid("funnel name is required", nil)
	}
	if len(steps) == 0 {
		return Funnel{}, invalid("funnel requires at least one step", nil)
	}
	if window <= 0 {
		return Funnel{}, invalid("time window must be positive", map[string]any{"time_window": window.String()})
	}
	if window%time.Second != 0 {
		return Funnel{}, invalid("time window must be whole seconds", map[string]any{"time_window": window.String()})
	}

	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	orders := make(map[int]struct{}, len(sorted))
	ids := make(map[string]struct{}, len(sorted))
	for i := range sorted {
		s := &sorted[i]
		s.Name = strings.TrimSpace(s.Name)
		s.EventName = strings.TrimSpace(s.EventName)
		if s.ID == "" {
			s.ID = fmt.Sprintf("step_%d", s.Order)
		}
		if s.Name == "" {
			return Funnel{}, invalid("step name is required", map[string]any{"order": s.Order})
		}
		if s.EventName == "" {
			return Funnel{}, invalid("step event_name is required", map[string]any{"step": s.Name})
		}
		if _, dup := orders[s.Order]; dup {
			return Funnel{}, invalid("step order values must be unique", map[string]any{"order": s.Order})
		}
		orders[s.Order] = struct{}{}
		if _, dup := ids[s.ID]; dup {
			return Funnel{}, invalid("step ids must be unique", map[string]any{"id": s.ID})
		}
		ids[s.ID] = struct{}{}
		for _, c := range s.Conditions {
			if err := c.Validate(); err != nil {
				return Funnel{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid step condition").
					WithDetails(map[string]any{"step": s.Name})
			}
		}
	}

	return Funnel{
		ID:         uuid.New(),
		Name:       name,
		Steps:      sorted,
		TimeWindow: window,
	}, nil
}

func invalid(msg string, details map[string]any) error {
	err := pkgerrors.New(pkgerrors.CodeValidation, msg)
	if details != nil {
		return err.WithDetails(details)
	}
	return err
}

func notFound(id string) error {
	return pkgerrors.New(pkgerrors.CodeFunnelNotFound, "funnel not found").
		WithDetails(map[string]any{"funnel_id": id})
}

package funnels

import (
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
)

// Journey is one user's realized progress through a funnel.
type Journey struct {
	UserID           string             `json:"user_id"`
	CompletedStepIDs []string           `json:"completed_step_ids"`
	DropoffStepID    string             `json:"dropoff_step_id,omitempty"`
	ConversionTimeMs *int64             `json:"conversion_time_ms,omitempty"`
	IsConverted      bool               `json:"is_converted"`
	Start            *time.Time         `json:"start,omitempty"`
	State            enums.JourneyState `json:"state"`
	// Reached counts the steps the walk got past, matched or skipped.
	Reached int `json:"reached"`
	// MatchedAt holds the matched timestamp per step index, nil when unmatched.
	MatchedAt []*time.Time `json:"-"`
}

// progressedPast reports whether the journey got beyond step i.
func (j Journey) progressedPast(i int) bool {
	return j.Reached > i
}

func (j Journey) matched(i int) *time.Time {
	if i < 0 || i >= len(j.MatchedAt) {
		return nil
	}
	return j.MatchedAt[i]
}

// BuildUserJourney walks the funnel's steps over the user's events, which
// must be sorted by time. Each step takes the first matching event after the
// previous match that lies within TimeWindow of the journey start. A missing
// required step ends the walk as the dropoff; a missing optional step is
// skipped.
func BuildUserJourney(userID string, evts []events.Event, f Funnel) Journey {
	j := Journey{
		UserID:           userID,
		CompletedStepIDs: []string{},
		State:            enums.JourneyNotStarted,
		MatchedAt:        make([]*time.Time, len(f.Steps)),
	}

	cursor := 0
	var last time.Time
	for i, step := range f.Steps {
		idx := -1
		for k := cursor; k < len(evts); k++ {
			e := evts[k]
			if j.Start != nil && e.Timestamp.Sub(*j.Start) > f.TimeWindow {
				break
			}
			if step.Matches(e) {
				idx = k
				break
			}
		}

		if idx < 0 {
			if step.Required {
				j.DropoffStepID = step.ID
				if j.Start != nil {
					j.State = enums.JourneyDroppedOff
				}
				return j
			}
			j.Reached = i + 1
			continue
		}

		at := evts[idx].Timestamp
		if j.Start == nil {
			start := at
			j.Start = &start
		}
		j.MatchedAt[i] = &at
		j.CompletedStepIDs = append(j.CompletedStepIDs, step.ID)
		j.Reached = i + 1
		j.State = enums.JourneyInStep
		last = at
		cursor = idx + 1
	}

	if j.Start == nil {
		// every step optional and none matched
		return j
	}
	j.IsConverted = true
	j.State = enums.JourneyCompleted
	ms := last.Sub(*j.Start).Milliseconds()
	j.ConversionTimeMs = &ms
	return j
}

// Settle marks a dropped journey as still in progress when its window has
// not closed by asOf.
func (j *Journey) Settle(asOf time.Time, window time.Duration) {
	if j.State != enums.JourneyDroppedOff || j.Start == nil {
		return
	}
	if j.Start.Add(window).After(asOf) {
		j.State = enums.JourneyInStep
	}
}

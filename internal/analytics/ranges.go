package analytics

import (
	"strings"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
)

// DefaultPreset is used when neither a preset nor explicit bounds are given.
const DefaultPreset = "30d"

var presets = map[string]time.Duration{
	"7d":   7 * 24 * time.Hour,
	"30d":  30 * 24 * time.Hour,
	"90d":  90 * 24 * time.Hour,
	"180d": 180 * 24 * time.Hour,
	"365d": 365 * 24 * time.Hour,
}

// PresetRange returns the window of the named preset ending at now.
func PresetRange(preset string, now time.Time) (events.DateRange, error) {
	preset = strings.ToLower(strings.TrimSpace(preset))
	if preset == "" {
		preset = DefaultPreset
	}
	d, ok := presets[preset]
	if !ok {
		return events.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset").
			WithDetails(map[string]any{"preset": preset})
	}
	end := now.UTC()
	return events.DateRange{From: end.Add(-d), To: end}, nil
}

// ResolveRange parses RFC3339 from/to bounds, falling back to the preset when
// both are empty.
func ResolveRange(from, to, preset string, now time.Time) (events.DateRange, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" && to == "" {
		return PresetRange(preset, now)
	}
	if from == "" || to == "" {
		return events.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
	}
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return events.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid from timestamp")
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return events.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid to timestamp")
	}
	dr := events.DateRange{From: start.UTC(), To: end.UTC()}
	if err := dr.Validate(); err != nil {
		return events.DateRange{}, err
	}
	return dr, nil
}

package funnels

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
)

const unknownSegment = "unknown"

// KeyFunc derives a segment key from a user's events.
type KeyFunc func(userEvents []events.Event) string

// SegmentAnalysis is the funnel re-run over one partition of journeys.
type SegmentAnalysis struct {
	Key                   string         `json:"key"`
	TotalJourneys         int            `json:"total_journeys"`
	ConvertedJourneys     int            `json:"converted_journeys"`
	OverallConversionRate float64        `json:"overall_conversion_rate"`
	Steps                 []StepAnalysis `json:"steps"`
}

// ParseSegmentBy resolves platform, source, device or property:<name>.
func ParseSegmentBy(spec string) (KeyFunc, error) {
	spec = strings.TrimSpace(spec)
	switch spec {
	case "platform":
		return firstValue(func(e events.Event) string { return e.Context.Platform }), nil
	case "source":
		return firstValue(func(e events.Event) string { return e.Context.Source }), nil
	case "device":
		return firstValue(func(e events.Event) string { return e.Context.Device }), nil
	}
	if name, ok := strings.CutPrefix(spec, "property:"); ok && strings.TrimSpace(name) != "" {
		name = strings.TrimSpace(name)
		return firstValue(func(e events.Event) string {
			v, ok := e.Lookup("properties." + name)
			if !ok || v == nil {
				return ""
			}
			return fmt.Sprint(v)
		}), nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported segment_by").
		WithDetails(map[string]any{"segment_by": spec, "allowed": "platform, source, device, property:<name>"})
}

// firstValue keys a user by the first non-empty value among their events.
func firstValue(get func(events.Event) string) KeyFunc {
	return func(userEvents []events.Event) string {
		for _, e := range userEvents {
			if v := strings.TrimSpace(get(e)); v != "" {
				return v
			}
		}
		return unknownSegment
	}
}

// Segment partitions journeys by key and analyzes each partition, ranked by
// conversion rate descending then key.
func (a Analyzer) Segment(f Funnel, journeys []Journey, keys map[string]string) []SegmentAnalysis {
	groups := map[string][]Journey{}
	for _, j := range journeys {
		k := keys[j.UserID]
		if k == "" {
			k = unknownSegment
		}
		groups[k] = append(groups[k], j)
	}
	out := make([]SegmentAnalysis, 0, len(groups))
	for k, js := range groups {
		res := a.Analyze(f, js, nil)
		out = append(out, SegmentAnalysis{
			Key:                   k,
			TotalJourneys:         res.TotalJourneys,
			ConvertedJourneys:     res.ConvertedJourneys,
			OverallConversionRate: res.OverallConversionRate,
			Steps:                 res.Steps,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallConversionRate != out[j].OverallConversionRate {
			return out[i].OverallConversionRate > out[j].OverallConversionRate
		}
		return out[i].Key < out[j].Key
	})
	return out
}

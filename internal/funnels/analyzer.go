package funnels

import (
	"fmt"
	"sort"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
)

// DefaultFrictionGap is the average step gap above which a dropoff is
// attributed to friction.
const DefaultFrictionGap = 24 * time.Hour

// StepAnalysis is the conversion of one step.
type StepAnalysis struct {
	StepID                  string  `json:"step_id"`
	StepName                string  `json:"step_name"`
	UsersEntered            int     `json:"users_entered"`
	UsersCompleted          int     `json:"users_completed"`
	ConversionRate          float64 `json:"conversion_rate"`
	DropoffRate             float64 `json:"dropoff_rate"`
	AverageTimeToCompleteMs float64 `json:"average_time_to_complete_ms"`
}

// DropoffPoint is the loss between two adjacent steps.
type DropoffPoint struct {
	FromStep     string   `json:"from_step"`
	ToStep       string   `json:"to_step"`
	FromStepName string   `json:"from_step_name"`
	ToStepName   string   `json:"to_step_name"`
	FromIndex    int      `json:"from_index"`
	DropoffCount int      `json:"dropoff_count"`
	DropoffRate  float64  `json:"dropoff_rate"`
	Reasons      []string `json:"reasons"`
}

// Analysis is the result of analyzing a funnel over a date range.
type Analysis struct {
	FunnelID                string            `json:"funnel_id"`
	FunnelName              string            `json:"funnel_name"`
	DateRange               events.DateRange  `json:"date_range"`
	TotalJourneys           int               `json:"total_journeys"`
	ConvertedJourneys       int               `json:"converted_journeys"`
	OverallConversionRate   float64           `json:"overall_conversion_rate"`
	AverageConversionTimeMs float64           `json:"average_conversion_time_ms"`
	Steps                   []StepAnalysis    `json:"steps"`
	Dropoffs                []DropoffPoint    `json:"dropoffs"`
	Segments                []SegmentAnalysis `json:"segments,omitempty"`
}

// Failures maps a user to the timestamps of their error events.
type Failures map[string][]time.Time

// Analyzer turns journeys into step statistics and ranked dropoffs.
type Analyzer struct {
	FrictionGap time.Duration
}

// Analyze computes step conversion and dropoffs. failures may be nil.
func (a Analyzer) Analyze(f Funnel, journeys []Journey, failures Failures) Analysis {
	out := Analysis{
		FunnelID:      f.ID.String(),
		FunnelName:    f.Name,
		TotalJourneys: len(journeys),
		Steps:         make([]StepAnalysis, len(f.Steps)),
		Dropoffs:      []DropoffPoint{},
	}

	completed := make([]int, len(f.Steps))
	for i, step := range f.Steps {
		var timeSum float64
		var timed int
		for _, j := range journeys {
			if j.progressedPast(i) {
				completed[i]++
			}
			if at := j.matched(i); at != nil && j.Start != nil {
				timeSum += float64(at.Sub(*j.Start).Milliseconds())
				timed++
			}
		}
		entered := len(journeys)
		if i > 0 {
			entered = completed[i-1]
		}
		conv := ratio(completed[i], entered)
		dropRate := 0.0
		if entered > 0 {
			dropRate = 1 - conv
		}
		out.Steps[i] = StepAnalysis{
			StepID:                  step.ID,
			StepName:                step.Name,
			UsersEntered:            entered,
			UsersCompleted:          completed[i],
			ConversionRate:          conv,
			DropoffRate:             dropRate,
			AverageTimeToCompleteMs: ratioF(timeSum, timed),
		}
	}

	var convTime float64
	for _, j := range journeys {
		if j.IsConverted {
			out.ConvertedJourneys++
			if j.ConversionTimeMs != nil {
				convTime += float64(*j.ConversionTimeMs)
			}
		}
	}
	out.OverallConversionRate = ratio(out.ConvertedJourneys, out.TotalJourneys)
	out.AverageConversionTimeMs = ratioF(convTime, out.ConvertedJourneys)
	out.Dropoffs = a.dropoffs(f, journeys, completed, failures)
	return out
}

func (a Analyzer) dropoffs(f Funnel, journeys []Journey, completed []int, failures Failures) []DropoffPoint {
	gap := a.FrictionGap
	if gap <= 0 {
		gap = DefaultFrictionGap
	}
	points := []DropoffPoint{}
	for i := 0; i+1 < len(f.Steps); i++ {
		count := completed[i] - completed[i+1]
		if count <= 0 {
			continue
		}
		from, to := f.Steps[i], f.Steps[i+1]
		p := DropoffPoint{
			FromStep:     from.ID,
			ToStep:       to.ID,
			FromStepName: from.Name,
			ToStepName:   to.Name,
			FromIndex:    i,
			DropoffCount: count,
			DropoffRate:  ratio(count, completed[i]),
		}

		var gapSum time.Duration
		var gaps, failed int
		for _, j := range journeys {
			prev := lastMatchAtOrBefore(j, i)
			if next := j.matched(i + 1); next != nil && prev != nil {
				gapSum += next.Sub(*prev)
				gaps++
			}
			if j.Reached == i+1 && prev != nil && hadFailureAfter(failures[j.UserID], *prev) {
				failed++
			}
		}
		if gaps > 0 {
			if avg := gapSum / time.Duration(gaps); avg > gap {
				p.Reasons = append(p.Reasons, fmt.Sprintf("friction: average %s between %s and %s", avg.Round(time.Second), from.Name, to.Name))
			}
		}
		if failed > 0 {
			p.Reasons = append(p.Reasons, fmt.Sprintf("technical failure: %d of %d dropped users hit errors after %s", failed, count, from.Name))
		}
		if len(p.Reasons) == 0 {
			p.Reasons = []string{fmt.Sprintf("abandoned after %s", from.Name)}
		}
		points = append(points, p)
	}
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].DropoffRate != points[j].DropoffRate {
			return points[i].DropoffRate > points[j].DropoffRate
		}
		return points[i].FromIndex < points[j].FromIndex
	})
	return points
}

// lastMatchAtOrBefore returns the latest matched timestamp for steps 0..i.
func lastMatchAtOrBefore(j Journey, i int) *time.Time {
	for k := i; k >= 0; k-- {
		if at := j.matched(k); at != nil {
			return at
		}
	}
	return nil
}

func hadFailureAfter(ts []time.Time, after time.Time) bool {
	for _, t := range ts {
		if t.After(after) {
			return true
		}
	}
	return false
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func ratioF(num float64, den int) float64 {
	if den == 0 {
		return 0
	}
	return num / float64(den)
}

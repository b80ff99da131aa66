package cohorts

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/timeutil"
)

const (
	// DefaultTrendWindow is how many cohorts at each end feed the trend.
	DefaultTrendWindow = 3
	trendThreshold     = 0.05
)

// Cohort is the set of users acquired in one calendar period. UserCount is
// fixed at assignment.
type Cohort struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	UserCount      int       `json:"user_count"`
	RetentionRates []float64 `json:"retention_rates"`
}

type Trend struct {
	Label        enums.RetentionTrend `json:"label"`
	EarliestMean float64              `json:"earliest_mean"`
	LatestMean   float64              `json:"latest_mean"`
	Delta        float64              `json:"delta"`
	WindowSize   int                  `json:"window_size"`
}

type Analysis struct {
	Config           Config           `json:"config"`
	DateRange        events.DateRange `json:"date_range"`
	Cohorts          []Cohort         `json:"cohorts"`
	RetentionMatrix  [][]float64      `json:"retention_matrix"`
	AverageRetention []float64        `json:"average_retention"`
	Trend            Trend            `json:"trend"`
	Dispersion       float64          `json:"dispersion"`
}

// Build assigns users to cohorts by their earliest acquisition event in the
// range and computes retention per period. evts must be sorted by time.
// Only periods that have fully elapsed by the range end are reported. ctx is
// checked once per cohort member.
func Build(ctx context.Context, cfg Config, dr events.DateRange, evts []events.Event, trendWindow int) (Analysis, error) {
	acquired := map[string]time.Time{}
	activity := map[string][]time.Time{}
	for _, e := range evts {
		if !dr.Contains(e.Timestamp) {
			continue
		}
		if e.Name == cfg.AcquisitionEvent {
			if _, seen := acquired[e.UserID]; !seen {
				acquired[e.UserID] = e.Timestamp
			}
		}
		if cfg.retains(e.Name) {
			activity[e.UserID] = append(activity[e.UserID], e.Timestamp)
		}
	}

	members := map[time.Time][]string{}
	for user, at := range acquired {
		if err := ctx.Err(); err != nil {
			return Analysis{}, err
		}
		start := timeutil.BucketStart(at, cfg.Unit)
		members[start] = append(members[start], user)
	}
	starts := make([]time.Time, 0, len(members))
	for s := range members {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	out := Analysis{
		Config:           cfg,
		DateRange:        dr,
		Cohorts:          make([]Cohort, 0, len(starts)),
		RetentionMatrix:  make([][]float64, 0, len(starts)),
		AverageRetention: []float64{},
	}
	for _, start := range starts {
		users := members[start]
		label := timeutil.Label(start, cfg.Unit)
		c := Cohort{
			ID:             label,
			Name:           string(cfg.Unit) + " " + label,
			StartDate:      start,
			EndDate:        timeutil.Add(start, cfg.Unit, 1),
			UserCount:      len(users),
			RetentionRates: []float64{},
		}
		for p := 0; p < cfg.Periods; p++ {
			from := timeutil.Add(start, cfg.Unit, p)
			to := timeutil.Add(start, cfg.Unit, p+1)
			if to.After(dr.To) {
				break
			}
			active := 0
			for _, u := range users {
				if activeIn(activity[u], from, to) {
					active++
				}
			}
			c.RetentionRates = append(c.RetentionRates, float64(active)/float64(len(users)))
		}
		out.Cohorts = append(out.Cohorts, c)
		out.RetentionMatrix = append(out.RetentionMatrix, c.RetentionRates)
	}

	out.AverageRetention = averageRetention(out.Cohorts, cfg.Periods)
	out.Trend, out.Dispersion = trend(out.Cohorts, trendWindow)
	return out, nil
}

func activeIn(ts []time.Time, from, to time.Time) bool {
	for _, t := range ts {
		if !t.Before(from) && t.Before(to) {
			return true
		}
	}
	return false
}

// averageRetention averages each period over the cohorts that reached it.
func averageRetention(cohorts []Cohort, periods int) []float64 {
	out := []float64{}
	for p := 0; p < periods; p++ {
		var sum float64
		var n int
		for _, c := range cohorts {
			if p < len(c.RetentionRates) {
				sum += c.RetentionRates[p]
				n++
			}
		}
		if n == 0 {
			break
		}
		out = append(out, sum/float64(n))
	}
	return out
}

// trend compares the mean post-acquisition retention of the earliest and
// latest cohorts, and returns the population stddev of those means.
func trend(cohorts []Cohort, window int) (Trend, float64) {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	var means []float64
	for _, c := range cohorts {
		if len(c.RetentionRates) < 2 {
			continue
		}
		means = append(means, mean(c.RetentionRates[1:]))
	}

	dispersion := stddev(means)
	n := min(window, len(means)/2)
	if n < 1 {
		return Trend{Label: enums.RetentionInsufficient}, dispersion
	}

	earliest := mean(means[:n])
	latest := mean(means[len(means)-n:])
	delta := latest - earliest
	label := enums.RetentionStable
	switch {
	case delta > trendThreshold:
		label = enums.RetentionImproving
	case delta < -trendThreshold:
		label = enums.RetentionDeclining
	}
	return Trend{
		Label:        label,
		EarliestMean: earliest,
		LatestMean:   latest,
		Delta:        delta,
		WindowSize:   n,
	}, dispersion
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := mean(vals)
	var ss float64
	for _, v := range vals {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(vals)))
}

package forecast

import (
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/timeutil"
	"github.com/shopspring/decimal"
)

// Point is one bucket of a metric series. Periods are numbered from 1.
type Point struct {
	Period int       `json:"period"`
	Label  string    `json:"label"`
	Start  time.Time `json:"start"`
	Value  float64   `json:"value"`
}

// BuildSeries buckets evts into the whole calendar periods inside dr. Partial
// periods at the edges are dropped so every point is a full observation.
// Empty buckets are zero.
func BuildSeries(m Metric, unit enums.TimeUnit, dr events.DateRange, evts []events.Event) []Point {
	starts := timeutil.Buckets(dr.From, dr.To, unit)
	index := make(map[time.Time]int, len(starts))
	for i, s := range starts {
		index[s] = i
	}

	sums := make([]decimal.Decimal, len(starts))
	counts := make([]int, len(starts))
	users := make([]map[string]struct{}, len(starts))
	for _, e := range evts {
		if !dr.Contains(e.Timestamp) || !m.counts(e) {
			continue
		}
		i, ok := index[timeutil.BucketStart(e.Timestamp, unit)]
		if !ok {
			continue
		}
		switch m.agg {
		case aggSumAmount:
			if amt, ok := amountOf(e.Properties); ok {
				sums[i] = sums[i].Add(amt)
			}
		case aggDistinctUsers:
			if users[i] == nil {
				users[i] = map[string]struct{}{}
			}
			users[i][e.UserID] = struct{}{}
		default:
			counts[i]++
		}
	}

	out := make([]Point, len(starts))
	for i, s := range starts {
		p := Point{Period: i + 1, Label: timeutil.Label(s, unit), Start: s}
		switch m.agg {
		case aggSumAmount:
			p.Value = sums[i].InexactFloat64()
		case aggDistinctUsers:
			p.Value = float64(len(users[i]))
		default:
			p.Value = float64(counts[i])
		}
		out[i] = p
	}
	return out
}

func values(series []Point) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Value
	}
	return out
}

package forecast

import (
	"fmt"
	"math"
)

const (
	// MinSeasonalPoints is the shortest series seasonality is judged on.
	MinSeasonalPoints = 12
	seasonalThreshold = 0.3
	anomalyThreshold  = 0.2
	zeroTolerance     = 1e-9
)

// SeasonalLags are the candidate periods, in buckets.
var SeasonalLags = []int{3, 12}

type Seasonality struct {
	Determined bool    `json:"determined"`
	Detected   bool    `json:"detected"`
	Lag        int     `json:"lag,omitempty"`
	Pattern    string  `json:"pattern,omitempty"`
	Strength   float64 `json:"strength"`
	Peaks      []int   `json:"peaks"`
	Troughs    []int   `json:"troughs"`
}

// Autocorrelation correlates the series with itself shifted by lag, centered
// on the global mean and normalized over the two overlapping windows. A
// perfectly periodic series scores 1 at its period.
func Autocorrelation(vals []float64, lag int) float64 {
	n := len(vals)
	if lag <= 0 || lag >= n {
		return 0
	}
	m := mean(vals)
	var num, head, tail float64
	for i := 0; i+lag < n; i++ {
		a := vals[i] - m
		b := vals[i+lag] - m
		num += a * b
		head += a * a
		tail += b * b
	}
	denom := math.Sqrt(head * tail)
	if denom == 0 {
		return 0
	}
	return num / denom
}

// DetectSeasonality reports the strongest candidate lag above the threshold.
// Series shorter than MinSeasonalPoints are left undetermined.
func DetectSeasonality(vals []float64) Seasonality {
	s := Seasonality{Peaks: []int{}, Troughs: []int{}}
	s.Peaks, s.Troughs = turningPoints(vals)
	if len(vals) < MinSeasonalPoints {
		return s
	}
	s.Determined = true
	for _, lag := range SeasonalLags {
		ac := math.Abs(Autocorrelation(vals, lag))
		if ac > seasonalThreshold && ac > s.Strength {
			s.Detected = true
			s.Lag = lag
			s.Strength = ac
		}
	}
	if s.Detected {
		s.Pattern = fmt.Sprintf("repeats every %d periods", s.Lag)
	}
	return s
}

// turningPoints returns the 1-based periods of interior local maxima and minima.
func turningPoints(vals []float64) (peaks, troughs []int) {
	peaks, troughs = []int{}, []int{}
	for i := 1; i+1 < len(vals); i++ {
		switch {
		case vals[i] > vals[i-1] && vals[i] > vals[i+1]:
			peaks = append(peaks, i+1)
		case vals[i] < vals[i-1] && vals[i] < vals[i+1]:
			troughs = append(troughs, i+1)
		}
	}
	return peaks, troughs
}

type Anomaly struct {
	Period   int     `json:"period"`
	Label    string  `json:"label"`
	Actual   float64 `json:"actual"`
	Expected float64 `json:"expected"`
	// Deviation is |actual-expected|/|expected|; nil when expected is zero.
	Deviation *float64 `json:"deviation"`
}

// DetectAnomalies flags points whose relative deviation from the fitted line
// exceeds threshold. A non-zero value where the line predicts zero is always
// flagged.
func DetectAnomalies(series []Point, line Line, threshold float64) []Anomaly {
	out := []Anomaly{}
	for _, p := range series {
		expected := line.At(float64(p.Period))
		residual := p.Value - expected
		if math.Abs(expected) < zeroTolerance {
			if math.Abs(residual) < zeroTolerance {
				continue
			}
			out = append(out, Anomaly{Period: p.Period, Label: p.Label, Actual: p.Value, Expected: expected})
			continue
		}
		dev := math.Abs(residual) / math.Abs(expected)
		if dev > threshold {
			out = append(out, Anomaly{Period: p.Period, Label: p.Label, Actual: p.Value, Expected: expected, Deviation: &dev})
		}
	}
	return out
}

package forecast

import "math"

// XY is one observation for a least-squares fit.
type XY struct {
	X float64
	Y float64
}

// Line is y = Slope·x + Intercept.
type Line struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

func (l Line) At(x float64) float64 {
	return l.Slope*x + l.Intercept
}

// FitLine is an ordinary least-squares fit. When every x is equal the slope
// is 0 and the intercept is the mean of y.
func FitLine(points []XY) Line {
	n := float64(len(points))
	if n == 0 {
		return Line{}
	}
	var sx, sy, sxy, sxx float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
		sxy += p.X * p.Y
		sxx += p.X * p.X
	}
	denom := n*sxx - sx*sx
	if math.Abs(denom) < 1e-12 {
		return Line{Intercept: sy / n}
	}
	slope := (n*sxy - sx*sy) / denom
	return Line{Slope: slope, Intercept: (sy - slope*sx) / n}
}

// fitSeries fits the series against its period numbers.
func fitSeries(series []Point) Line {
	pts := make([]XY, len(series))
	for i, p := range series {
		pts[i] = XY{X: float64(p.Period), Y: p.Value}
	}
	return FitLine(pts)
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

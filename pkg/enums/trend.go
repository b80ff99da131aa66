package enums

import "fmt"

// TrendDirection describes the slope of a fitted metric series.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

var validTrendDirections = []TrendDirection{TrendUp, TrendDown, TrendStable}

func (t TrendDirection) IsValid() bool {
	for _, candidate := range validTrendDirections {
		if candidate == t {
			return true
		}
	}
	return false
}

// RetentionTrend labels how retention moves from the earliest to the latest cohorts.
type RetentionTrend string

const (
	RetentionImproving    RetentionTrend = "improving"
	RetentionDeclining    RetentionTrend = "declining"
	RetentionStable       RetentionTrend = "stable"
	RetentionInsufficient RetentionTrend = "insufficient"
)

var validRetentionTrends = []RetentionTrend{
	RetentionImproving,
	RetentionDeclining,
	RetentionStable,
	RetentionInsufficient,
}

func (r RetentionTrend) IsValid() bool {
	for _, candidate := range validRetentionTrends {
		if candidate == r {
			return true
		}
	}
	return false
}

// GrowthModel selects how a metric is extrapolated.
type GrowthModel string

const (
	GrowthLinear   GrowthModel = "linear"
	GrowthCompound GrowthModel = "compound"
)

// ParseGrowthModel converts raw input into GrowthModel.
func ParseGrowthModel(value string) (GrowthModel, error) {
	switch GrowthModel(value) {
	case GrowthLinear, GrowthCompound:
		return GrowthModel(value), nil
	}
	return "", fmt.Errorf("invalid growth model %q", value)
}

package enums

import "fmt"

// SnapshotKind maps to the analysis_snapshots.kind column.
type SnapshotKind string

const (
	SnapshotFunnel   SnapshotKind = "funnel"
	SnapshotCohort   SnapshotKind = "cohort"
	SnapshotForecast SnapshotKind = "forecast"
	SnapshotTrend    SnapshotKind = "trend"
	SnapshotGrowth   SnapshotKind = "growth"
)

var validSnapshotKinds = []SnapshotKind{
	SnapshotFunnel,
	SnapshotCohort,
	SnapshotForecast,
	SnapshotTrend,
	SnapshotGrowth,
}

// IsValid reports whether the value matches the snapshot kind check constraint.
func (k SnapshotKind) IsValid() bool {
	for _, candidate := range validSnapshotKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseSnapshotKind converts raw input into SnapshotKind.
func ParseSnapshotKind(value string) (SnapshotKind, error) {
	for _, candidate := range validSnapshotKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid snapshot kind %q", value)
}

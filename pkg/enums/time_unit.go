package enums

import (
	"fmt"
	"strings"
)

// TimeUnit is the calendar bucket used by cohorts and metric series.
type TimeUnit string

const (
	TimeUnitDay   TimeUnit = "day"
	TimeUnitWeek  TimeUnit = "week"
	TimeUnitMonth TimeUnit = "month"
)

var validTimeUnits = []TimeUnit{
	TimeUnitDay,
	TimeUnitWeek,
	TimeUnitMonth,
}

func (u TimeUnit) String() string {
	return string(u)
}

// IsValid reports whether the value is a known TimeUnit.
func (u TimeUnit) IsValid() bool {
	for _, candidate := range validTimeUnits {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseTimeUnit converts raw input (case-insensitive) into TimeUnit.
func ParseTimeUnit(value string) (TimeUnit, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validTimeUnits {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid time unit %q", value)
}

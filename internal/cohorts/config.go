// Package cohorts groups users by acquisition period and measures how many
// stay active in each following period.
package cohorts

import (
	"fmt"
	"strings"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
)

// AnyActivity as the retention event counts every event as activity.
const AnyActivity = "*"

// MaxPeriods bounds the width of a retention matrix.
const MaxPeriods = 120

type Config struct {
	AcquisitionEvent string         `json:"acquisition_event"`
	RetentionEvent   string         `json:"retention_event"`
	Unit             enums.TimeUnit `json:"unit"`
	Periods          int            `json:"periods"`
}

// NewConfig validates a cohort definition. An empty retention event means
// any activity.
func NewConfig(acquisitionEvent, retentionEvent string, unit enums.TimeUnit, periods int) (Config, error) {
	acquisitionEvent = strings.TrimSpace(acquisitionEvent)
	retentionEvent = strings.TrimSpace(retentionEvent)
	if retentionEvent == "" {
		retentionEvent = AnyActivity
	}
	if acquisitionEvent == "" {
		return Config{}, configError("acquisition event is required", nil)
	}
	if !unit.IsValid() {
		return Config{}, configError(fmt.Sprintf("unsupported time unit %q", unit), map[string]any{"unit": string(unit)})
	}
	if periods <= 0 || periods > MaxPeriods {
		return Config{}, configError(fmt.Sprintf("periods must be between 1 and %d", MaxPeriods), map[string]any{"periods": periods})
	}
	return Config{
		AcquisitionEvent: acquisitionEvent,
		RetentionEvent:   retentionEvent,
		Unit:             unit,
		Periods:          periods,
	}, nil
}

// TracksAnyActivity reports whether every event counts as retention.
func (c Config) TracksAnyActivity() bool {
	return c.RetentionEvent == AnyActivity
}

func (c Config) retains(eventName string) bool {
	return c.TracksAnyActivity() || eventName == c.RetentionEvent
}

func configError(msg string, details map[string]any) error {
	err := pkgerrors.New(pkgerrors.CodeCohortConfig, msg)
	if details != nil {
		return err.WithDetails(details)
	}
	return err
}

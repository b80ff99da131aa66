package events

import (
	"time"

	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
)

// DateRange is the half-open interval [From, To) in UTC.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewDateRange normalizes both bounds to UTC and validates ordering.
func NewDateRange(from, to time.Time) (DateRange, error) {
	r := DateRange{From: from.UTC(), To: to.UTC()}
	return r, r.Validate()
}

func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "date range requires from and to")
	}
	if !r.To.After(r.From) {
		return pkgerrors.New(pkgerrors.CodeValidation, "date range end must be after start").
			WithDetails(map[string]any{"from": r.From, "to": r.To})
	}
	return nil
}

// Contains reports whether t falls in [From, To). A zero bound is open.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

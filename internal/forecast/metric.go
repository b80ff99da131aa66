// Package forecast turns event streams into metric series and extrapolates
// them: linear and compound projections, seasonality, anomalies and growth
// scenarios.
package forecast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const (
	MetricRevenue           = "revenue"
	MetricActiveUsers       = "active_users"
	MetricConversions       = "conversions"
	MetricCouponRedemptions = "coupon_redemptions"
	MetricEvents            = "events"

	amountProperty = "amount"
)

type aggregation int

const (
	aggCount aggregation = iota
	aggDistinctUsers
	aggSumAmount
)

// Metric describes how a named series is derived from events and how it is
// extrapolated.
type Metric struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	EventNames  []string          `json:"event_names,omitempty"`
	Model       enums.GrowthModel `json:"model"`
	DecayRate   float64           `json:"decay_rate"`
	Unit        enums.TimeUnit    `json:"unit"`
	NonNegative bool              `json:"non_negative"`
	Factors     []string          `json:"contributing_factors"`

	agg aggregation
}

// Registry maps metric names to definitions.
type Registry map[string]Metric

// DefaultMetrics returns the built-in metric catalogue.
func DefaultMetrics() Registry {
	return Registry{
		MetricRevenue: {
			Name:        MetricRevenue,
			Description: "Sum of purchase and cashback amounts",
			EventNames:  []string{"business_purchase", "business_cashback_earned"},
			Model:       enums.GrowthLinear,
			DecayRate:   0.10,
			Unit:        enums.TimeUnitWeek,
			NonNegative: true,
			Factors: []string{
				"Seasonal shopping peaks and sale events",
				"Partner store commission changes",
				"Coupon catalogue freshness",
			},
			agg: aggSumAmount,
		},
		MetricActiveUsers: {
			Name:        MetricActiveUsers,
			Description: "Distinct users with any activity",
			Model:       enums.GrowthCompound,
			DecayRate:   0.08,
			Unit:        enums.TimeUnitWeek,
			NonNegative: true,
			Factors: []string{
				"Bot notification cadence",
				"Referral and acquisition campaigns",
				"Onboarding completion",
			},
			agg: aggDistinctUsers,
		},
		MetricConversions: {
			Name:        MetricConversions,
			Description: "Completed purchases",
			EventNames:  []string{"business_purchase"},
			Model:       enums.GrowthCompound,
			DecayRate:   0.08,
			Unit:        enums.TimeUnitWeek,
			NonNegative: true,
			Factors: []string{
				"Coupon relevance and personalization",
				"Checkout friction at partner stores",
			},
			agg: aggCount,
		},
		MetricCouponRedemptions: {
			Name:        MetricCouponRedemptions,
			Description: "Redeemed coupons",
			EventNames:  []string{"coupon_redeemed"},
			Model:       enums.GrowthCompound,
			DecayRate:   0.08,
			Unit:        enums.TimeUnitWeek,
			NonNegative: true,
			Factors: []string{
				"Coupon expiry windows",
				"Discount depth",
			},
			agg: aggCount,
		},
		MetricEvents: {
			Name:        MetricEvents,
			Description: "All collected events",
			Model:       enums.GrowthCompound,
			DecayRate:   0.10,
			Unit:        enums.TimeUnitDay,
			NonNegative: true,
			Factors: []string{
				"Overall engagement",
				"Tracking coverage of new bot features",
			},
			agg: aggCount,
		},
	}
}

// Lookup returns the named metric or a NOT_FOUND error.
func (r Registry) Lookup(name string) (Metric, error) {
	m, ok := r[strings.TrimSpace(name)]
	if !ok {
		return Metric{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown metric %q", name)).
			WithDetails(map[string]any{"metric": name, "available": r.Names()})
	}
	return m, nil
}

func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m Metric) query(dr events.DateRange) events.Query {
	return events.Query{EventNames: m.EventNames, Range: dr}
}

func (m Metric) counts(e events.Event) bool {
	if len(m.EventNames) == 0 {
		return true
	}
	for _, n := range m.EventNames {
		if n == e.Name {
			return true
		}
	}
	return false
}

// amountOf reads the monetary amount property. Unparseable values are ignored.
func amountOf(props map[string]any) (decimal.Decimal, bool) {
	raw, ok := props[amountProperty]
	if !ok || raw == nil {
		return decimal.Zero, false
	}
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case int32:
		return decimal.NewFromInt32(v), true
	}
	return decimal.Zero, false
}

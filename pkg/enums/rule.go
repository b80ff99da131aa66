package enums

import "fmt"

// RuleOperator is the comparison applied by a collector rule condition.
type RuleOperator string

const (
	RuleOpEq       RuleOperator = "eq"
	RuleOpNe       RuleOperator = "ne"
	RuleOpGt       RuleOperator = "gt"
	RuleOpLt       RuleOperator = "lt"
	RuleOpGte      RuleOperator = "gte"
	RuleOpLte      RuleOperator = "lte"
	RuleOpIn       RuleOperator = "in"
	RuleOpContains RuleOperator = "contains"
)

var validRuleOperators = []RuleOperator{
	RuleOpEq,
	RuleOpNe,
	RuleOpGt,
	RuleOpLt,
	RuleOpGte,
	RuleOpLte,
	RuleOpIn,
	RuleOpContains,
}

// IsValid reports whether the value is a supported operator.
func (o RuleOperator) IsValid() bool {
	for _, candidate := range validRuleOperators {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseRuleOperator converts raw input into RuleOperator.
func ParseRuleOperator(value string) (RuleOperator, error) {
	for _, candidate := range validRuleOperators {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rule operator %q", value)
}

// RuleActionKind is the tagged action executed when a rule fires.
type RuleActionKind string

const (
	RuleActionEnrich    RuleActionKind = "enrich"
	RuleActionFilter    RuleActionKind = "filter"
	RuleActionTransform RuleActionKind = "transform"
	RuleActionRoute     RuleActionKind = "route"
	RuleActionAlert     RuleActionKind = "alert"
)

var validRuleActionKinds = []RuleActionKind{
	RuleActionEnrich,
	RuleActionFilter,
	RuleActionTransform,
	RuleActionRoute,
	RuleActionAlert,
}

func (k RuleActionKind) IsValid() bool {
	for _, candidate := range validRuleActionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseRuleActionKind converts raw input into RuleActionKind.
func ParseRuleActionKind(value string) (RuleActionKind, error) {
	for _, candidate := range validRuleActionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rule action %q", value)
}

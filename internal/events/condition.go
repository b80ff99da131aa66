package events

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
)

// Condition is one field/operator/value test against an event.
type Condition struct {
	Field    string             `json:"field"`
	Operator enums.RuleOperator `json:"operator"`
	Value    any                `json:"value"`
}

// Validate checks the condition is well formed.
func (c Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "condition field is required")
	}
	if !c.Operator.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported operator %q", c.Operator))
	}
	if c.Operator == enums.RuleOpIn {
		if _, ok := asSlice(c.Value); !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "operator in requires a list value")
		}
	}
	return nil
}

// Evaluate applies the condition. A missing field only satisfies ne.
func (c Condition) Evaluate(e Event) bool {
	actual, ok := e.Lookup(c.Field)
	if !ok {
		return c.Operator == enums.RuleOpNe
	}
	switch c.Operator {
	case enums.RuleOpEq:
		return equal(actual, c.Value)
	case enums.RuleOpNe:
		return !equal(actual, c.Value)
	case enums.RuleOpGt:
		cmp, ok := compare(actual, c.Value)
		return ok && cmp > 0
	case enums.RuleOpLt:
		cmp, ok := compare(actual, c.Value)
		return ok && cmp < 0
	case enums.RuleOpGte:
		cmp, ok := compare(actual, c.Value)
		return ok && cmp >= 0
	case enums.RuleOpLte:
		cmp, ok := compare(actual, c.Value)
		return ok && cmp <= 0
	case enums.RuleOpIn:
		list, ok := asSlice(c.Value)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if equal(actual, candidate) {
				return true
			}
		}
		return false
	case enums.RuleOpContains:
		if s, ok := actual.(string); ok {
			return strings.Contains(s, fmt.Sprint(c.Value))
		}
		if list, ok := asSlice(actual); ok {
			for _, item := range list {
				if equal(item, c.Value) {
					return true
				}
			}
		}
		return false
	}
	return false
}

// MatchAll reports whether every condition holds. An empty list matches.
func MatchAll(conditions []Condition, e Event) bool {
	for _, c := range conditions {
		if !c.Evaluate(e) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compare orders numbers numerically and strings lexically.
func compare(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asSlice(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

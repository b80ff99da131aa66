package collector

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/goccy/go-json"
)

// Rule fires its actions when every condition holds. Lower Priority values
// run first; ties run in name order.
type Rule struct {
	Name       string             `json:"name"`
	Priority   int                `json:"priority"`
	Conditions []events.Condition `json:"conditions"`
	Actions    []Action           `json:"actions"`
}

// Action is a tagged rule action. Which fields are read depends on Type.
type Action struct {
	Type       enums.RuleActionKind `json:"type"`
	Properties map[string]any       `json:"properties,omitempty"`
	Fields     map[string]any       `json:"fields,omitempty"`
	Route      string               `json:"route,omitempty"`
	Message    string               `json:"message,omitempty"`
}

type rulesDocument struct {
	Rules []Rule `json:"rules"`
}

// AlertFunc receives alerts raised by rules.
type AlertFunc func(ctx context.Context, rule string, message string, e events.Event)

func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "rule name is required")
	}
	if len(r.Actions) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("rule %s has no actions", r.Name))
	}
	for i, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("rule %s condition %d", r.Name, i))
		}
	}
	for i, a := range r.Actions {
		if err := a.validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("rule %s action %d", r.Name, i))
		}
	}
	return nil
}

func (a Action) validate() error {
	switch a.Type {
	case enums.RuleActionEnrich:
		if len(a.Properties) == 0 {
			return fmt.Errorf("enrich requires properties")
		}
	case enums.RuleActionTransform:
		if len(a.Fields) == 0 {
			return fmt.Errorf("transform requires fields")
		}
	case enums.RuleActionRoute:
		if strings.TrimSpace(a.Route) == "" {
			return fmt.Errorf("route requires a destination")
		}
	case enums.RuleActionFilter, enums.RuleActionAlert:
	default:
		return fmt.Errorf("unsupported action %q", a.Type)
	}
	return nil
}

// ParseRules decodes a {"rules": [...]} document and validates every rule.
func ParseRules(data []byte) ([]Rule, error) {
	var doc rulesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode rules document")
	}
	seen := make(map[string]struct{}, len(doc.Rules))
	for _, r := range doc.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Name]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate rule %s", r.Name))
		}
		seen[r.Name] = struct{}{}
	}
	return doc.Rules, nil
}

// LoadRules reads rules from a JSON file. An empty path yields DefaultRules.
func LoadRules(path string) ([]Rule, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	return ParseRules(data)
}

// DefaultRules is the rule set used when no rules file is configured.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "exclude_internal_traffic",
			Priority: 10,
			Conditions: []events.Condition{
				{Field: "context.source", Operator: enums.RuleOpEq, Value: "internal_test"},
			},
			Actions: []Action{{Type: enums.RuleActionFilter}},
		},
		{
			Name:     "large_cashback_payout",
			Priority: 20,
			Conditions: []events.Condition{
				{Field: "event_name", Operator: enums.RuleOpEq, Value: "business_cashback_earned"},
				{Field: "amount", Operator: enums.RuleOpGte, Value: 5000},
			},
			Actions: []Action{
				{Type: enums.RuleActionRoute, Route: "fraud_review"},
				{Type: enums.RuleActionAlert, Message: "cashback above review threshold"},
			},
		},
		{
			Name:     "tag_client_errors",
			Priority: 30,
			Conditions: []events.Condition{
				{Field: "event_type", Operator: enums.RuleOpEq, Value: string(enums.EventTypeError)},
			},
			Actions: []Action{{Type: enums.RuleActionRoute, Route: "errors"}},
		},
	}
}

// RuleEngine evaluates an ordered rule list against events.
type RuleEngine struct {
	rules   []Rule
	onAlert AlertFunc
	logg    *logger.Logger
}

func NewRuleEngine(rules []Rule, onAlert AlertFunc, logg *logger.Logger) (*RuleEngine, error) {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	for _, r := range sorted {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Name < sorted[j].Name
	})
	return &RuleEngine{rules: sorted, onAlert: onAlert, logg: logg}, nil
}

// Rules returns the rules in evaluation order.
func (r *RuleEngine) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Apply runs every rule against e and returns the names of the rules that
// fired. A failing rule is logged and skipped.
func (r *RuleEngine) Apply(ctx context.Context, e *events.Event) []string {
	if r == nil {
		return nil
	}
	var fired []string
	for _, rule := range r.rules {
		if !events.MatchAll(rule.Conditions, *e) {
			continue
		}
		if err := r.applyRule(ctx, rule, e); err != nil {
			if r.logg != nil {
				rctx := r.logg.WithField(ctx, "rule", rule.Name)
				r.logg.Error(rctx, "rule action failed", err)
			}
			continue
		}
		fired = append(fired, rule.Name)
	}
	return fired
}

func (r *RuleEngine) applyRule(ctx context.Context, rule Rule, e *events.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rule %s panicked: %v", rule.Name, rec)
		}
	}()

	// actions run on a scratch copy so a failing rule leaves no partial writes
	work := cloneEvent(*e)
	var alerts []string
	for _, a := range rule.Actions {
		switch a.Type {
		case enums.RuleActionEnrich:
			if work.Properties == nil {
				work.Properties = map[string]any{}
			}
			for k, v := range a.Properties {
				work.Properties[k] = v
			}
		case enums.RuleActionFilter:
			work.Filtered = true
		case enums.RuleActionTransform:
			for _, field := range sortedKeys(a.Fields) {
				if !work.SetField(field, a.Fields[field]) {
					return fmt.Errorf("field %s is not writable", field)
				}
			}
		case enums.RuleActionRoute:
			work.Route = a.Route
		case enums.RuleActionAlert:
			msg := a.Message
			if msg == "" {
				msg = rule.Name
			}
			alerts = append(alerts, msg)
			work.Alerts = append(work.Alerts, msg)
		default:
			return fmt.Errorf("unsupported action %q", a.Type)
		}
	}
	*e = work
	if r.onAlert != nil {
		for _, msg := range alerts {
			r.onAlert(ctx, rule.Name, msg, work)
		}
	}
	return nil
}

func cloneEvent(e events.Event) events.Event {
	out := e
	if e.Properties != nil {
		out.Properties = copyProps(e.Properties)
	}
	if e.Alerts != nil {
		out.Alerts = append([]string(nil), e.Alerts...)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

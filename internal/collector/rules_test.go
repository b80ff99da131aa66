package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events/eventstest"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	"github.com/stretchr/testify/require"
)

const rulesJSON = `{
  "rules": [
    {
      "name": "route_purchases",
      "priority": 5,
      "conditions": [{"field": "event_name", "operator": "eq", "value": "business_purchase"}],
      "actions": [{"type": "route", "route": "revenue"}]
    },
    {
      "name": "flag_big_basket",
      "priority": 1,
      "conditions": [
        {"field": "amount", "operator": "gt", "value": 1000},
        {"field": "context.platform", "operator": "in", "value": ["telegram", "web"]}
      ],
      "actions": [
        {"type": "enrich", "properties": {"basket": "large"}},
        {"type": "alert", "message": "large basket"}
      ]
    }
  ]
}`

func TestParseRulesDecodesAndValidates(t *testing.T) {
	rules, err := ParseRules([]byte(rulesJSON))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, enums.RuleOpIn, rules[1].Conditions[1].Operator)

	_, err = ParseRules([]byte(`{"rules":[{"name":"x","actions":[{"type":"explode"}]}]}`))
	require.Error(t, err)

	_, err = ParseRules([]byte(`{"rules":[{"name":"x","actions":[{"type":"route"}]}]}`))
	require.Error(t, err, "route without destination")

	_, err = ParseRules([]byte(`{"rules":[{"name":"x","conditions":[{"field":"a","operator":"in","value":1}],"actions":[{"type":"filter"}]}]}`))
	require.Error(t, err, "in requires a list")

	_, err = ParseRules([]byte(`{"rules":[{"name":"x","actions":[{"type":"filter"}]},{"name":"x","actions":[{"type":"filter"}]}]}`))
	require.Error(t, err, "duplicate names")
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(rulesJSON), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	defaults, err := LoadRules("")
	require.NoError(t, err)
	require.Equal(t, DefaultRules(), defaults)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestRuleEngineOrdersByPriority(t *testing.T) {
	rules, err := ParseRules([]byte(rulesJSON))
	require.NoError(t, err)

	engine, err := NewRuleEngine(rules, nil, nil)
	require.NoError(t, err)
	ordered := engine.Rules()
	require.Equal(t, "flag_big_basket", ordered[0].Name)
	require.Equal(t, "route_purchases", ordered[1].Name)
}

func TestRuleEngineAppliesActions(t *testing.T) {
	rules, err := ParseRules([]byte(rulesJSON))
	require.NoError(t, err)

	var alerts []string
	engine, err := NewRuleEngine(rules, func(_ context.Context, rule, msg string, _ events.Event) {
		alerts = append(alerts, rule+":"+msg)
	}, nil)
	require.NoError(t, err)

	e := eventstest.WithProps(eventstest.Event("u1", "business_purchase", time.Now()), map[string]any{"amount": 2500.0})
	e.Context.Platform = "telegram"

	fired := engine.Apply(context.Background(), &e)
	require.Equal(t, []string{"flag_big_basket", "route_purchases"}, fired)
	require.Equal(t, "large", e.Properties["basket"])
	require.Equal(t, "revenue", e.Route)
	require.Equal(t, []string{"large basket"}, e.Alerts)
	require.Equal(t, []string{"flag_big_basket:large basket"}, alerts)

	small := eventstest.WithProps(eventstest.Event("u1", "business_purchase", time.Now()), map[string]any{"amount": 10})
	fired = engine.Apply(context.Background(), &small)
	require.Equal(t, []string{"route_purchases"}, fired)
	require.Empty(t, small.Alerts)
}

func TestRuleEngineIsolatesFailingRule(t *testing.T) {
	engine, err := NewRuleEngine([]Rule{
		{
			Name:     "rewrite_user",
			Priority: 1,
			Actions: []Action{
				{Type: enums.RuleActionEnrich, Properties: map[string]any{"partial": true}},
				{Type: enums.RuleActionTransform, Fields: map[string]any{"user_id": "someone-else"}},
			},
		},
		{
			Name:     "mark",
			Priority: 2,
			Actions: []Action{
				{Type: enums.RuleActionTransform, Fields: map[string]any{"context.device": "android", "campaign": "diwali"}},
				{Type: enums.RuleActionFilter},
			},
		},
	}, nil, nil)
	require.NoError(t, err)

	e := eventstest.Event("u1", "coupon_view", time.Now())
	fired := engine.Apply(context.Background(), &e)

	require.Equal(t, []string{"mark"}, fired)
	require.Equal(t, "u1", e.UserID)
	_, partial := e.Properties["partial"]
	require.False(t, partial, "a failed rule leaves no partial writes")
	require.Equal(t, "android", e.Context.Device)
	require.Equal(t, "diwali", e.Properties["campaign"])
	require.True(t, e.Filtered)
}

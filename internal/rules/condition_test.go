package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

func TestParseCondition_Leaf(t *testing.T) {
	cond, err := ParseCondition(map[string]interface{}{
		"field":     "amount_zar",
		"operator":  "gt",
		"threshold": 1000.0,
	})
	require.NoError(t, err)

	assert.False(t, cond.IsCombinator())
	assert.Equal(t, "amount_zar", cond.Field)
	assert.Equal(t, "gt", cond.Operator)
	assert.Equal(t, 1000.0, cond.Params["threshold"])
}

func TestParseCondition_Nested(t *testing.T) {
	cond, err := ParseCondition(map[string]interface{}{
		"and": []interface{}{
			map[string]interface{}{"field": "channel", "operator": "eq", "target": "api"},
			map[string]interface{}{
				"or": []interface{}{
					map[string]interface{}{"field": "amount_zar", "operator": "gt", "threshold": 500.0},
					map[string]interface{}{"field": "merchant_category", "operator": "in", "list": []interface{}{"x"}},
				},
			},
		},
	})
	require.NoError(t, err)

	require.Len(t, cond.All, 2)
	assert.True(t, cond.All[1].IsCombinator())
	assert.Len(t, cond.All[1].Any, 2)
}

func TestParseCondition_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]interface{}
	}{
		{"nil condition", nil},
		{"missing field", map[string]interface{}{"operator": "gt", "threshold": 1.0}},
		{"unknown operator", map[string]interface{}{"field": "amount_zar", "operator": "between", "threshold": 1.0}},
		{"missing required param", map[string]interface{}{"field": "amount_zar", "operator": "gt"}},
		{"in without list", map[string]interface{}{"field": "channel", "operator": "in"}},
		{"combinator not an array", map[string]interface{}{"and": "nope"}},
		{"malformed child", map[string]interface{}{"and": []interface{}{map[string]interface{}{"field": "x", "operator": "bogus"}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCondition(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestParseCondition_EmptyCombinators(t *testing.T) {
	cond, err := ParseCondition(map[string]interface{}{"and": []interface{}{}})
	require.NoError(t, err)
	assert.NotNil(t, cond.All)
	assert.Empty(t, cond.All)

	cond, err = ParseCondition(map[string]interface{}{"or": []interface{}{}})
	require.NoError(t, err)
	assert.NotNil(t, cond.Any)
	assert.Empty(t, cond.Any)
}

func TestValidateCondition_DefaultRulesAreValid(t *testing.T) {
	for _, rule := range DefaultRules() {
		assert.NoError(t, ValidateCondition(rule.Condition), rule.Code)
	}
}

func TestToJSONB_RoundTrip(t *testing.T) {
	raw := models.JSONB{
		"and": []interface{}{
			map[string]interface{}{"field": "channel", "operator": "eq", "target": "api"},
			map[string]interface{}{"field": "amount_zar", "operator": "gt", "threshold": 500.0},
		},
	}

	cond, err := ParseCondition(raw)
	require.NoError(t, err)

	rendered := cond.ToJSONB()
	reparsed, err := ParseCondition(rendered)
	require.NoError(t, err)

	require.Len(t, reparsed.All, 2)
	assert.Equal(t, "channel", reparsed.All[0].Field)
	assert.Equal(t, 500.0, reparsed.All[1].Params["threshold"])
}

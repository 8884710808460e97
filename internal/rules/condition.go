package rules

import (
	"fmt"

	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

// Condition is one node of a rule's predicate tree: either a combinator
// (All/Any) over child nodes or an operator leaf against a transaction field.
type Condition struct {
	All      []Condition
	Any      []Condition
	Field    string
	Operator string
	Params   map[string]interface{}
}

// IsCombinator reports whether the node combines child conditions.
func (c Condition) IsCombinator() bool {
	return c.All != nil || c.Any != nil
}

// requiredParam maps each operator to the parameter its leaf must carry.
var requiredParam = map[string]string{
	"gt":       "threshold",
	"gte":      "threshold",
	"lt":       "threshold",
	"lte":      "threshold",
	"eq":       "target",
	"neq":      "target",
	"in":       "list",
	"not_in":   "list",
	"contains": "substring",
}

// ParseCondition converts the stored JSON form of a condition into its
// normalized tree, validating the shape. Called at rule creation so a
// malformed condition fails the write, not a later scoring run.
func ParseCondition(raw map[string]interface{}) (Condition, error) {
	if raw == nil {
		return Condition{}, fmt.Errorf("condition is empty")
	}

	if children, ok := raw["and"]; ok {
		nodes, err := parseChildren(children)
		if err != nil {
			return Condition{}, fmt.Errorf("and: %w", err)
		}
		return Condition{All: nodes}, nil
	}

	if children, ok := raw["or"]; ok {
		nodes, err := parseChildren(children)
		if err != nil {
			return Condition{}, fmt.Errorf("or: %w", err)
		}
		return Condition{Any: nodes}, nil
	}

	field, _ := raw["field"].(string)
	if field == "" {
		return Condition{}, fmt.Errorf("leaf is missing field")
	}

	operator, _ := raw["operator"].(string)
	param, known := requiredParam[operator]
	if !known {
		return Condition{}, fmt.Errorf("unknown operator %q", operator)
	}

	if _, present := raw[param]; !present {
		return Condition{}, fmt.Errorf("operator %q requires parameter %q", operator, param)
	}

	params := make(map[string]interface{})
	for key, value := range raw {
		if key != "field" && key != "operator" {
			params[key] = value
		}
	}

	return Condition{Field: field, Operator: operator, Params: params}, nil
}

func parseChildren(value interface{}) ([]Condition, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("combinator value must be an array")
	}

	// Empty combinators are valid: and[] holds, or[] does not.
	nodes := make([]Condition, 0, len(list))
	for i, item := range list {
		child, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("child %d is not an object", i)
		}
		node, err := ParseCondition(child)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// ValidateCondition checks the stored form without keeping the parsed tree.
func ValidateCondition(raw models.JSONB) error {
	_, err := ParseCondition(raw)
	return err
}

// ToJSONB renders the normalized tree back to its stored form.
func (c Condition) ToJSONB() models.JSONB {
	if c.All != nil {
		children := make([]interface{}, 0, len(c.All))
		for _, child := range c.All {
			children = append(children, map[string]interface{}(child.ToJSONB()))
		}
		return models.JSONB{"and": children}
	}

	if c.Any != nil {
		children := make([]interface{}, 0, len(c.Any))
		for _, child := range c.Any {
			children = append(children, map[string]interface{}(child.ToJSONB()))
		}
		return models.JSONB{"or": children}
	}

	node := models.JSONB{"field": c.Field, "operator": c.Operator}
	for key, value := range c.Params {
		node[key] = value
	}
	return node
}

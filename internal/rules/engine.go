package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

// OperatorFunc evaluates one leaf against a resolved field value. A returned
// error means the value could not be coerced; the leaf then counts as not
// triggered.
type OperatorFunc func(value interface{}, params map[string]interface{}) (bool, error)

var operators = map[string]OperatorFunc{
	"gt":       func(v interface{}, p map[string]interface{}) (bool, error) { return compareNumeric(v, p, "gt") },
	"gte":      func(v interface{}, p map[string]interface{}) (bool, error) { return compareNumeric(v, p, "gte") },
	"lt":       func(v interface{}, p map[string]interface{}) (bool, error) { return compareNumeric(v, p, "lt") },
	"lte":      func(v interface{}, p map[string]interface{}) (bool, error) { return compareNumeric(v, p, "lte") },
	"eq":       opEqual,
	"neq":      opNotEqual,
	"in":       opIn,
	"not_in":   opNotIn,
	"contains": opContains,
}

// RegisterOperator adds or replaces an operator. Call before scoring starts;
// the table is not guarded for concurrent mutation.
func RegisterOperator(name string, fn OperatorFunc) {
	operators[name] = fn
}

// Result is the outcome of evaluating a rule set against one transaction.
type Result struct {
	RuleScore      float64
	TriggeredCodes []string
	Explanation    models.JSONB
}

// Engine evaluates fraud rules against transactions.
type Engine struct{}

// NewEngine creates a rule engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs every rule against the transaction. Triggered codes keep the
// input order of rules; the score is the capped sum of fired weights. Rules
// that cannot be parsed or evaluated count as not fired, never as errors.
func (e *Engine) Evaluate(txn *models.Transaction, activeRules []*models.FraudRule) Result {
	result := Result{
		TriggeredCodes: []string{},
		Explanation:    models.JSONB{},
	}

	var sum float64
	for _, rule := range activeRules {
		fired := e.evaluateRule(txn, rule)
		if fired {
			result.TriggeredCodes = append(result.TriggeredCodes, rule.Code)
			sum += rule.Weight
		}

		result.Explanation[rule.Code] = map[string]interface{}{
			"fired":  fired,
			"weight": rule.Weight,
			"name":   rule.Name,
		}
	}

	result.RuleScore = round4(math.Min(sum, 1.0))
	return result
}

func (e *Engine) evaluateRule(txn *models.Transaction, rule *models.FraudRule) bool {
	condition, err := ParseCondition(rule.Condition)
	if err != nil {
		log.Warn().
			Str("rule_code", rule.Code).
			Err(err).
			Msg("Rule condition is malformed, treating as not fired")
		return false
	}

	return e.evaluateNode(txn, condition, rule.Code)
}

func (e *Engine) evaluateNode(txn *models.Transaction, node Condition, ruleCode string) bool {
	switch {
	case node.All != nil:
		for _, child := range node.All {
			if !e.evaluateNode(txn, child, ruleCode) {
				return false
			}
		}
		return true

	case node.Any != nil:
		for _, child := range node.Any {
			if e.evaluateNode(txn, child, ruleCode) {
				return true
			}
		}
		return false
	}

	value, found := resolveField(txn, node.Field)
	if !found {
		return false
	}

	fn, known := operators[node.Operator]
	if !known {
		log.Warn().
			Str("rule_code", ruleCode).
			Str("operator", node.Operator).
			Msg("Unknown rule operator, treating leaf as false")
		return false
	}

	fired, err := fn(value, node.Params)
	if err != nil {
		log.Warn().
			Str("rule_code", ruleCode).
			Str("field", node.Field).
			Err(err).
			Msg("Rule operator coercion failed, treating leaf as false")
		return false
	}

	return fired
}

// resolveField walks a dotted path against the transaction. Dots descend
// into the metadata and geolocation mappings. A missing segment or nil value
// reports not found.
func resolveField(txn *models.Transaction, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")

	var current interface{}
	switch parts[0] {
	case "id":
		current = txn.ID.String()
	case "external_id":
		current = txn.ExternalID
	case "sender_id":
		current = txn.SenderID
	case "receiver_id":
		current = txn.ReceiverID
	case "amount_zar":
		current = txn.AmountZAR
	case "currency":
		current = txn.Currency
	case "channel":
		current = txn.Channel
	case "merchant_category":
		current = txn.MerchantCategory
	case "ip_address":
		current = txn.IPAddress
	case "device_fingerprint":
		current = txn.DeviceFingerprint
	case "status":
		current = txn.Status
	case "geolocation":
		current = map[string]interface{}(txn.Geolocation)
	case "metadata":
		current = map[string]interface{}(txn.Metadata)
	default:
		return nil, false
	}

	for _, part := range parts[1:] {
		mapping, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = mapping[part]
		if !ok {
			return nil, false
		}
	}

	if current == nil {
		return nil, false
	}
	return current, true
}

func compareNumeric(value interface{}, params map[string]interface{}, op string) (bool, error) {
	threshold, err := toFloat64(params["threshold"])
	if err != nil {
		return false, fmt.Errorf("threshold: %w", err)
	}

	actual, err := toFloat64(value)
	if err != nil {
		return false, err
	}

	switch op {
	case "gt":
		return actual > threshold, nil
	case "gte":
		return actual >= threshold, nil
	case "lt":
		return actual < threshold, nil
	case "lte":
		return actual <= threshold, nil
	}
	return false, fmt.Errorf("unsupported comparison %q", op)
}

func opEqual(value interface{}, params map[string]interface{}) (bool, error) {
	return stringify(value) == stringify(params["target"]), nil
}

func opNotEqual(value interface{}, params map[string]interface{}) (bool, error) {
	return stringify(value) != stringify(params["target"]), nil
}

func opIn(value interface{}, params map[string]interface{}) (bool, error) {
	list, ok := params["list"].([]interface{})
	if !ok {
		return false, fmt.Errorf("list parameter is not an array")
	}

	needle := stringify(value)
	for _, item := range list {
		if stringify(item) == needle {
			return true, nil
		}
	}
	return false, nil
}

func opNotIn(value interface{}, params map[string]interface{}) (bool, error) {
	found, err := opIn(value, params)
	if err != nil {
		return false, err
	}
	return !found, nil
}

func opContains(value interface{}, params map[string]interface{}) (bool, error) {
	substring := strings.ToLower(stringify(params["substring"]))
	return strings.Contains(strings.ToLower(stringify(value)), substring), nil
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as number", v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// File: internal/alerting/condition.go
package alerting

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/soroscan/soroscan/pkg/utils"
)

// Op identifies a condition operator. The set is closed: evaluation treats
// anything outside it as a non-match rather than an error.
type Op string

const (
	OpEq         Op = "eq"
	OpNeq        Op = "neq"
	OpGt         Op = "gt"
	OpLt         Op = "lt"
	OpGte        Op = "gte"
	OpLte        Op = "lte"
	OpContains   Op = "contains"
	OpStartsWith Op = "startswith"
	OpIn         Op = "in"
	OpAnd        Op = "and"
	OpOr         Op = "or"
	OpNot        Op = "not"
)

var leafOps = map[Op]bool{
	OpEq: true, OpNeq: true,
	OpGt: true, OpLt: true, OpGte: true, OpLte: true,
	OpContains: true, OpStartsWith: true, OpIn: true,
}

// Condition is one node of a rule's condition tree. Leaf nodes carry a field
// path and comparison value; "and"/"or" carry a list of children and "not"
// carries a single child.
type Condition struct {
	Op         Op           `json:"op"`
	Field      string       `json:"field,omitempty"`
	Value      interface{}  `json:"value,omitempty"`
	Condition  *Condition   `json:"condition,omitempty"`
	Conditions []*Condition `json:"conditions,omitempty"`
}

// ParseCondition decodes and validates a condition tree
func ParseCondition(raw json.RawMessage) (*Condition, error) {
	var cond Condition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid condition JSON", err.Error())
	}
	if err := validateCondition(&cond); err != nil {
		return nil, err
	}
	return &cond, nil
}

func validateCondition(cond *Condition) error {
	switch {
	case cond.Op == OpAnd || cond.Op == OpOr:
		for _, child := range cond.Conditions {
			if err := validateCondition(child); err != nil {
				return err
			}
		}
		return nil
	case cond.Op == OpNot:
		if cond.Condition == nil {
			return utils.NewAppError(utils.ErrCodeValidation,
				"Negation requires a child condition", string(cond.Op))
		}
		return validateCondition(cond.Condition)
	case leafOps[cond.Op]:
		if cond.Field == "" {
			return utils.NewAppError(utils.ErrCodeValidation,
				"Condition field is required", fmt.Sprintf("op: %s", cond.Op))
		}
		return nil
	default:
		return utils.NewAppError(utils.ErrCodeValidation,
			"Unknown condition operator", string(cond.Op))
	}
}

// Evaluate applies the condition tree to an event payload. It is total: every
// input produces a boolean, and anything malformed or missing fails closed.
// An empty "and" is true, an empty "or" is false; both short-circuit.
func Evaluate(cond *Condition, payload map[string]interface{}) bool {
	if cond == nil {
		return false
	}

	switch cond.Op {
	case OpAnd:
		for _, child := range cond.Conditions {
			if !Evaluate(child, payload) {
				return false
			}
		}
		return true

	case OpOr:
		for _, child := range cond.Conditions {
			if Evaluate(child, payload) {
				return true
			}
		}
		return false

	case OpNot:
		if cond.Condition == nil {
			return false
		}
		return !Evaluate(cond.Condition, payload)
	}

	value, found := resolveField(payload, cond.Field)

	switch cond.Op {
	case OpEq:
		return stringify(value, found) == stringify(cond.Value, true)
	case OpNeq:
		return stringify(value, found) != stringify(cond.Value, true)

	case OpGt, OpLt, OpGte, OpLte:
		if !found {
			return false
		}
		left, ok := toFloat(value)
		if !ok {
			return false
		}
		right, ok := toFloat(cond.Value)
		if !ok {
			return false
		}
		switch cond.Op {
		case OpGt:
			return left > right
		case OpLt:
			return left < right
		case OpGte:
			return left >= right
		default:
			return left <= right
		}

	case OpContains:
		if !found {
			return false
		}
		return strings.Contains(stringify(value, true), stringify(cond.Value, true))

	case OpStartsWith:
		if !found {
			return false
		}
		return strings.HasPrefix(stringify(value, true), stringify(cond.Value, true))

	case OpIn:
		if !found {
			return false
		}
		items, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, item := range items {
			if reflect.DeepEqual(value, item) {
				return true
			}
		}
		return false
	}

	return false
}

// resolveField walks a dotted path through nested payload maps
func resolveField(payload map[string]interface{}, field string) (interface{}, bool) {
	parts := strings.Split(field, ".")
	var current interface{} = payload

	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// stringify renders a value for string comparison. Absent fields compare as
// the literal "None" so equality against it is expressible.
func stringify(value interface{}, found bool) string {
	if !found || value == nil {
		return "None"
	}
	if f, ok := value.(float64); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprintf("%v", value)
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Package rules interprets rule condition payloads. A payload carries
// structured keys (time_threshold_hours, location_types, ...) consumed
// directly by evaluators, and optionally a generic "conditions" list of
// {field, operator, value, logical_operator} entries combined left-to-right.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"warescan/internal/types"
)

// Operators accepted in generic conditions.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpInList      = "in_list"
	OpRegexMatch  = "regex_match"
)

// Condition is one generic predicate from a rule payload.
type Condition struct {
	Field    string `json:"field" validate:"required"`
	Operator string `json:"operator" validate:"required,oneof=equals not_equals contains not_contains greater_than less_than in_list regex_match"`
	Value    any    `json:"value"`
	// Logical combines this condition with the next one; empty means AND.
	Logical string `json:"logical_operator,omitempty" validate:"omitempty,oneof=AND OR"`
}

// =============================================================================
// STRUCTURED KEY ACCESSORS
// =============================================================================

// Payload wraps the raw conditions map with typed accessors. Numeric values
// may arrive as int, int64 or float64 depending on the decoder.
type Payload map[string]any

// Float returns a numeric key.
func (p Payload) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Int returns an integer key.
func (p Payload) Int(key string) (int, bool) {
	f, ok := p.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool returns a boolean key; missing or mistyped keys read as false.
func (p Payload) Bool(key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// String returns a string key.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringList returns a list-of-strings key, accepting []string or []any.
func (p Payload) StringList(key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// LocationTypes returns the location_types key as typed values.
func (p Payload) LocationTypes(key string) []types.LocationType {
	raw := p.StringList(key)
	out := make([]types.LocationType, 0, len(raw))
	for _, s := range raw {
		out = append(out, types.LocationType(strings.ToUpper(s)))
	}
	return out
}

// Conditions extracts the generic condition list, if present.
func (p Payload) Conditions() ([]Condition, error) {
	v, ok := p["conditions"]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]Condition); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("conditions must be a list")
	}
	out := make([]Condition, 0, len(list))
	for i, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("condition %d is not an object", i)
		}
		c := Condition{}
		if s, ok := m["field"].(string); ok {
			c.Field = s
		}
		if s, ok := m["operator"].(string); ok {
			c.Operator = s
		}
		c.Value = m["value"]
		if s, ok := m["logical_operator"].(string); ok {
			c.Logical = s
		}
		out = append(out, c)
	}
	return out, nil
}

// =============================================================================
// GENERIC CONDITION EVALUATION
// =============================================================================

// EvaluateConditions applies the condition list to a field map, combining
// results left-to-right with each condition's logical operator. An empty
// list is true. Unknown operators evaluate to false.
func EvaluateConditions(conds []Condition, fields map[string]any) bool {
	if len(conds) == 0 {
		return true
	}
	result := evalOne(conds[0], fields)
	for i := 1; i < len(conds); i++ {
		next := evalOne(conds[i], fields)
		if strings.EqualFold(conds[i-1].Logical, "OR") {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

func evalOne(c Condition, fields map[string]any) bool {
	actual, ok := fields[c.Field]
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEquals:
		return asString(actual) == asString(c.Value)
	case OpNotEquals:
		return asString(actual) != asString(c.Value)
	case OpContains:
		return strings.Contains(
			strings.ToUpper(asString(actual)), strings.ToUpper(asString(c.Value)))
	case OpNotContains:
		return !strings.Contains(
			strings.ToUpper(asString(actual)), strings.ToUpper(asString(c.Value)))
	case OpGreaterThan:
		a, aok := asFloat(actual)
		b, bok := asFloat(c.Value)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := asFloat(actual)
		b, bok := asFloat(c.Value)
		return aok && bok && a < b
	case OpInList:
		list, ok := c.Value.([]any)
		if !ok {
			if sl, ok := c.Value.([]string); ok {
				for _, s := range sl {
					if asString(actual) == s {
						return true
					}
				}
			}
			return false
		}
		for _, e := range list {
			if asString(actual) == asString(e) {
				return true
			}
		}
		return false
	case OpRegexMatch:
		re, err := regexp.Compile(asString(c.Value))
		if err != nil {
			return false
		}
		return re.MatchString(asString(actual))
	}
	return false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

package rules

import (
	"strings"

	"github.com/shopspring/decimal"
)

// evalCondition evaluates one condition against the evaluation
// context. Missing context fields and unknown operators are a
// no-match, never an error: a misconfigured rule must not take the
// engine down.
func evalCondition(ctx map[string]any, cond Condition) bool {
	actual, ok := ctx[cond.Field]
	if !ok {
		return false
	}

	switch cond.Operator {
	case OpEquals:
		return valuesEqual(actual, cond.Value)
	case OpNotEquals:
		return !valuesEqual(actual, cond.Value)
	case OpGreaterThan:
		a, aok := toNumber(actual)
		b, bok := toNumber(cond.Value)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := toNumber(actual)
		b, bok := toNumber(cond.Value)
		return aok && bok && a < b
	case OpBetween:
		vals := cond.Values
		if len(vals) != 2 {
			return false
		}
		a, aok := toNumber(actual)
		lo, lok := toNumber(vals[0])
		hi, hok := toNumber(vals[1])
		return aok && lok && hok && a >= lo && a <= hi
	case OpIn:
		return memberOf(actual, listValues(cond))
	case OpNotIn:
		// An empty exclusion list excludes nothing.
		return !memberOf(actual, listValues(cond))
	case OpContains:
		return contains(actual, cond.Value)
	default:
		return false
	}
}

// listValues returns the candidate list for in/not_in, accepting
// either the Values slice or a Value that is itself a slice (JSONB
// round-trips arrays as []any).
func listValues(cond Condition) []any {
	if len(cond.Values) > 0 {
		return cond.Values
	}
	if arr, ok := cond.Value.([]any); ok {
		return arr
	}
	return nil
}

func memberOf(actual any, vals []any) bool {
	for _, v := range vals {
		if valuesEqual(actual, v) {
			return true
		}
	}
	return false
}

// contains matches a substring when the context value is a string, or
// membership when it is a slice.
func contains(actual, value any) bool {
	switch a := actual.(type) {
	case string:
		s, ok := value.(string)
		return ok && strings.Contains(a, s)
	case []any:
		return memberOf(value, a)
	case []string:
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, item := range a {
			if item == s {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// valuesEqual compares numerically when both sides are numeric,
// otherwise by exact type-aware equality. JSON decoding turns every
// number into float64, so "party_size equals 4" must match an int 4.
func valuesEqual(a, b any) bool {
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an == bn
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// toNumber coerces the numeric types the context and JSONB conditions
// produce into float64 for comparison.
func toNumber(v any) (float64, bool) {
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
	case decimal.Decimal:
		f, _ := n.Float64()
		return f, true
	default:
		return 0, false
	}
}

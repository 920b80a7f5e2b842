package predicate

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Evaluate runs the predicate against a flat runtime context (spec §4.D).
// A {"var": d} node resolves to context[d], or JSON-null if absent.
// Comparison operators that hit a type mismatch return false rather than
// erroring. An error is returned for an unknown operator (defensive -
// Parse already rejects these), for a binary operator without exactly 2
// arguments, for an "and"/"or" operand that is not a boolean, and when
// the root node does not evaluate to a boolean.
func Evaluate(n Node, context map[string]any) (bool, error) {
	v, err := evalValue(n, context)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("predicate: root node did not evaluate to a boolean (got %T)", v)
	}
	return b, nil
}

// evalValue evaluates any node to its JSON value: Var/Literal resolve
// directly, Op nodes always resolve to a bool (every operator in this
// language is predicate-valued), which lets a boolean sub-expression be
// used as an operand to a comparison like "==".
func evalValue(n Node, context map[string]any) (any, error) {
	switch n.Kind {
	case KindLiteral:
		return n.Literal, nil
	case KindVar:
		v, ok := context[n.Var]
		if !ok {
			return nil, nil
		}
		return v, nil
	case KindOp:
		return evalOp(n, context)
	default:
		return nil, fmt.Errorf("predicate: unrecognized node kind %d", n.Kind)
	}
}

func evalOp(n Node, context map[string]any) (any, error) {
	switch n.Op {
	case "==":
		a, b, err := pair(n, context)
		if err != nil {
			return nil, err
		}
		return deepEqual(a, b), nil
	case "!=":
		a, b, err := pair(n, context)
		if err != nil {
			return nil, err
		}
		return !deepEqual(a, b), nil
	case "<", ">", "<=", ">=":
		return evalNumericCompare(n, context)
	case "in":
		return evalIn(n, context)
	case "and":
		return evalAnd(n, context)
	case "or":
		return evalOr(n, context)
	default:
		return nil, fmt.Errorf("predicate: unknown operator %q", n.Op)
	}
}

func pair(n Node, context map[string]any) (any, any, error) {
	if len(n.Args) != 2 {
		return nil, nil, fmt.Errorf("predicate: operator %q requires exactly 2 arguments, got %d", n.Op, len(n.Args))
	}
	a, err := evalValue(n.Args[0], context)
	if err != nil {
		return nil, nil, err
	}
	b, err := evalValue(n.Args[1], context)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func evalNumericCompare(n Node, context map[string]any) (any, error) {
	a, b, err := pair(n, context)
	if err != nil {
		return nil, err
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		// Type mismatch is a non-match, not an error (spec §4.D).
		return false, nil
	}
	switch n.Op {
	case "<":
		return af < bf, nil
	case ">":
		return af > bf, nil
	case "<=":
		return af <= bf, nil
	case ">=":
		return af >= bf, nil
	}
	return false, nil
}

func evalIn(n Node, context map[string]any) (any, error) {
	needle, haystack, err := pair(n, context)
	if err != nil {
		return nil, err
	}
	switch h := haystack.(type) {
	case []any:
		for _, elem := range h {
			if deepEqual(needle, elem) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(h, s), nil
	default:
		return false, nil
	}
}

func evalAnd(n Node, context map[string]any) (any, error) {
	for _, arg := range n.Args {
		v, err := evalValue(arg, context)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("predicate: \"and\" operand did not evaluate to boolean (got %T)", v)
		}
		if !b {
			return false, nil
		}
	}
	return true, nil // empty "and" is true
}

func evalOr(n Node, context map[string]any) (any, error) {
	for _, arg := range n.Args {
		v, err := evalValue(arg, context)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("predicate: \"or\" operand did not evaluate to boolean (got %T)", v)
		}
		if b {
			return true, nil
		}
	}
	return false, nil // empty "or" is false
}

// deepEqual compares two JSON values for equality, normalizing numeric
// representations (float64, json.Number, int) so semantically equal
// numbers compare equal regardless of how they were decoded.
func deepEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Package predicate implements the condition language's AST (spec §3, §4.D):
// a small, closed set of JSON operators over runtime dimensions. It is
// deliberately not a general expression language - the operator set is
// fixed so every stored condition stays auditable and cheap to evaluate.
//
// Modeled on the validate-then-evaluate pipeline shape of a CEL decision
// point (parse once, reject malformed trees at the boundary, evaluate
// against a flat input map) without adopting CEL itself: spec's Non-goals
// rule out a general rules engine, so the grammar here stays closed.
package predicate

import (
	"fmt"

	"github.com/cacsvc/core/pkg/errs"
)

// Kind discriminates the three node shapes a condition tree can take.
type Kind int

const (
	KindLiteral Kind = iota
	KindVar
	KindOp
)

// operators is the closed set the condition language supports.
var operators = map[string]bool{
	"==": true, "!=": true,
	"<": true, ">": true, "<=": true, ">=": true,
	"in": true, "and": true, "or": true,
}

// Node is a parsed predicate tree node: a tagged sum of Var/Op/Literal,
// chosen over walking the raw JSON tree directly so malformed input is
// rejected once, at parse time, rather than on every evaluation.
type Node struct {
	Kind    Kind
	Var     string // set when Kind == KindVar
	Op      string // set when Kind == KindOp
	Args    []Node // set when Kind == KindOp
	Literal any    // set when Kind == KindLiteral; raw JSON scalar or array
}

// Parse turns a decoded JSON value (object/array/scalar, as produced by
// encoding/json) into a predicate tree, or fails with MalformedPredicate.
func Parse(raw any) (Node, error) {
	n, err := parse(raw)
	if err != nil {
		return Node{}, errs.MalformedPredicate(err)
	}
	return n, nil
}

func parse(raw any) (Node, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		// Any scalar or array that isn't shaped like {"var": ...} or
		// {"<op>": [...]} is literal data, taken as-is (spec §3: Literal).
		return Node{Kind: KindLiteral, Literal: raw}, nil
	}

	if len(obj) != 1 {
		return Node{}, fmt.Errorf("predicate object must have exactly one key, got %d", len(obj))
	}

	for key, val := range obj {
		if key == "var" {
			name, ok := val.(string)
			if !ok {
				return Node{}, fmt.Errorf(`"var" value must be a string, got %T`, val)
			}
			return Node{Kind: KindVar, Var: name}, nil
		}

		if !operators[key] {
			return Node{}, fmt.Errorf("unknown operator %q", key)
		}

		argsRaw, ok := val.([]interface{})
		if !ok {
			return Node{}, fmt.Errorf("operator %q arguments must be an array, got %T", key, val)
		}

		args := make([]Node, 0, len(argsRaw))
		for _, a := range argsRaw {
			n, err := parse(a)
			if err != nil {
				return Node{}, err
			}
			args = append(args, n)
		}
		return Node{Kind: KindOp, Op: key, Args: args}, nil
	}

	panic("unreachable: single-key map iterated zero times")
}

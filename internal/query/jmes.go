package query

import (
	"clusterdir/internal/types"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
)

// Expression is a compiled JMESPath expression evaluated against cluster views.
type Expression struct {
	raw string
	jp  *jmespath.JMESPath
}

// Compile parses expr. A syntax error is reported as types.ErrInvalidArgument.
func Compile(expr string) (*Expression, error) {
	jp, err := jmespath.Compile(expr)
	if err != nil {
		return nil, types.Err(types.ErrInvalidArgument, err, "invalid expression %q", expr)
	}
	return &Expression{raw: expr, jp: jp}, nil
}

func (e *Expression) String() string { return e.raw }

// Match reports whether the expression evaluates to boolean true. Any other result, including
// an evaluation error, is no match.
func (e *Expression) Match(payload any) bool {
	v, err := e.jp.Search(payload)
	if err != nil {
		return false
	}
	matched, ok := v.(bool)
	return ok && matched
}

// EvalAny returns the raw value selected by the JMESPath expression.
// It will return nil and no error if the expression does not match anything.
func EvalAny(expression string, payload any) (any, error) {
	v, err := jmespath.Search(expression, payload)
	if err != nil {
		return nil, fmt.Errorf("jmespath: %w", err)
	}
	return v, nil
}

// EvalString coerces the selection to string; non-strings are JSON-encoded.
func EvalString(expression string, payload any) (*string, error) {
	v, err := EvalAny(expression, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return &t, nil
	default:
		b, _ := json.Marshal(t)
		bs := string(b)
		return &bs, nil
	}
}

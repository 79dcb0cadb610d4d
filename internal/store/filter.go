package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL predicate over events. The zero Filter matches
// everything.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr. Expressions see:
//
//	ts        int     record timestamp (seconds)
//	command   string  upper-case command name
//	identity  string  payload identity
//	payload   dyn     decoded canonical JSON payload
//
// An empty expression yields a Filter that matches every event.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("ts", cel.IntType),
		cel.Variable("command", cel.StringType),
		cel.Variable("identity", cel.StringType),
		cel.Variable("payload", cel.DynType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("filter %q: %w", expr, iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return Filter{}, fmt.Errorf("filter %q: must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, fmt.Errorf("filter %q: %w", expr, err)
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter against ev. Evaluation errors count as no
// match.
func (f Filter) Match(ev Event) bool {
	if !f.enabled {
		return true
	}
	var payload any
	_ = json.Unmarshal(ev.Payload, &payload)

	out, _, err := f.prog.Eval(map[string]any{
		"ts":       ev.Timestamp,
		"command":  ev.Command,
		"identity": ev.Identity,
		"payload":  payload,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

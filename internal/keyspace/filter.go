package keyspace

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Filter decides which discovered queues are mirrored. An empty expression
// accepts everything.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles a CEL boolean expression over the variables prefix, name
// and key, e.g. `prefix == "bull" && !name.startsWith("tmp-")`.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("prefix", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("key", cel.StringType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("compile queue filter: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, fmt.Errorf("queue filter must be boolean, got %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter for id. Evaluation errors reject the queue.
func (f Filter) Match(id Identity) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"prefix": id.Prefix,
		"name":   id.Name,
		"key":    id.Key(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

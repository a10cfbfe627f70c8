// Package expression compiles and evaluates schedule rule expressions.
//
// Expressions run in a sandboxed environment that exposes the value
// constructors (Temp, OFF), entity state lookups and the control markers
// Skip, Break and Abort.
package expression

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ManuGH/schedy/internal/value"
)

// Skip tells the evaluator to ignore the current rule and continue with
// the next one.
type Skip struct{}

// Break tells the evaluator to leave the given number of nested
// sub-schedules (at least 1).
type Break struct {
	Levels int
}

// Abort tells the evaluator to stop without touching any actor.
type Abort struct{}

// StateFunc resolves an entity ID to its current state value. The second
// return value reports whether the entity is known.
type StateFunc func(entityID string) (any, bool)

// Env carries the per-evaluation inputs of an expression.
type Env struct {
	Now      time.Time
	State    StateFunc
	Snippets map[string]any // schedule snippet results, by name
}

// Program is a compiled expression.
type Program struct {
	src  string
	prog *vm.Program
}

// Compile compiles src once. The same Program may be evaluated concurrently.
func Compile(src string) (*Program, error) {
	prog, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}
	return &Program{src: src, prog: prog}, nil
}

// Source returns the original expression text.
func (p *Program) Source() string { return p.src }

// Eval runs the program. The result is either a raw value (validated by
// the consuming actor), or one of the control markers Skip, Break, Abort.
func (p *Program) Eval(env *Env) (any, error) {
	out, err := expr.Run(p.prog, p.buildEnv(env))
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", p.src, err)
	}
	return out, nil
}

func (p *Program) buildEnv(env *Env) map[string]any {
	stateFn := env.State
	if stateFn == nil {
		stateFn = func(string) (any, bool) { return nil, false }
	}

	return map[string]any{
		"OFF": value.Off,
		"now": env.Now,
		"Temp": func(v any) (value.Temp, error) {
			return value.ParseTemp(v)
		},
		"state": func(entityID string) any {
			v, ok := stateFn(entityID)
			if !ok {
				return nil
			}
			return v
		},
		"is_on": func(entityID string) bool {
			v, ok := stateFn(entityID)
			return ok && fmt.Sprintf("%v", v) == "on"
		},
		"is_off": func(entityID string) bool {
			v, ok := stateFn(entityID)
			return ok && fmt.Sprintf("%v", v) == "off"
		},
		"snippet": func(name string) any {
			return env.Snippets[name]
		},
		"Skip": func() Skip { return Skip{} },
		"Abort": func() Abort { return Abort{} },
		"Break": func(levels ...int) Break {
			n := 1
			if len(levels) > 0 && levels[0] > 0 {
				n = levels[0]
			}
			return Break{Levels: n}
		},
	}
}

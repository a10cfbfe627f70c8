// Package schedule implements time-based rule schedules. A schedule is an
// ordered list of rules; evaluating it at a point in time yields the value
// that should currently be applied, or nothing when no rule matches.
package schedule

import (
	"fmt"
	"time"

	"github.com/ManuGH/schedy/internal/expression"
)

// Schedule is an ordered list of rules.
type Schedule struct {
	rules []*Rule
}

// Build compiles rule configurations into a Schedule.
func Build(cfgs []RuleConfig) (*Schedule, error) {
	s := &Schedule{rules: make([]*Rule, 0, len(cfgs))}
	for i, cfg := range cfgs {
		r, err := buildRule(cfg)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		s.rules = append(s.rules, r)
	}
	return s, nil
}

// Rules exposes the compiled rules, mainly for logging and tests.
func (s *Schedule) Rules() []*Rule { return s.rules }

// Result is the outcome of a schedule evaluation.
type Result struct {
	// Matched is false when no rule matched (actors are left untouched).
	Matched bool
	// Aborted is true when an expression returned Abort().
	Aborted bool
	// Value is the raw result of the winning rule; the consuming actor
	// validates and converts it.
	Value any
	// Rule is the rule the value originates from.
	Rule *Rule
}

// EvaluateAt walks the schedule in order and returns the result of the
// first matching rule. Expressions may steer evaluation with Skip, Break
// and Abort markers.
func (s *Schedule) EvaluateAt(t time.Time, env *expression.Env) (Result, error) {
	if env == nil {
		env = &expression.Env{}
	}
	if env.Now.IsZero() {
		env.Now = t
	}

	res, _, err := s.evaluate(t, env, nil)
	return res, err
}

// evaluate recursively walks the schedule. path holds the ancestor rules of
// the current sub-schedule; breakLevels > 0 instructs the caller to unwind
// that many nesting levels.
func (s *Schedule) evaluate(t time.Time, env *expression.Env, path []*Rule) (Result, int, error) {
	for _, r := range s.rules {
		if !r.activeAt(t) {
			continue
		}

		if r.Sub != nil {
			res, breakLevels, err := r.Sub.evaluate(t, env, append(path, r))
			if err != nil {
				return Result{}, 0, err
			}
			if res.Matched || res.Aborted {
				return res, 0, nil
			}
			if breakLevels > 0 {
				// The sub-schedule asked to unwind further.
				return Result{}, breakLevels - 1, nil
			}
			continue
		}

		// The winning value comes from the deepest rule in the path that
		// defines one, starting at the leaf.
		target := r
		if !target.hasResult() {
			target = nil
			for i := len(path) - 1; i >= 0; i-- {
				if path[i].hasResult() {
					target = path[i]
					break
				}
			}
		}
		if target == nil {
			return Result{}, 0, fmt.Errorf("rule %s: no value along rule path", r.describe())
		}

		if target.Expr == nil {
			return Result{Matched: true, Value: target.Value, Rule: r}, 0, nil
		}

		out, err := target.Expr.Eval(env)
		if err != nil {
			return Result{}, 0, err
		}
		switch v := out.(type) {
		case expression.Skip:
			continue
		case expression.Abort:
			return Result{Aborted: true, Rule: r}, 0, nil
		case expression.Break:
			if v.Levels > 1 {
				return Result{}, v.Levels - 1, nil
			}
			// Break out of the current sub-schedule only.
			return Result{}, 0, nil
		default:
			return Result{Matched: true, Value: out, Rule: r}, 0, nil
		}
	}

	return Result{}, 0, nil
}

// nextChangeHorizonDays bounds the NextChange scan. A week covers every
// weekday constraint; anything further out is re-discovered after the next
// boundary fires.
const nextChangeHorizonDays = 8

// NextChange returns the earliest instant after t at which the evaluation
// result could change. The zero time is returned when no boundary exists
// within the scan horizon (e.g. an empty schedule).
func (s *Schedule) NextChange(t time.Time) time.Time {
	best := time.Time{}

	consider := func(candidate time.Time) {
		if !candidate.After(t) {
			return
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}

	for day := 0; day < nextChangeHorizonDays; day++ {
		base := midnight(t).AddDate(0, 0, day)
		// Constraints flip at midnight.
		consider(base)
		s.eachRule(func(r *Rule) {
			consider(r.Start.On(base))
			consider(r.End.On(base).AddDate(0, 0, r.EndPlusDays))
		})
		if !best.IsZero() && best.Before(base.AddDate(0, 0, 1)) {
			break
		}
	}

	return best
}

// eachRule visits every rule including nested sub-schedule rules.
func (s *Schedule) eachRule(fn func(*Rule)) {
	for _, r := range s.rules {
		fn(r)
		if r.Sub != nil {
			r.Sub.eachRule(fn)
		}
	}
}

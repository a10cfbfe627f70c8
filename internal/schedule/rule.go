package schedule

import (
	"fmt"
	"time"

	"github.com/ManuGH/schedy/internal/expression"
)

// RuleConfig is the YAML shape of a schedule rule.
type RuleConfig struct {
	Name        string       `yaml:"name"`
	Value       any          `yaml:"v"`
	Expression  string       `yaml:"x"`
	Start       string       `yaml:"start"`
	End         string       `yaml:"end"`
	EndPlusDays int          `yaml:"end_plus_days"`
	Weekdays    any          `yaml:"weekdays"`
	Months      any          `yaml:"months"`
	Days        any          `yaml:"days"`
	Weeks       any          `yaml:"weeks"`
	StartDate   string       `yaml:"start_date"`
	EndDate     string       `yaml:"end_date"`
	Rules       []RuleConfig `yaml:"rules"`
}

// Rule is a single schedule entry. A rule either carries a result (static
// value or compiled expression), a sub-schedule, or both.
type Rule struct {
	Name        string
	Start       TimeOfDay
	End         TimeOfDay
	StartSet    bool
	EndSet      bool
	EndPlusDays int

	Weekdays NumberSet
	Months   NumberSet
	Days     NumberSet
	Weeks    NumberSet

	StartDate *time.Time // inclusive, midnight-anchored
	EndDate   *time.Time // inclusive

	Value   any
	Expr    *expression.Program
	hasExpr bool

	Sub *Schedule
}

const dateLayout = "2006-01-02"

func buildRule(cfg RuleConfig) (*Rule, error) {
	r := &Rule{
		Name:        cfg.Name,
		EndPlusDays: cfg.EndPlusDays,
		Value:       cfg.Value,
	}

	if cfg.EndPlusDays < 0 {
		return nil, fmt.Errorf("rule %s: end_plus_days must be >= 0", r.describe())
	}

	var err error
	if cfg.Start != "" {
		if r.Start, err = ParseTimeOfDay(cfg.Start); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.describe(), err)
		}
		r.StartSet = true
	}
	if cfg.End != "" {
		if r.End, err = ParseTimeOfDay(cfg.End); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.describe(), err)
		}
		r.EndSet = true
	}

	// A rule without an end spans until midnight, one without a start
	// begins at midnight. Both unset means the whole day.
	if !r.EndSet && r.EndPlusDays == 0 {
		r.EndPlusDays = 1
	}

	start := r.Start.Duration()
	end := r.End.Duration() + time.Duration(r.EndPlusDays)*24*time.Hour
	if end <= start {
		return nil, fmt.Errorf("rule %s: end %s is not after start %s", r.describe(), r.End, r.Start)
	}

	if r.Weekdays, err = ParseNumberSet(cfg.Weekdays); err != nil {
		return nil, fmt.Errorf("rule %s: weekdays: %w", r.describe(), err)
	}
	if r.Months, err = ParseNumberSet(cfg.Months); err != nil {
		return nil, fmt.Errorf("rule %s: months: %w", r.describe(), err)
	}
	if r.Days, err = ParseNumberSet(cfg.Days); err != nil {
		return nil, fmt.Errorf("rule %s: days: %w", r.describe(), err)
	}
	if r.Weeks, err = ParseNumberSet(cfg.Weeks); err != nil {
		return nil, fmt.Errorf("rule %s: weeks: %w", r.describe(), err)
	}

	if cfg.StartDate != "" {
		d, err := time.Parse(dateLayout, cfg.StartDate)
		if err != nil {
			return nil, fmt.Errorf("rule %s: start_date: %w", r.describe(), err)
		}
		r.StartDate = &d
	}
	if cfg.EndDate != "" {
		d, err := time.Parse(dateLayout, cfg.EndDate)
		if err != nil {
			return nil, fmt.Errorf("rule %s: end_date: %w", r.describe(), err)
		}
		r.EndDate = &d
	}

	if cfg.Expression != "" {
		if cfg.Value != nil {
			return nil, fmt.Errorf("rule %s: v and x are mutually exclusive", r.describe())
		}
		if r.Expr, err = expression.Compile(cfg.Expression); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.describe(), err)
		}
		r.hasExpr = true
	}

	if len(cfg.Rules) > 0 {
		sub, err := Build(cfg.Rules)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.describe(), err)
		}
		r.Sub = sub
	}

	if r.Sub == nil && !r.hasResult() {
		return nil, fmt.Errorf("rule %s: needs either v, x or nested rules", r.describe())
	}

	return r, nil
}

func (r *Rule) hasResult() bool {
	return r.Value != nil || r.hasExpr
}

func (r *Rule) describe() string {
	if r.Name != "" {
		return fmt.Sprintf("%q", r.Name)
	}
	return "<unnamed>"
}

// activeAt reports whether the rule's time window and constraints cover t.
func (r *Rule) activeAt(t time.Time) bool {
	// The window may have started up to EndPlusDays days earlier.
	for back := 0; back <= r.EndPlusDays; back++ {
		base := midnight(t).AddDate(0, 0, -back)
		if !r.constraintsMatch(base) {
			continue
		}
		start := r.Start.On(base)
		end := r.End.On(base).AddDate(0, 0, r.EndPlusDays)
		if !t.Before(start) && t.Before(end) {
			return true
		}
	}
	return false
}

// constraintsMatch checks the date-level constraints against the day the
// rule would start on.
func (r *Rule) constraintsMatch(day time.Time) bool {
	if !r.Weekdays.Contains(isoWeekday(day)) {
		return false
	}
	if !r.Months.Contains(int(day.Month())) {
		return false
	}
	if !r.Days.Contains(day.Day()) {
		return false
	}
	if !r.Weeks.Contains((day.Day()-1)/7 + 1) {
		return false
	}
	if r.StartDate != nil && dateBefore(day, *r.StartDate) {
		return false
	}
	if r.EndDate != nil && dateBefore(*r.EndDate, day) {
		return false
	}
	return true
}

// dateBefore compares calendar dates only, ignoring time zones.
func dateBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}

// isoWeekday maps time.Weekday to ISO 8601 numbering (Monday=1 .. Sunday=7).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

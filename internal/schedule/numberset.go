package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NumberSet is a set of integers used for rule constraints (weekdays,
// months, days of month, weeks of month). A nil set means "unconstrained".
type NumberSet map[int]struct{}

// ParseNumberSet parses a constraint into a NumberSet. Supported forms are
// a single integer, a string like "1,3,5" with ranges "1-5" or "1..5"
// (optionally mixed), and a YAML list of either.
func ParseNumberSet(raw any) (NumberSet, error) {
	if raw == nil {
		return nil, nil
	}

	out := NumberSet{}
	switch v := raw.(type) {
	case int:
		out[v] = struct{}{}
		return out, nil
	case string:
		if err := parseNumberList(v, out); err != nil {
			return nil, err
		}
		return out, nil
	case []any:
		for _, item := range v {
			sub, err := ParseNumberSet(item)
			if err != nil {
				return nil, err
			}
			for n := range sub {
				out[n] = struct{}{}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("invalid constraint %v (%T)", raw, raw)
	}
}

func parseNumberList(raw string, out NumberSet) error {
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		sep := ""
		switch {
		case strings.Contains(p, ".."):
			sep = ".."
		case strings.Count(p, "-") == 1 && !strings.HasPrefix(p, "-"):
			sep = "-"
		}

		if sep != "" {
			ab := strings.SplitN(p, sep, 2)
			a, err := strconv.Atoi(strings.TrimSpace(ab[0]))
			if err != nil {
				return fmt.Errorf("invalid range start %q: %w", ab[0], err)
			}
			b, err := strconv.Atoi(strings.TrimSpace(ab[1]))
			if err != nil {
				return fmt.Errorf("invalid range end %q: %w", ab[1], err)
			}
			if a > b {
				return fmt.Errorf("invalid range %q: start > end", p)
			}
			for i := a; i <= b; i++ {
				out[i] = struct{}{}
			}
			continue
		}

		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid constraint entry %q: %w", p, err)
		}
		out[n] = struct{}{}
	}
	return nil
}

// Contains reports whether v satisfies the constraint. A nil set matches
// everything.
func (s NumberSet) Contains(v int) bool {
	if s == nil {
		return true
	}
	_, ok := s[v]
	return ok
}

// Values returns the sorted members, mainly for logging and tests.
func (s NumberSet) Values() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

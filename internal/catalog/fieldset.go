package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldSet is the evaluated set of admissible values for one calendar field
// (minute, hour, day-of-month, month, or day-of-week).
type FieldSet struct {
	Wildcard bool
	members  map[int]struct{}
}

func newFieldSet() *FieldSet {
	return &FieldSet{members: make(map[int]struct{})}
}

// Contains reports whether v is in the set.
func (f *FieldSet) Contains(v int) bool {
	if f.Wildcard {
		return true
	}
	_, ok := f.members[v]
	return ok
}

// Sorted returns the set's members in ascending order. A field written as
// "*" holds every value of its domain, so Sorted returns the whole domain.
func (f *FieldSet) Sorted() []int {
	out := make([]int, 0, len(f.members))
	for v := range f.members {
		out = append(out, v)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (f *FieldSet) add(v int) { f.members[v] = struct{}{} }

func (f *FieldSet) remove(v int) { delete(f.members, v) }

// domain describes the numeric range and optional three-letter name table for
// a field.
type domain struct {
	min, max int
	names    map[string]int // lowercase name -> value
	alias    map[int]int    // value aliasing, e.g. 7 -> 0 for Sunday
}

var (
	minuteDomain = domain{min: 0, max: 59}
	hourDomain   = domain{min: 0, max: 23}
	domDomain    = domain{min: 1, max: 31}
	monthDomain  = domain{min: 1, max: 12, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
	dowDomain = domain{min: 0, max: 7, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}, alias: map[int]int{7: 0}}
)

func (d domain) parseAtom(tok string) (int, error) {
	tok = strings.ToLower(strings.TrimSpace(tok))
	if d.names != nil {
		if v, ok := d.names[tok]; ok {
			return v, nil
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("not a number or name: %q", tok)
	}
	if n < d.min || n > d.max {
		return 0, fmt.Errorf("value %d out of range [%d,%d]", n, d.min, d.max)
	}
	if v, ok := d.alias[n]; ok {
		n = v
	}
	return n, nil
}

// parseField parses a single calendar field expression (e.g. "*/15",
// "1-5,10~3", "mon-fri") into a FieldSet.
func parseField(expr string, d domain) (*FieldSet, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty field")
	}
	fs := newFieldSet()
	for _, term := range strings.Split(expr, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		parts := strings.Split(term, "~")
		base := parts[0]
		wild, err := d.applyBase(fs, base)
		if err != nil {
			return nil, err
		}
		if wild && len(parts) == 1 && strings.Count(expr, ",") == 0 {
			fs.Wildcard = true
		}
		for _, excl := range parts[1:] {
			v, err := d.parseAtom(excl)
			if err != nil {
				return nil, fmt.Errorf("exclusion %q: %w", excl, err)
			}
			if fs.Wildcard {
				// Materialize the wildcard before subtracting so later
				// membership checks reflect the exclusion.
				fs.Wildcard = false
				for i := d.min; i <= d.max; i++ {
					fs.add(i)
				}
			}
			fs.remove(v)
		}
	}
	return fs, nil
}

// applyBase expands a single term (without its ~exclusions) into fs. It
// returns true if the term was a bare "*" (full wildcard).
func (d domain) applyBase(fs *FieldSet, base string) (bool, error) {
	base = strings.TrimSpace(base)
	if base == "*" {
		fs.Wildcard = true
		for i := d.min; i <= d.max; i++ {
			fs.add(i)
		}
		return true, nil
	}
	if idx := strings.Index(base, "/"); idx >= 0 {
		rangePart := base[:idx]
		stepStr := base[idx+1:]
		step, err := strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return false, fmt.Errorf("invalid step in %q", base)
		}
		lo, hi := d.min, d.max
		if rangePart != "*" && rangePart != "" {
			lo, hi, err = d.parseRange(rangePart)
			if err != nil {
				return false, err
			}
		}
		for i := lo; i <= hi; i += step {
			fs.add(i)
		}
		return false, nil
	}
	if strings.Contains(base, "-") {
		lo, hi, err := d.parseRange(base)
		if err != nil {
			return false, err
		}
		for i := lo; i <= hi; i++ {
			fs.add(i)
		}
		return false, nil
	}
	v, err := d.parseAtom(base)
	if err != nil {
		return false, err
	}
	fs.add(v)
	return false, nil
}

func (d domain) parseRange(s string) (int, int, error) {
	i := strings.Index(s, "-")
	if i < 0 {
		return 0, 0, fmt.Errorf("not a range: %q", s)
	}
	lo, err := d.parseAtom(s[:i])
	if err != nil {
		return 0, 0, err
	}
	hi, err := d.parseAtom(s[i+1:])
	if err != nil {
		return 0, 0, err
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("range %q is inverted", s)
	}
	return lo, hi, nil
}

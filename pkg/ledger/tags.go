package ledger

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// daysPerMonth is the mean length of a Gregorian month.
var daysPerMonth = decimal.RequireFromString("30.437")

// Tags lists the distinct tags of the selection in order of first
// appearance. op and level restrict the result by tag level; ">=" with level
// 0 keeps every tag.
func (l *Ledger) Tags(op string, level int) ([]string, error) {
	keep, err := l.levelTest(op, level)
	if err != nil {
		return nil, err
	}

	tags := []string{}
	for _, r := range l.selected {
		for _, t := range r.Tags {
			if !slices.Contains(tags, t) && keep(t) {
				tags = append(tags, t)
			}
		}
	}
	return tags, nil
}

func (l *Ledger) levelTest(op string, level int) (func(string) bool, error) {
	if level < 0 {
		return nil, fmt.Errorf("%w: %d, want a level >= 0", ErrInvalidLevel, level)
	}
	var ok func(int) bool
	switch op {
	case ">=":
		if level == 0 {
			return func(string) bool { return true }, nil
		}
		ok = func(n int) bool { return n >= level }
	case ">":
		ok = func(n int) bool { return n > level }
	case "==":
		ok = func(n int) bool { return n == level }
	case "<":
		ok = func(n int) bool { return n < level }
	case "<=":
		ok = func(n int) bool { return n <= level }
	default:
		return nil, fmt.Errorf("%w: %q on levels, want one of == >= > < <=", ErrUnsupportedOperator, op)
	}

	return func(tag string) bool {
		if l.hierarchy == nil {
			return false
		}
		lvl, err := l.hierarchy.Level(tag)
		return err == nil && ok(lvl)
	}, nil
}

// Group is a named set of tags reported together.
type Group struct {
	Name string
	Tags []string
}

// TagsByAverage groups the top-level tags of the selection by their monthly
// average. A tag averaging at least twice limit with two or more children
// is split into its children; a tag above limit forms its own group; the
// rest are merged into an "other" group. other names the merged group at
// the top level and is appended to the parent's name below it.
//
// The selection itself is left unchanged.
func (l *Ledger) TagsByAverage(limit decimal.Decimal, other string) ([]Group, error) {
	if l.hierarchy == nil {
		return nil, nil
	}
	roots, err := l.Tags("==", 0)
	if err != nil {
		return nil, err
	}

	months := decimal.NewFromInt(int64(max(l.fRange.Days(), 1))).Div(daysPerMonth)
	avg := func(tags []string) decimal.Decimal {
		match := l.tagSetMatcher("any", tags)
		total := decimal.Zero
		for _, r := range l.selected {
			if match(r) {
				total = total.Add(r.Amount)
			}
		}
		return total.Div(months).Abs()
	}

	w := &averageWalk{ledger: l, limit: limit, other: other, avg: avg}
	w.walk(roots, "")
	return w.groups, nil
}

type averageWalk struct {
	ledger *Ledger
	limit  decimal.Decimal
	other  string
	avg    func([]string) decimal.Decimal
	groups []Group
}

func (w *averageWalk) add(g Group) {
	for i := range w.groups {
		if w.groups[i].Name == g.Name {
			w.groups[i] = g
			return
		}
	}
	w.groups = append(w.groups, g)
}

// walk places tags into groups and returns the tags left to merge into the
// parent's group.
func (w *averageWalk) walk(tags []string, parent string) []string {
	var merge []string
	if parent != "" {
		merge = append(merge, excludePrefix+parent)
	}

	for _, tag := range tags {
		a := w.avg([]string{tag})
		switch {
		case a.GreaterThanOrEqual(w.limit.Mul(decimal.NewFromInt(2))):
			children := w.ledger.hierarchy.Children(tag)
			if len(children) >= 2 {
				merge = append(merge, w.walk(children, tag)...)
				continue
			}
			w.add(Group{Name: tag, Tags: []string{tag}})
		case a.GreaterThan(w.limit):
			w.add(Group{Name: tag, Tags: []string{tag}})
		default:
			merge = append(merge, tag)
		}
	}

	if len(merge) == 0 || (parent != "" && !w.avg(merge).GreaterThan(w.limit)) {
		return merge
	}

	name := w.other
	switch {
	case parent == "":
	case containsAll(merge, tags):
		name = parent
	default:
		name = parent + ", " + w.other
	}
	w.add(Group{Name: name, Tags: merge})
	return nil
}

func containsAll(list, want []string) bool {
	for _, t := range want {
		if !slices.Contains(list, t) {
			return false
		}
	}
	return true
}

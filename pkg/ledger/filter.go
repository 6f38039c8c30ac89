package ledger

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeplotter/pkg/api"
)

// Column names accepted by Filter.
const (
	ColumnDate           = "date"
	ColumnAmount         = "amount"
	ColumnText           = "text"
	ColumnTags           = "tags"
	ColumnAmountUnscaled = "amount_unscaled"
	ColumnAccount        = "account"
)

// Columns lists the columns in saved-ledger order.
var Columns = []string{ColumnDate, ColumnAmount, ColumnText, ColumnTags, ColumnAmountUnscaled, ColumnAccount}

// excludePrefix marks a requested tag whose descendants must not be present.
const excludePrefix = "*"

// Predicate selects records by comparing one column to a value.
//
// Value is a time.Time for date, a decimal.Decimal (or int, int64, float64)
// for amounts, a string for text and account, and a string or []string for
// tags. On tags, == and != with a string test membership, with a list they
// compare the sorted tag set. any and all take a list; a leading "*" on a
// tag rejects records that also carry one of its descendants, unless that
// descendant is requested too.
type Predicate struct {
	Column   string
	Operator string
	Value    any
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Column, p.Operator, p.Value)
}

type matchFunc func(*api.Transaction) bool

// Filter narrows the selection to the records matching p.
func (l *Ledger) Filter(p Predicate) error {
	match, err := l.compile(p)
	if err != nil {
		return fmt.Errorf("filter %q: %w", p, err)
	}

	l.selected = slices.DeleteFunc(l.selected, func(r *api.Transaction) bool { return !match(r) })
	if p.Column == ColumnDate {
		l.narrowRange(p.Operator, api.Day(p.Value.(time.Time)))
	}

	l.logger.Debug("Applied filter", "predicate", p.String(), "selected", len(l.selected))
	return nil
}

func (l *Ledger) narrowRange(op string, value time.Time) {
	switch op {
	case ">", ">=", "==":
		start := value
		if op == ">" {
			start = start.AddDate(0, 0, 1)
		}
		if start.After(l.fRange.Start) {
			l.fRange.Start = start
		}
	}
	switch op {
	case "<", "<=", "==":
		end := value
		if op == "<" {
			end = end.AddDate(0, 0, -1)
		}
		if end.Before(l.fRange.End) {
			l.fRange.End = end
		}
	}
}

func (l *Ledger) compile(p Predicate) (matchFunc, error) {
	switch p.Column {
	case ColumnDate:
		v, ok := p.Value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: %T for column %s, want time.Time", ErrUnsupportedType, p.Value, p.Column)
		}
		v = api.Day(v)
		return compareOp(p.Operator, func(r *api.Transaction) int { return r.Date.Compare(v) })
	case ColumnAmount, ColumnAmountUnscaled:
		v, err := toDecimal(p.Value)
		if err != nil {
			return nil, err
		}
		field := func(r *api.Transaction) decimal.Decimal { return r.Amount }
		if p.Column == ColumnAmountUnscaled {
			field = func(r *api.Transaction) decimal.Decimal { return r.AmountUnscaled }
		}
		return compareOp(p.Operator, func(r *api.Transaction) int { return field(r).Cmp(v) })
	case ColumnText, ColumnAccount:
		v, ok := p.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T for column %s, want string", ErrUnsupportedType, p.Value, p.Column)
		}
		field := func(r *api.Transaction) string { return r.Text }
		if p.Column == ColumnAccount {
			field = func(r *api.Transaction) string { return r.Account }
		}
		switch p.Operator {
		case "==":
			return func(r *api.Transaction) bool { return field(r) == v }, nil
		case "!=":
			return func(r *api.Transaction) bool { return field(r) != v }, nil
		default:
			return nil, fmt.Errorf("%w: %q on strings, only == and != are supported", ErrUnsupportedOperator, p.Operator)
		}
	case ColumnTags:
		return l.compileTags(p.Operator, p.Value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedColumn, p.Column)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %T for an amount column", ErrUnsupportedType, v)
	}
}

func compareOp(op string, cmp func(*api.Transaction) int) (matchFunc, error) {
	var ok func(int) bool
	switch op {
	case "==":
		ok = func(c int) bool { return c == 0 }
	case "!=":
		ok = func(c int) bool { return c != 0 }
	case ">":
		ok = func(c int) bool { return c > 0 }
	case ">=":
		ok = func(c int) bool { return c >= 0 }
	case "<":
		ok = func(c int) bool { return c < 0 }
	case "<=":
		ok = func(c int) bool { return c <= 0 }
	default:
		return nil, fmt.Errorf("%w: %q, want one of == != > >= < <=", ErrUnsupportedOperator, op)
	}
	return func(r *api.Transaction) bool { return ok(cmp(r)) }, nil
}

func (l *Ledger) compileTags(op string, value any) (matchFunc, error) {
	switch v := value.(type) {
	case string:
		switch op {
		case "==":
			return func(r *api.Transaction) bool { return r.HasTag(v) }, nil
		case "!=":
			return func(r *api.Transaction) bool { return !r.HasTag(v) }, nil
		case "any", "all":
			return l.compileTags(op, []string{v})
		}
	case []string:
		switch op {
		case "==":
			return func(r *api.Transaction) bool { return sameTags(r.Tags, v) }, nil
		case "!=":
			return func(r *api.Transaction) bool { return !sameTags(r.Tags, v) }, nil
		case "any", "all":
			return l.tagSetMatcher(op, v), nil
		}
	default:
		return nil, fmt.Errorf("%w: %T for column tags, want string or []string", ErrUnsupportedType, value)
	}
	return nil, fmt.Errorf("%w: %q on tags, want one of == != any all", ErrUnsupportedOperator, op)
}

func sameTags(have, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	a, b := slices.Clone(have), slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// tagSetMatcher builds the any/all matcher, resolving "*" prefixes against
// the hierarchy.
func (l *Ledger) tagSetMatcher(op string, values []string) matchFunc {
	wanted := make([]string, 0, len(values))
	var exclude []string
	for _, v := range values {
		name, starred := strings.CutPrefix(v, excludePrefix)
		wanted = append(wanted, name)
		if starred && l.hierarchy != nil {
			exclude = append(exclude, l.hierarchy.Descendants(name)...)
		}
	}
	exclude = slices.DeleteFunc(exclude, func(t string) bool { return slices.Contains(wanted, t) })

	return func(r *api.Transaction) bool {
		if slices.ContainsFunc(exclude, r.HasTag) {
			return false
		}
		if op == "all" {
			return !slices.ContainsFunc(wanted, func(t string) bool { return !r.HasTag(t) })
		}
		return slices.ContainsFunc(wanted, r.HasTag)
	}
}

// ParsePredicate parses "<column> <operator> <value>".
//
// Dates use the YYYY-MM-DD layout and amounts a decimal point. Tag values
// are a JSON list (["a","b"]), a comma-separated list for any and all, or
// a single tag name.
func ParsePredicate(s string) (Predicate, error) {
	column, rest, _ := strings.Cut(strings.TrimSpace(s), " ")
	op, raw, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if column == "" || op == "" {
		return Predicate{}, fmt.Errorf("%w: %q, want \"<column> <operator> <value>\"", ErrUnsupportedOperator, s)
	}
	p := Predicate{Column: column, Operator: op}
	raw = strings.TrimSpace(raw)

	switch p.Column {
	case ColumnDate:
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: date %q: %w", ErrUnsupportedType, raw, err)
		}
		p.Value = t
	case ColumnAmount, ColumnAmountUnscaled:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: amount %q: %w", ErrUnsupportedType, raw, err)
		}
		p.Value = d
	case ColumnText, ColumnAccount:
		p.Value = unquote(raw)
	case ColumnTags:
		switch {
		case strings.HasPrefix(raw, "["):
			var list []string
			if err := json.Unmarshal([]byte(raw), &list); err != nil {
				return Predicate{}, fmt.Errorf("%w: tag list %q: %w", ErrUnsupportedType, raw, err)
			}
			if list == nil {
				list = []string{}
			}
			p.Value = list
		case p.Operator == "any" || p.Operator == "all":
			var list []string
			for _, t := range strings.Split(raw, ",") {
				if t = unquote(strings.TrimSpace(t)); t != "" {
					list = append(list, t)
				}
			}
			p.Value = list
		default:
			p.Value = unquote(raw)
		}
	default:
		return Predicate{}, fmt.Errorf("%w: %q", ErrUnsupportedColumn, p.Column)
	}
	return p, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

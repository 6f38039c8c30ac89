// Package tagger classifies transaction texts into a hierarchy of tags.
//
// Each tag owns a list of case-insensitive, whole-word patterns. A text that
// matches a tag also carries every ancestor of that tag.
package tagger

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Uncategorized is the fallback tag of the categorize mode.
const Uncategorized = "Uncategorized"

// Mode selects how a Hierarchy resolves texts to tags.
type Mode int

const (
	// ModeTag returns every matching tag followed by its ancestors.
	ModeTag Mode = iota
	// ModeCategorize returns exactly one tag per text, falling back to
	// Uncategorized when nothing matches.
	ModeCategorize
)

func (m Mode) String() string {
	switch m {
	case ModeTag:
		return "tag"
	case ModeCategorize:
		return "categorize"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "tag" or "categorize".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tag", "tags":
		return ModeTag, nil
	case "categorize", "category", "categories":
		return ModeCategorize, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// asteriskMarkers are the escape sequences some banks put around asterisks.
var asteriskMarkers = strings.NewReplacer(`\*`, "", `*\`, "", "*", "")

// Hierarchy is a tree of tags stored as parent links.
// It is not safe for concurrent mutation.
type Hierarchy struct {
	mode     Mode
	order    []string
	patterns map[string][]string
	parents  map[string]string
	matchers map[string]*regexp.Regexp

	// matchOrder caches the children-first walk used by Match.
	matchOrder []string
}

// New builds a hierarchy from a nested definition.
func New(def Definition, mode Mode) (*Hierarchy, error) {
	if mode != ModeTag && mode != ModeCategorize {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}

	h := &Hierarchy{
		mode:     mode,
		patterns: make(map[string][]string),
		parents:  make(map[string]string),
		matchers: make(map[string]*regexp.Regexp),
	}
	for _, n := range def {
		if err := h.add(n, ""); err != nil {
			return nil, err
		}
	}

	if mode == ModeCategorize {
		if !h.Has(Uncategorized) {
			h.order = append(h.order, Uncategorized)
			h.patterns[Uncategorized] = []string{}
		}
		if h.parents[Uncategorized] != "" || len(h.Children(Uncategorized)) > 0 {
			return nil, fmt.Errorf("%w: %s must be a top-level tag without children", ErrProtectedTag, Uncategorized)
		}
		h.order = append(slices.DeleteFunc(h.order, func(t string) bool { return t == Uncategorized }), Uncategorized)
	}
	return h, nil
}

func (h *Hierarchy) add(n Node, parent string) error {
	if n.Name == "" {
		return fmt.Errorf("%w: empty tag name", ErrInvalidDefinition)
	}
	if h.Has(n.Name) {
		return fmt.Errorf("%w: %q", ErrDuplicateTag, n.Name)
	}

	patterns := slices.Clone(n.Patterns)
	if patterns == nil {
		patterns = []string{}
	}
	re, err := compile(patterns)
	if err != nil {
		return fmt.Errorf("tag %q: %w", n.Name, err)
	}

	h.order = append(h.order, n.Name)
	h.patterns[n.Name] = patterns
	h.setMatcher(n.Name, re)
	if parent != "" {
		h.parents[n.Name] = parent
	}
	for _, c := range n.Children {
		if err := h.add(c, n.Name); err != nil {
			return err
		}
	}
	return nil
}

// compile builds the case-insensitive whole-word disjunction of patterns.
// Word boundaries are Unicode-aware so that letters like å, ä and ö count as
// word characters.
func compile(patterns []string) (*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	for _, p := range patterns {
		if p == "" {
			return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
		}
	}
	expr := `(?i)(?:^|[^\p{L}\p{N}_])(?:` + strings.Join(patterns, "|") + `)(?:$|[^\p{L}\p{N}_])`
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return re, nil
}

func (h *Hierarchy) setMatcher(tag string, re *regexp.Regexp) {
	if re == nil {
		delete(h.matchers, tag)
		return
	}
	h.matchers[tag] = re
}

// Mode returns the mode the hierarchy was built with.
func (h *Hierarchy) Mode() Mode { return h.mode }

// Has reports whether tag exists.
func (h *Hierarchy) Has(tag string) bool {
	_, ok := h.patterns[tag]
	return ok
}

// Tags returns every tag in declaration order.
func (h *Hierarchy) Tags() []string { return slices.Clone(h.order) }

// Patterns returns the tag's own patterns.
func (h *Hierarchy) Patterns(tag string) []string { return slices.Clone(h.patterns[tag]) }

// Parent returns the tag's parent, or "" for a top-level tag.
func (h *Hierarchy) Parent(tag string) string { return h.parents[tag] }

// Match returns the tags matching text.
//
// In ModeTag every matching tag is followed by its ancestors and no tag
// appears twice. In ModeCategorize the first matching tag is returned alone,
// or Uncategorized when nothing matches. Descendants are tried before their
// ancestors, so the first hit is not the first in declaration order: with
// Food [ICA] declared above its child Groceries [MAXI], "ICA MAXI" is
// categorized as Groceries.
func (h *Hierarchy) Match(text string) []string {
	normalized := asteriskMarkers.Replace(text)

	out := []string{}
	for _, tag := range h.walkOrder() {
		re := h.matchers[tag]
		if re == nil || !re.MatchString(normalized) {
			continue
		}
		if h.mode == ModeCategorize {
			return []string{tag}
		}
		for t := tag; t != ""; t = h.parents[t] {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	if h.mode == ModeCategorize {
		return []string{Uncategorized}
	}
	return out
}

// walkOrder lists tags children-first, siblings in declaration order.
func (h *Hierarchy) walkOrder() []string {
	if h.matchOrder != nil {
		return h.matchOrder
	}
	children := h.childIndex()
	order := make([]string, 0, len(h.order))
	var visit func(string)
	visit = func(tag string) {
		for _, c := range children[tag] {
			visit(c)
		}
		order = append(order, tag)
	}
	for _, r := range children[""] {
		visit(r)
	}
	h.matchOrder = order
	return order
}

func (h *Hierarchy) childIndex() map[string][]string {
	children := make(map[string][]string)
	for _, t := range h.order {
		p := h.parents[t]
		children[p] = append(children[p], t)
	}
	return children
}

// Levels groups tags by their depth, 0 being top-level.
func (h *Hierarchy) Levels() map[int][]string {
	levels := make(map[int][]string)
	for _, t := range h.order {
		l := h.depth(t)
		levels[l] = append(levels[l], t)
	}
	return levels
}

// Level returns the distance from tag to its top-level ancestor.
func (h *Hierarchy) Level(tag string) (int, error) {
	if !h.Has(tag) {
		return 0, h.unknownTag(tag)
	}
	return h.depth(tag), nil
}

func (h *Hierarchy) depth(tag string) int {
	l := 0
	for p := h.parents[tag]; p != ""; p = h.parents[p] {
		l++
	}
	return l
}

// Children returns the direct children of tag in declaration order.
func (h *Hierarchy) Children(tag string) []string {
	var out []string
	for _, t := range h.order {
		if h.parents[t] == tag && tag != "" {
			out = append(out, t)
		}
	}
	return out
}

// Descendants returns every tag below tag, parents before their children.
func (h *Hierarchy) Descendants(tag string) []string {
	var out []string
	for _, c := range h.Children(tag) {
		out = append(out, c)
		out = append(out, h.Descendants(c)...)
	}
	return out
}

// Ancestors returns the parent chain of tag, nearest first.
func (h *Hierarchy) Ancestors(tag string) []string {
	var out []string
	for p := h.parents[tag]; p != ""; p = h.parents[p] {
		out = append(out, p)
	}
	return out
}

// Append adds text to the patterns of tag and of every ancestor of tag.
// A missing tag is created under parent, which must exist when given.
// Appending a pattern that is already present is a no-op.
func (h *Hierarchy) Append(tag, text, parent string) error {
	if tag == "" {
		return fmt.Errorf("%w: empty tag name", ErrInvalidDefinition)
	}
	if h.mode == ModeCategorize && parent == Uncategorized {
		return fmt.Errorf("%w: %s cannot have children", ErrProtectedTag, Uncategorized)
	}

	exists := h.Has(tag)
	switch {
	case exists && parent != "" && h.parents[tag] != parent:
		return fmt.Errorf("%w: %q is under %q, not %q", ErrParentMismatch, tag, h.parents[tag], parent)
	case !exists && parent != "" && !h.Has(parent):
		return h.unknownTag(parent)
	}

	// Validate before mutating so a bad pattern leaves the hierarchy intact.
	if _, err := compile(append(slices.Clone(h.patterns[tag]), text)); err != nil {
		return fmt.Errorf("tag %q: %w", tag, err)
	}

	if !exists {
		h.insert(tag, parent)
	}
	for t := tag; t != ""; t = h.parents[t] {
		if err := h.addPattern(t, text); err != nil {
			return err
		}
	}
	return nil
}

// insert places a new tag after the last descendant of its parent, or at the
// end of the top level.
func (h *Hierarchy) insert(tag, parent string) {
	pos := len(h.order)
	switch {
	case parent != "":
		pos = slices.Index(h.order, parent) + 1 + len(h.Descendants(parent))
	case h.mode == ModeCategorize:
		pos = slices.Index(h.order, Uncategorized)
	}
	h.order = slices.Insert(h.order, pos, tag)
	h.patterns[tag] = []string{}
	if parent != "" {
		h.parents[tag] = parent
	}
	h.matchOrder = nil
}

func (h *Hierarchy) addPattern(tag, text string) error {
	if slices.Contains(h.patterns[tag], text) {
		return nil
	}
	patterns := append(slices.Clone(h.patterns[tag]), text)
	re, err := compile(patterns)
	if err != nil {
		return fmt.Errorf("tag %q: %w", tag, err)
	}
	h.patterns[tag] = patterns
	h.setMatcher(tag, re)
	return nil
}

// Remove deletes tag together with all of its descendants.
func (h *Hierarchy) Remove(tag string) error {
	if !h.Has(tag) {
		return h.unknownTag(tag)
	}
	if h.mode == ModeCategorize && tag == Uncategorized {
		return fmt.Errorf("%w: %s", ErrProtectedTag, Uncategorized)
	}
	h.remove(tag)
	h.matchOrder = nil
	return nil
}

func (h *Hierarchy) remove(tag string) {
	for _, c := range h.Children(tag) {
		h.remove(c)
	}
	h.order = slices.DeleteFunc(h.order, func(t string) bool { return t == tag })
	delete(h.patterns, tag)
	delete(h.parents, tag)
	delete(h.matchers, tag)
}

// RemovePattern deletes one of the tag's own patterns. Descendants and
// ancestors keep their patterns.
func (h *Hierarchy) RemovePattern(tag, pattern string) error {
	if !h.Has(tag) {
		return h.unknownTag(tag)
	}
	i := slices.Index(h.patterns[tag], pattern)
	if i < 0 {
		return fmt.Errorf("%w: %q has no pattern %q", ErrUnknownPattern, tag, pattern)
	}
	patterns := slices.Delete(slices.Clone(h.patterns[tag]), i, i+1)
	re, err := compile(patterns)
	if err != nil {
		return fmt.Errorf("tag %q: %w", tag, err)
	}
	h.patterns[tag] = patterns
	h.setMatcher(tag, re)
	return nil
}

// Definition returns the nested form of the hierarchy. In ModeCategorize an
// Uncategorized tag without patterns is left out.
func (h *Hierarchy) Definition() Definition {
	children := h.childIndex()
	var build func(string) Node
	build = func(tag string) Node {
		n := Node{Name: tag, Patterns: slices.Clone(h.patterns[tag])}
		for _, c := range children[tag] {
			n.Children = append(n.Children, build(c))
		}
		return n
	}

	var def Definition
	for _, r := range children[""] {
		if h.mode == ModeCategorize && r == Uncategorized && len(h.patterns[r]) == 0 {
			continue
		}
		def = append(def, build(r))
	}
	return def
}


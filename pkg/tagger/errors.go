package tagger

import (
	"errors"
	"fmt"

	"github.com/agnivade/levenshtein"
)

var (
	ErrDuplicateTag      = errors.New("duplicate tag name")
	ErrUnknownMode       = errors.New("unknown tagging mode")
	ErrInvalidDefinition = errors.New("invalid tag definition")
	ErrInvalidPattern    = errors.New("invalid tag pattern")
	ErrUnknownTag        = errors.New("unknown tag")
	ErrUnknownPattern    = errors.New("unknown pattern")
	ErrProtectedTag      = errors.New("protected tag")
	ErrParentMismatch    = errors.New("tag already has a different parent")
)

// unknownTag reports name as unknown, suggesting the closest known tag.
func (h *Hierarchy) unknownTag(name string) error {
	best, bestDist := "", -1
	for _, t := range h.order {
		d := levenshtein.ComputeDistance(name, t)
		if bestDist < 0 || d < bestDist {
			best, bestDist = t, d
		}
	}
	if best != "" && bestDist <= max(2, len([]rune(name))/3) {
		return fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownTag, name, best)
	}
	return fmt.Errorf("%w: %q", ErrUnknownTag, name)
}

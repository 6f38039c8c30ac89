package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ArionMiles/homeplotter/pkg/tagger"
)

// SaveHierarchy replaces the stored tag hierarchy with h. Stored
// transactions keep their tags until Retag is called.
func (s *Store) SaveHierarchy(ctx context.Context, h *tagger.Hierarchy) error {
	tags := h.Tags()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tags`); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}

		// Declaration order puts every parent before its children.
		for i, tag := range tags {
			var parent sql.NullString
			if p := h.Parent(tag); p != "" {
				parent = sql.NullString{String: p, Valid: true}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tags(name, parent, position) VALUES(?, ?, ?)`,
				tag, parent, i); err != nil {
				return fmt.Errorf("insert tag %q: %w", tag, err)
			}
			for j, pattern := range h.Patterns(tag) {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO tag_patterns(tag, position, pattern) VALUES(?, ?, ?)`,
					tag, j, pattern); err != nil {
					return fmt.Errorf("insert pattern %q of %q: %w", pattern, tag, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Saved tag hierarchy", "tags", len(tags))
	return nil
}

// LoadHierarchy builds a hierarchy in the given mode from the stored tags.
// An empty store yields an empty hierarchy.
func (s *Store) LoadHierarchy(ctx context.Context, mode tagger.Mode) (*tagger.Hierarchy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, parent FROM tags ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}

	type entry struct {
		node   *tagger.Node
		parent string
	}
	var order []string
	entries := map[string]*entry{}
	for rows.Next() {
		var name string
		var parent sql.NullString
		if err := rows.Scan(&name, &parent); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		order = append(order, name)
		entries[name] = &entry{node: &tagger.Node{Name: name}, parent: parent.String}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}

	patterns, err := s.db.QueryContext(ctx, `SELECT tag, pattern FROM tag_patterns ORDER BY tag, position`)
	if err != nil {
		return nil, fmt.Errorf("query tag patterns: %w", err)
	}
	defer patterns.Close()
	for patterns.Next() {
		var tag, pattern string
		if err := patterns.Scan(&tag, &pattern); err != nil {
			return nil, fmt.Errorf("scan tag pattern: %w", err)
		}
		if e, ok := entries[tag]; ok {
			e.node.Patterns = append(e.node.Patterns, pattern)
		}
	}
	if err := patterns.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag patterns: %w", err)
	}

	// Children are attached deepest first so every copy below is complete.
	for i := len(order) - 1; i >= 0; i-- {
		e := entries[order[i]]
		if e.parent == "" {
			continue
		}
		p, ok := entries[e.parent]
		if !ok {
			return nil, fmt.Errorf("tag %q: %w: parent %q", e.node.Name, tagger.ErrUnknownTag, e.parent)
		}
		p.node.Children = append([]tagger.Node{*e.node}, p.node.Children...)
	}

	var def tagger.Definition
	for _, name := range order {
		if e := entries[name]; e.parent == "" {
			def = append(def, *e.node)
		}
	}

	h, err := tagger.New(def, mode)
	if err != nil {
		return nil, fmt.Errorf("building hierarchy: %w", err)
	}
	return h, nil
}

package tagger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ownKey holds a group's own patterns inside a nested mapping.
const ownKey = ""

// Node is one tag of a nested tag definition.
type Node struct {
	Name     string
	Patterns []string
	Children []Node
}

// Definition is the nested, ordered form of a tag hierarchy. Each key of the
// serialized mapping is a tag name whose value is either a list of patterns
// or a nested mapping of children, where the empty key holds the tag's own
// patterns.
type Definition []Node

// MarshalJSON writes the definition as an ordered JSON object.
func (d Definition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSONObject(&buf, nil, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSONObject(buf *bytes.Buffer, own []string, nodes []Node) error {
	buf.WriteByte('{')
	first := true
	writeKey := func(key string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		return nil
	}

	if len(own) > 0 {
		if err := writeKey(ownKey); err != nil {
			return err
		}
		if err := writeJSONPatterns(buf, own); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		if err := writeKey(n.Name); err != nil {
			return err
		}
		if len(n.Children) == 0 {
			if err := writeJSONPatterns(buf, n.Patterns); err != nil {
				return err
			}
			continue
		}
		if err := writeJSONObject(buf, n.Patterns, n.Children); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeJSONPatterns(buf *bytes.Buffer, patterns []string) error {
	if patterns == nil {
		patterns = []string{}
	}
	b, err := json.Marshal(patterns)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// UnmarshalJSON reads an ordered JSON object into the definition.
func (d *Definition) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	own, nodes, err := readJSONObject(dec)
	if err != nil {
		return err
	}
	if len(own) > 0 {
		return fmt.Errorf("%w: patterns under the empty key at top level", ErrInvalidDefinition)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after definition", ErrInvalidDefinition)
	}
	*d = nodes
	return nil
}

// readJSONObject reads the members of an object whose opening brace has been
// consumed, up to and including the closing brace.
func readJSONObject(dec *json.Decoder) ([]string, []Node, error) {
	var own []string
	var nodes []Node
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("%w: expected tag name, got %v", ErrInvalidDefinition, tok)
		}

		tok, err = dec.Token()
		if err != nil {
			return nil, nil, err
		}
		switch tok {
		case json.Delim('['):
			patterns, err := readJSONPatterns(dec)
			if err != nil {
				return nil, nil, fmt.Errorf("tag %q: %w", key, err)
			}
			if key == ownKey {
				own = patterns
				continue
			}
			nodes = append(nodes, Node{Name: key, Patterns: patterns})
		case json.Delim('{'):
			if key == ownKey {
				return nil, nil, fmt.Errorf("%w: empty key must hold a pattern list", ErrInvalidDefinition)
			}
			childOwn, children, err := readJSONObject(dec)
			if err != nil {
				return nil, nil, fmt.Errorf("tag %q: %w", key, err)
			}
			nodes = append(nodes, Node{Name: key, Patterns: childOwn, Children: children})
		case nil:
			if key != ownKey {
				nodes = append(nodes, Node{Name: key})
			}
		default:
			return nil, nil, fmt.Errorf("%w: tag %q must map to a list or an object", ErrInvalidDefinition, key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return own, nodes, nil
}

func readJSONPatterns(dec *json.Decoder) ([]string, error) {
	patterns := []string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		s, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: pattern %v is not a string", ErrInvalidDefinition, tok)
		}
		patterns = append(patterns, s)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return patterns, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrInvalidDefinition, want, tok)
	}
	return nil
}

// MarshalYAML writes the definition as an ordered YAML mapping.
func (d Definition) MarshalYAML() (any, error) {
	return yamlMapping(nil, d), nil
}

func yamlMapping(own []string, nodes []Node) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	if len(own) > 0 {
		m.Content = append(m.Content, yamlString(ownKey), yamlPatterns(own))
	}
	for _, n := range nodes {
		m.Content = append(m.Content, yamlString(n.Name))
		if len(n.Children) == 0 {
			m.Content = append(m.Content, yamlPatterns(n.Patterns))
			continue
		}
		m.Content = append(m.Content, yamlMapping(n.Patterns, n.Children))
	}
	return m
}

func yamlString(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func yamlPatterns(patterns []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, p := range patterns {
		seq.Content = append(seq.Content, yamlString(p))
	}
	return seq
}

// UnmarshalYAML reads an ordered YAML mapping into the definition.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.DocumentNode && len(value.Content) == 1 {
		value = value.Content[0]
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: expected a mapping", ErrInvalidDefinition, value.Line)
	}
	own, nodes, err := readYAMLMapping(value)
	if err != nil {
		return err
	}
	if len(own) > 0 {
		return fmt.Errorf("%w: patterns under the empty key at top level", ErrInvalidDefinition)
	}
	*d = nodes
	return nil
}

func readYAMLMapping(m *yaml.Node) ([]string, []Node, error) {
	var own []string
	var nodes []Node
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, m.Content[i+1]
		switch val.Kind {
		case yaml.SequenceNode:
			patterns := []string{}
			if err := val.Decode(&patterns); err != nil {
				return nil, nil, fmt.Errorf("tag %q: %w", key, err)
			}
			if key == ownKey {
				own = patterns
				continue
			}
			nodes = append(nodes, Node{Name: key, Patterns: patterns})
		case yaml.MappingNode:
			if key == ownKey {
				return nil, nil, fmt.Errorf("%w: line %d: empty key must hold a pattern list", ErrInvalidDefinition, val.Line)
			}
			childOwn, children, err := readYAMLMapping(val)
			if err != nil {
				return nil, nil, fmt.Errorf("tag %q: %w", key, err)
			}
			nodes = append(nodes, Node{Name: key, Patterns: childOwn, Children: children})
		case yaml.ScalarNode:
			if val.Tag != "!!null" {
				return nil, nil, fmt.Errorf("%w: line %d: tag %q must map to a list or a mapping", ErrInvalidDefinition, val.Line, key)
			}
			if key != ownKey {
				nodes = append(nodes, Node{Name: key})
			}
		default:
			return nil, nil, fmt.Errorf("%w: line %d: tag %q must map to a list or a mapping", ErrInvalidDefinition, val.Line, key)
		}
	}
	return own, nodes, nil
}

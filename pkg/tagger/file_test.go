package tagger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadNested(t *testing.T) {
	h, err := Load(filepath.Join("testdata", "tags_nested.json"), ModeTag)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"tagABC", "A", "B", "B1", "B23", "tag2"}
	if got := h.Tags(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tags(): got %v, want %v", got, want)
	}
	if got := h.Parent("B23"); got != "B" {
		t.Errorf("Parent(B23): got %q, want %q", got, "B")
	}
	if got := h.Patterns("B"); len(got) != 0 {
		t.Errorf("Patterns(B): got %v, want empty", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	corpus := []string{
		"A1", "B1", "B2", "B3", "E", "A1 B3 E", "b2", "nothing", "A*1", "B23",
		"pizza", "X1", "own",
	}

	for _, name := range []string{"tags.json", "tags.yaml"} {
		t.Run(name, func(t *testing.T) {
			h := mustNew(t, nestedDefinition(), ModeTag)
			// Give a group its own patterns so the empty key is exercised.
			if err := h.Append("X", "X1", "tagABC"); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if err := h.Append("B", "own", ""); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			path := filepath.Join(t.TempDir(), name)
			if err := h.Save(path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			loaded, err := Load(path, ModeTag)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if got, want := loaded.Tags(), h.Tags(); !reflect.DeepEqual(got, want) {
				t.Errorf("Tags(): got %v, want %v", got, want)
			}
			for _, text := range corpus {
				if got, want := loaded.Match(text), h.Match(text); !reflect.DeepEqual(got, want) {
					t.Errorf("Match(%q): got %v, want %v", text, got, want)
				}
			}
		})
	}
}

func TestSaveLayout(t *testing.T) {
	h := mustNew(t, nestedDefinition(), ModeTag)
	if err := h.Append("B", "own", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	data, err := json.Marshal(h.Definition())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"tagABC":{"":["own"],"A":["A1"],"B":{"":["own"],"B1":["B1"],"B23":["B2","B3"]}},"tag2":["E"]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestSaveOmitsEmptyUncategorized(t *testing.T) {
	h := mustNew(t, nestedDefinition(), ModeCategorize)

	for _, n := range h.Definition() {
		if n.Name == Uncategorized {
			t.Errorf("Definition() contains %s without patterns", Uncategorized)
		}
	}
}

func TestUnmarshalJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not an object", `["a"]`},
		{"top-level own patterns", `{"": ["a"]}`},
		{"number value", `{"a": 3}`},
		{"non-string pattern", `{"a": [1]}`},
		{"object under empty key", `{"a": {"": {"b": []}}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var def Definition
			if err := json.Unmarshal([]byte(tc.in), &def); !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("got %v, want %v", err, ErrInvalidDefinition)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), ModeTag)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want %v", err, os.ErrNotExist)
	}
}

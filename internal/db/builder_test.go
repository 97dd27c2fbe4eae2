package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_Simple(t *testing.T) {
	idx := NewIndex("users-idx").
		Prefix("row:").
		StoredTag("_partition_key").
		Tag("email").
		Numeric("age").
		Text("bio", AnalyzerEnglish).
		MustBuild()

	if err := idx.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Name != "users-idx" {
		t.Errorf("name = %q, want users-idx", idx.Name)
	}
	if idx.DefaultAnalyzer != AnalyzerStandard {
		t.Errorf("default analyzer = %q, want standard", idx.DefaultAnalyzer)
	}
	if len(idx.Fields) != 4 {
		t.Fatalf("fields count = %d, want 4", len(idx.Fields))
	}
	if f := idx.Fields[0]; f.Type != IndexFieldTag || !f.Stored {
		t.Errorf("field[0] = %+v, want stored TAG", f)
	}
	if f := idx.Fields[2]; f.Name != "age" || f.Type != IndexFieldNumeric || !f.Sortable {
		t.Errorf("field[2] = %+v, want sortable age NUMERIC", f)
	}
	if f, ok := idx.Field("bio"); !ok || f.Analyzer != AnalyzerEnglish {
		t.Errorf("bio field = %+v, %v", f, ok)
	}
}

func TestIndexBuilder_BuildCopiesFields(t *testing.T) {
	b := NewIndex("idx").Tag("a")
	first := b.MustBuild()
	b.Tag("b")
	if len(first.Fields) != 1 {
		t.Errorf("built definition mutated by later builder calls: %d fields", len(first.Fields))
	}
}

func TestIndexBuilder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		builder *IndexBuilder
		wantErr string
	}{
		{"empty name", NewIndex("").Tag("a"), "name is required"},
		{"invalid name", NewIndex("bad name").Tag("a"), "invalid characters"},
		{"no fields", NewIndex("idx"), "at least one field"},
		{"duplicate", NewIndex("idx").Tag("a").Numeric("a"), "duplicate field"},
		{"bad analyzer", NewIndex("idx").Text("a", "klingon"), "unknown analyzer"},
		{"bad default", NewIndex("idx").DefaultAnalyzer("x").Tag("a"), "unknown default analyzer"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.builder.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestIndexBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewIndex("").MustBuild()
}

func TestIndexDefinition_String(t *testing.T) {
	idx := NewIndex("idx").Prefix("row:").StoredTag("_id").Text("bio", AnalyzerSimple).MustBuild()
	want := "INDEX idx PREFIX row: SCHEMA _id TAG STORED bio TEXT ANALYZER simple"
	if got := idx.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"abc", true},
		{"a_b:c-1", true},
		{"", false},
		{"a b", false},
		{"a/b", false},
	}
	for _, tc := range tests {
		if got := IsValidIdentifier(tc.s); got != tc.want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", tc.s, got, tc.want)
		}
	}
}

package db

import (
	"errors"
	"strconv"
)

// IndexFieldType enumerates supported index field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is an untokenized keyword field.
	IndexFieldTag
	// IndexFieldText is an analyzed full-text field.
	IndexFieldText
)

// Analyzer names shared by every engine.
const (
	AnalyzerStandard = "standard"
	AnalyzerSimple   = "simple"
	AnalyzerEnglish  = "english"
	AnalyzerKeyword  = "keyword"
)

// IsAnalyzer reports whether name is a known analyzer.
func IsAnalyzer(name string) bool {
	switch name {
	case AnalyzerStandard, AnalyzerSimple, AnalyzerEnglish, AnalyzerKeyword:
		return true
	}
	return false
}

// IndexField describes a single field in an index schema.
type IndexField struct {
	Name     string
	Type     IndexFieldType
	Analyzer string // TEXT only; empty means the index default
	Stored   bool
	Sortable bool

	// TAG options
	TagCaseSensitive bool
}

// IndexDefinition is a complete index definition.
type IndexDefinition struct {
	Name            string
	Prefixes        []string
	DefaultAnalyzer string
	Fields          []IndexField
}

// Field returns the named field definition.
func (idx *IndexDefinition) Field(name string) (IndexField, bool) {
	for _, f := range idx.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return IndexField{}, false
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	if idx.DefaultAnalyzer != "" && !IsAnalyzer(idx.DefaultAnalyzer) {
		return errors.New("unknown default analyzer: " + idx.DefaultAnalyzer)
	}

	seen := make(map[string]bool)
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return errors.New("field name is required at index " + strconv.Itoa(i))
		}
		if seen[f.Name] {
			return errors.New("duplicate field name: " + f.Name)
		}
		seen[f.Name] = true

		if f.Analyzer != "" && !IsAnalyzer(f.Analyzer) {
			return errors.New("unknown analyzer " + f.Analyzer + " on field " + f.Name)
		}
	}

	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}

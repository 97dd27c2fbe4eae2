package db

import "strings"

// IndexBuilder is a fluent builder for index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{
		def: IndexDefinition{
			Name:            name,
			DefaultAnalyzer: AnalyzerStandard,
		},
	}
}

// Prefix adds key prefixes to the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// DefaultAnalyzer sets the analyzer used by text fields that do not name one.
func (b *IndexBuilder) DefaultAnalyzer(name string) *IndexBuilder {
	b.def.DefaultAnalyzer = name
	return b
}

// Numeric adds a numeric field to the index.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	return b.Field(IndexField{Name: name, Type: IndexFieldNumeric, Sortable: true})
}

// Tag adds a keyword field to the index.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	return b.Field(IndexField{Name: name, Type: IndexFieldTag, TagCaseSensitive: true, Sortable: true})
}

// StoredTag adds a keyword field whose value is returned with search hits.
func (b *IndexBuilder) StoredTag(name string) *IndexBuilder {
	return b.Field(IndexField{Name: name, Type: IndexFieldTag, TagCaseSensitive: true, Stored: true})
}

// Text adds an analyzed field to the index.
func (b *IndexBuilder) Text(name, analyzer string) *IndexBuilder {
	return b.Field(IndexField{Name: name, Type: IndexFieldText, Analyzer: analyzer})
}

// Field adds a fully specified field.
func (b *IndexBuilder) Field(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	def.Fields = append([]IndexField(nil), b.def.Fields...)
	return &def, nil
}

// MustBuild calls Build and panics on error.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// String returns a debug representation of the definition.
func (idx *IndexDefinition) String() string {
	parts := []string{"INDEX", idx.Name}
	if len(idx.Prefixes) > 0 {
		parts = append(parts, "PREFIX")
		parts = append(parts, idx.Prefixes...)
	}
	parts = append(parts, "SCHEMA")
	for i := range idx.Fields {
		f := &idx.Fields[i]
		parts = append(parts, f.Name)
		switch f.Type {
		case IndexFieldTag:
			parts = append(parts, "TAG")
		case IndexFieldNumeric:
			parts = append(parts, "NUMERIC")
		case IndexFieldText:
			parts = append(parts, "TEXT")
			if f.Analyzer != "" {
				parts = append(parts, "ANALYZER", f.Analyzer)
			}
		}
		if f.Stored {
			parts = append(parts, "STORED")
		}
	}
	return strings.Join(parts, " ")
}

package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
)

// ReservedPrefix starts every identity field name; columns may not use it.
const ReservedPrefix = "_"

// Identity fields stored with every document so hits can be traced back to rows.
const (
	PartitionKeyField  = "_partition_key"
	ClusteringKeyField = "_clustering_key"
)

// Schema is the immutable column → mapping registry of one index.
// It is built once and shared by every indexing and query operation.
type Schema struct {
	defaultAnalyzer string
	mappings        map[string]Mapping
	columns         []string
}

// New validates mappings and builds a Schema. Text mappings without an analyzer
// take defaultAnalyzer (standard when empty).
func New(defaultAnalyzer string, mappings map[string]Mapping) (*Schema, error) {
	if defaultAnalyzer == "" {
		defaultAnalyzer = db.AnalyzerStandard
	}
	if !db.IsAnalyzer(defaultAnalyzer) {
		return nil, fmt.Errorf("%w: unknown default analyzer %q", domain.ErrInvalidSchema, defaultAnalyzer)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%w: at least one column mapping is required", domain.ErrInvalidSchema)
	}

	s := &Schema{
		defaultAnalyzer: defaultAnalyzer,
		mappings:        make(map[string]Mapping, len(mappings)),
	}
	for col, m := range mappings {
		if col == "" || strings.HasPrefix(col, ReservedPrefix) {
			return nil, fmt.Errorf("%w: invalid column name %q", domain.ErrInvalidSchema, col)
		}
		if m == nil {
			return nil, fmt.Errorf("%w: column %q has no mapping", domain.ErrInvalidSchema, col)
		}
		if tm, ok := m.(*textMapping); ok && tm.analyzer == "" {
			m = &textMapping{analyzer: defaultAnalyzer, accepts: tm.accepts}
		}
		s.mappings[col] = m
		s.columns = append(s.columns, col)
	}
	sort.Strings(s.columns)
	return s, nil
}

// DefaultAnalyzer returns the analyzer used by text mappings that do not name one.
func (s *Schema) DefaultAnalyzer() string { return s.defaultAnalyzer }

// Columns returns the mapped column names in sorted order.
func (s *Schema) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Resolve returns the mapping of a column.
func (s *Schema) Resolve(column string) (Mapping, error) {
	m, ok := s.mappings[column]
	if !ok {
		return nil, domain.NewUnmappedColumn(column)
	}
	return m, nil
}

// Validate checks every mapping against the table's declared column types.
func (s *Schema) Validate(table *cql.Table) error {
	for _, col := range s.columns {
		typ, ok := table.Column(col)
		if !ok {
			return fmt.Errorf("%w: column %q does not exist in table %q",
				domain.ErrInvalidSchema, col, table.Name())
		}
		m := s.mappings[col]
		if !m.Accepts(typ) {
			return &domain.ColumnTypeError{Column: col, Mapping: string(m.Kind()), Type: typ.String()}
		}
	}
	return nil
}

// IndexFields returns one index field per mapped column in column order.
func (s *Schema) IndexFields() []db.IndexField {
	fields := make([]db.IndexField, 0, len(s.columns))
	for _, col := range s.columns {
		fields = append(fields, s.mappings[col].IndexField(col))
	}
	return fields
}

// IndexDefinition describes the engine index: the stored identity fields
// followed by one field per mapped column.
func (s *Schema) IndexDefinition(name string, prefixes ...string) (*db.IndexDefinition, error) {
	b := db.NewIndex(name).
		DefaultAnalyzer(s.defaultAnalyzer).
		Prefix(prefixes...).
		StoredTag(PartitionKeyField).
		StoredTag(ClusteringKeyField)
	for _, f := range s.IndexFields() {
		b.Field(f)
	}
	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSchema, err)
	}
	return def, nil
}

// Build creates the mappings declared in a column → (kind, options) table, then the Schema.
func Build(defaultAnalyzer string, decl map[string]Declaration) (*Schema, error) {
	mappings := make(map[string]Mapping, len(decl))
	for col, d := range decl {
		m, err := NewMapping(d.Kind, d.Options)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %w", domain.ErrInvalidSchema, col, err)
		}
		mappings[col] = m
	}
	return New(defaultAnalyzer, mappings)
}

// Declaration names a mapping kind and its options.
type Declaration struct {
	Kind    Kind
	Options Options
}

package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
)

// rowIDSeparator joins the hex keys of a row term. It never occurs in hex.
const rowIDSeparator = ":"

// Mapper translates between logical rows and index documents. It is pure.
type Mapper struct {
	schema *schema.Schema
}

// NewMapper creates a mapper over an immutable schema.
func NewMapper(s *schema.Schema) *Mapper {
	return &Mapper{schema: s}
}

// Schema returns the schema the mapper was built from.
func (m *Mapper) Schema() *schema.Schema { return m.schema }

// RowID encodes a row's document ID.
func RowID(pk row.PartitionKey, ck row.ClusteringKey) string {
	return pk.String() + rowIDSeparator + ck.String()
}

// ParseRowID decodes a document ID produced by RowID.
func ParseRowID(id string) (row.PartitionKey, row.ClusteringKey, error) {
	pkHex, ckHex, ok := strings.Cut(id, rowIDSeparator)
	if !ok {
		return nil, nil, fmt.Errorf("malformed row id %q", id)
	}
	pk, err := row.ParsePartitionKey(pkHex)
	if err != nil {
		return nil, nil, fmt.Errorf("row id %q: %w", id, err)
	}
	ck, err := row.ParseClusteringKey(ckHex)
	if err != nil {
		return nil, nil, fmt.Errorf("row id %q: %w", id, err)
	}
	return pk, ck, nil
}

// PartitionTerm addresses every document of a partition.
func (m *Mapper) PartitionTerm(pk row.PartitionKey) db.Term {
	return db.Term{Field: schema.PartitionKeyField, Text: pk.String()}
}

// RowTerm addresses the single document of one logical row.
func (m *Mapper) RowTerm(pk row.PartitionKey, ck row.ClusteringKey) db.Term {
	return db.Term{Field: db.IDField, Text: RowID(pk, ck)}
}

// Document builds the index document of a row: identity fields first, then the
// mapped columns in name order. Columns without an indexable value are omitted.
func (m *Mapper) Document(r row.Row) (*db.Document, error) {
	doc := &db.Document{Fields: make([]db.Field, 0, 2+len(r.Columns))}
	doc.Fields = append(doc.Fields, db.Field{
		Name:   schema.PartitionKeyField,
		Kind:   db.FieldKeyword,
		Stored: true,
		Terms:  []string{r.PartitionKey.String()},
	})
	if len(r.ClusteringKey) > 0 {
		doc.Fields = append(doc.Fields, db.Field{
			Name:   schema.ClusteringKeyField,
			Kind:   db.FieldKeyword,
			Stored: true,
			Terms:  []string{r.ClusteringKey.String()},
		})
	}

	for _, col := range m.schema.Columns() {
		raw, ok := r.Columns[col]
		if !ok || raw == nil {
			continue
		}
		mapping, err := m.schema.Resolve(col)
		if err != nil {
			return nil, err
		}
		v, err := mapping.IndexValue(raw)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		if v.Empty() {
			continue
		}
		doc.Fields = append(doc.Fields, field(col, mapping, v))
	}
	return doc, nil
}

func field(name string, m schema.Mapping, v schema.Indexed) db.Field {
	f := db.Field{Name: name, Terms: v.Terms, Numbers: v.Numbers}
	switch m.IndexField(name).Type {
	case db.IndexFieldNumeric:
		f.Kind = db.FieldNumeric
	case db.IndexFieldText:
		f.Kind = db.FieldText
		f.Analyzer = m.Analyzer()
	default:
		f.Kind = db.FieldKeyword
	}
	return f
}

// PartitionQuery matches every document of a partition.
func (m *Mapper) PartitionQuery(pk row.PartitionKey) db.Query {
	return &db.TermQuery{Field: schema.PartitionKeyField, Text: pk.String()}
}

// RangeQuery matches the documents of a partition whose clustering key lies in
// the tombstone's interval. Hex preserves byte order, so the interval becomes a term range.
func (m *Mapper) RangeQuery(pk row.PartitionKey, t row.RangeTombstone) db.Query {
	must := []db.Query{m.PartitionQuery(pk)}
	if t.Start == nil && t.End == nil {
		return &db.BooleanQuery{Must: must}
	}

	r := &db.TermRangeQuery{Field: schema.ClusteringKeyField}
	if t.Start != nil {
		lo := t.Start.Key.String()
		r.Min, r.MinInclusive = &lo, t.Start.Inclusive
	}
	if t.End != nil {
		hi := t.End.Key.String()
		r.Max, r.MaxInclusive = &hi, t.End.Inclusive
	}
	return &db.BooleanQuery{Must: append(must, r)}
}

// Slices returns one point slice per clustering key. A nil key selects the whole partition.
func (m *Mapper) Slices(cks []row.ClusteringKey) []row.Slice {
	slices := make([]row.Slice, 0, len(cks))
	for _, ck := range cks {
		if ck == nil {
			return []row.Slice{row.Whole()}
		}
		slices = append(slices, row.Point(ck))
	}
	return slices
}

// SplitRows groups reconciled cells into logical rows in read order. Cells that
// are deleted or expired as of now are dropped; a row survives when any of its
// cells, including the row marker, is live.
func (m *Mapper) SplitRows(pk row.PartitionKey, cells []row.Cell, now time.Time) []row.Row {
	var (
		rows  []row.Row
		index = make(map[string]int)
	)
	for _, c := range cells {
		if !c.LiveAt(now) {
			continue
		}
		id := string(c.Clustering)
		i, ok := index[id]
		if !ok {
			i = len(rows)
			index[id] = i
			rows = append(rows, row.Row{
				PartitionKey:  pk,
				ClusteringKey: c.Clustering,
				Columns:       make(map[string]any),
			})
		}
		if !c.IsMarker() {
			rows[i].Columns[c.Column] = c.Value
		}
	}
	return rows
}

// Keys recovers the row keys of a hit from its stored identity fields,
// falling back to the document ID.
func (m *Mapper) Keys(hit db.Hit) (row.PartitionKey, row.ClusteringKey, error) {
	pkHex, ok := hit.Fields[schema.PartitionKeyField]
	if !ok {
		return ParseRowID(hit.ID)
	}
	pk, err := row.ParsePartitionKey(pkHex)
	if err != nil {
		return nil, nil, fmt.Errorf("hit %s: %w", hit.ID, err)
	}
	ck, err := row.ParseClusteringKey(hit.Fields[schema.ClusteringKeyField])
	if err != nil {
		return nil, nil, fmt.Errorf("hit %s: %w", hit.ID, err)
	}
	return pk, ck, nil
}

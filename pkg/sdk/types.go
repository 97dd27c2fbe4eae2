package rowsearch

import (
	"time"

	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/result"
	indexinguc "github.com/kailas-cloud/rowsearch/internal/usecase/indexing"
)

// Table describes the indexed table: its storage columns and how each
// searchable column is mapped into the index.
type Table struct {
	Name string
	// Columns maps column names to CQL type strings ("text", "int", "list<text>").
	Columns map[string]string
	// Mappings maps column names to their index mapping. Unmapped columns are stored
	// but not searchable.
	Mappings map[string]Mapping
	// DefaultAnalyzer applies to text mappings that name none.
	DefaultAnalyzer string
}

// Mapping is the index mapping of one column.
type Mapping struct {
	Type          string // "text", "string", "integer", "date", "bigdec", ...
	Analyzer      string
	CaseSensitive *bool
	Pattern       string
	Digits        int
	IntegerDigits int
	DecimalDigits int
}

func (m Mapping) declaration() schema.Declaration {
	return schema.Declaration{
		Kind: schema.Kind(m.Type),
		Options: schema.Options{
			Analyzer:      m.Analyzer,
			CaseSensitive: m.CaseSensitive,
			Pattern:       m.Pattern,
			Digits:        m.Digits,
			IntegerDigits: m.IntegerDigits,
			DecimalDigits: m.DecimalDigits,
		},
	}
}

// Mutation is a write to a single partition.
type Mutation struct {
	PartitionKey []byte
	// Timestamp defaults to the current time.
	Timestamp       time.Time
	Cells           []Cell
	DeletePartition bool
	RangeDeletes    []RangeDelete
}

// Cell writes or deletes one column of one row.
// A Cell without a Column writes the row marker.
type Cell struct {
	ClusteringKey []byte
	Column        string
	Value         any
	TTL           time.Duration
	Deleted       bool
}

// Bound is one end of a clustering key interval.
type Bound struct {
	Key       []byte
	Inclusive bool
}

// RangeDelete removes every row of the partition whose clustering key lies
// between Start and End. A nil bound is unbounded on that side.
type RangeDelete struct {
	Start *Bound
	End   *Bound
}

// Row is a search result read back from storage.
type Row struct {
	PartitionKey  []byte
	ClusteringKey []byte
	Columns       map[string]any
	Score         float64
}

// Outcome reports what a mutation did to the index.
type Outcome struct {
	// Branch is one of "upserted", "range_deleted", "partition_deleted", "noop".
	Branch   string
	Path     []string
	Upserted int
	Deleted  int
}

// RebuildStats summarises a rebuild.
type RebuildStats struct {
	Partitions int
	Rows       int
	Failed     int
}

func mutationToDomain(m Mutation, now time.Time) *row.Mutation {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = now
	}
	out := &row.Mutation{PartitionKey: row.PartitionKey(m.PartitionKey), Timestamp: ts}
	for _, c := range m.Cells {
		cell := row.Cell{
			Clustering: clusteringKey(c.ClusteringKey),
			Column:     c.Column,
			Value:      c.Value,
			Deleted:    c.Deleted,
		}
		if c.Deleted {
			cell.Value = nil
		}
		if c.TTL > 0 {
			cell.ExpiresAt = ts.Add(c.TTL)
		}
		out.Cells = append(out.Cells, cell)
	}
	if m.DeletePartition {
		at := ts
		out.PartitionDeletion = &at
	}
	for _, d := range m.RangeDeletes {
		out.RangeTombstones = append(out.RangeTombstones, row.RangeTombstone{
			Start: boundToDomain(d.Start),
			End:   boundToDomain(d.End),
		})
	}
	return out
}

func boundToDomain(b *Bound) *row.Bound {
	if b == nil {
		return nil
	}
	return &row.Bound{Key: clusteringKey(b.Key), Inclusive: b.Inclusive}
}

// clusteringKey normalizes an empty key to nil, the key of a non-wide row.
func clusteringKey(b []byte) row.ClusteringKey {
	if len(b) == 0 {
		return nil
	}
	return row.ClusteringKey(b)
}

func outcomeFromDomain(o *indexinguc.Outcome) Outcome {
	path := make([]string, len(o.Path))
	for i, s := range o.Path {
		path[i] = s.String()
	}
	return Outcome{
		Branch:   o.Branch().String(),
		Path:     path,
		Upserted: o.Upserted,
		Deleted:  o.Deleted,
	}
}

func rowsFromDomain(rows []result.ScoredRow) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			PartitionKey:  r.Row.PartitionKey,
			ClusteringKey: r.Row.ClusteringKey,
			Columns:       r.Row.Columns,
			Score:         r.Score,
		}
	}
	return out
}

package document

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
)

func TestMapper_Terms(t *testing.T) {
	m := NewMapper(testSchema(t))
	pk := row.PartitionKey("P1")

	if got := m.PartitionTerm(pk); got != (db.Term{Field: "_partition_key", Text: "5031"}) {
		t.Errorf("PartitionTerm = %+v", got)
	}
	if got := m.RowTerm(pk, row.ClusteringKey{0x0a}); got != (db.Term{Field: db.IDField, Text: "5031:0a"}) {
		t.Errorf("RowTerm = %+v", got)
	}
	if got := m.RowTerm(pk, nil); got.Text != "5031:" {
		t.Errorf("RowTerm without clustering key = %+v", got)
	}
}

func TestParseRowID(t *testing.T) {
	pk, ck, err := ParseRowID("5031:0a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(pk) != "P1" || !reflect.DeepEqual(ck, row.ClusteringKey{0x0a}) {
		t.Errorf("got %q %v", pk, ck)
	}

	if _, ck, _ := ParseRowID("5031:"); ck != nil {
		t.Errorf("empty clustering key should decode to nil, got %v", ck)
	}
	for _, bad := range []string{"5031", "zz:00", "00:zz"} {
		if _, _, err := ParseRowID(bad); err == nil {
			t.Errorf("ParseRowID(%q) should fail", bad)
		}
	}
}

func TestMapper_Document(t *testing.T) {
	m := NewMapper(testSchema(t))
	r := row.Row{
		PartitionKey:  row.PartitionKey("P1"),
		ClusteringKey: row.ClusteringKey{0x01},
		Columns: map[string]any{
			"city":     "Madrid",
			"age":      int32(30),
			"tags":     []any{"a", "b"},
			"unmapped": "ignored",
		},
	}
	doc, err := m.Document(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := make([]string, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		names = append(names, f.Name)
	}
	want := []string{"_partition_key", "_clustering_key", "age", "city", "tags"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("fields = %v, want %v", names, want)
	}

	age, _ := doc.Field("age")
	if age.Kind != db.FieldNumeric || !reflect.DeepEqual(age.Numbers, []float64{30}) {
		t.Errorf("age = %+v", age)
	}
	city, _ := doc.Field("city")
	if city.Kind != db.FieldText || city.Analyzer != db.AnalyzerStandard {
		t.Errorf("city = %+v", city)
	}
	tags, _ := doc.Field("tags")
	if tags.Kind != db.FieldKeyword || !reflect.DeepEqual(tags.Terms, []string{"a", "b"}) {
		t.Errorf("tags = %+v", tags)
	}
	pk, _ := doc.Field("_partition_key")
	if !pk.Stored || pk.Terms[0] != "5031" {
		t.Errorf("_partition_key = %+v", pk)
	}
}

func TestMapper_Document_OmitsEmpty(t *testing.T) {
	m := NewMapper(testSchema(t))
	doc, err := m.Document(row.Row{
		PartitionKey: row.PartitionKey("P1"),
		Columns:      map[string]any{"city": nil, "tags": []any{}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Fields) != 1 {
		t.Errorf("fields = %+v, want partition key only", doc.Fields)
	}
}

func TestMapper_Document_BadValue(t *testing.T) {
	m := NewMapper(testSchema(t))
	_, err := m.Document(row.Row{
		PartitionKey: row.PartitionKey("P1"),
		Columns:      map[string]any{"age": "thirty"},
	})
	if err == nil || !strings.Contains(err.Error(), `"age"`) {
		t.Errorf("expected error naming the column, got %v", err)
	}
}

func TestMapper_RangeQuery(t *testing.T) {
	m := NewMapper(testSchema(t))
	pk := row.PartitionKey{0x0a}

	q := m.RangeQuery(pk, row.RangeTombstone{
		Start: &row.Bound{Key: row.ClusteringKey{0x01}, Inclusive: true},
		End:   &row.Bound{Key: row.ClusteringKey{0x05}},
	})
	if got, want := q.String(), "(+_partition_key:0a +_clustering_key:[01 TO 05})"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	open := m.RangeQuery(pk, row.RangeTombstone{})
	if got, want := open.String(), "(+_partition_key:0a)"; got != want {
		t.Errorf("unbounded String() = %q, want %q", got, want)
	}
}

func TestMapper_Slices(t *testing.T) {
	m := NewMapper(testSchema(t))

	got := m.Slices([]row.ClusteringKey{{0x01}, {0x02}})
	if len(got) != 2 || !reflect.DeepEqual(got[1], row.Point(row.ClusteringKey{0x02})) {
		t.Errorf("Slices = %+v", got)
	}
	if got := m.Slices([]row.ClusteringKey{nil}); !reflect.DeepEqual(got, []row.Slice{row.Whole()}) {
		t.Errorf("non-wide Slices = %+v", got)
	}
}

func TestMapper_SplitRows(t *testing.T) {
	m := NewMapper(testSchema(t))
	pk := row.PartitionKey("P1")
	now := time.Unix(100, 0)

	cells := []row.Cell{
		{Clustering: row.ClusteringKey{0x01}},
		{Clustering: row.ClusteringKey{0x01}, Column: "city", Value: "Madrid"},
		{Clustering: row.ClusteringKey{0x02}, Column: "city", Deleted: true},
		{Clustering: row.ClusteringKey{0x03}},
		{Clustering: row.ClusteringKey{0x04}, Column: "city", Value: "Rome", ExpiresAt: time.Unix(50, 0)},
		{Clustering: row.ClusteringKey{0x05}, Column: "age", Value: int32(7)},
	}
	rows := m.SplitRows(pk, cells, now)

	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3: %+v", len(rows), rows)
	}
	if rows[0].Columns["city"] != "Madrid" {
		t.Errorf("row 01 = %+v", rows[0])
	}
	if len(rows[1].Columns) != 0 || rows[1].ClusteringKey[0] != 0x03 {
		t.Errorf("marker-only row = %+v", rows[1])
	}
	if rows[2].Columns["age"] != int32(7) {
		t.Errorf("row 05 = %+v", rows[2])
	}
}

func TestMapper_Keys(t *testing.T) {
	m := NewMapper(testSchema(t))

	pk, ck, err := m.Keys(db.Hit{ID: "ignored", Fields: map[string]string{
		schema.PartitionKeyField:  "5031",
		schema.ClusteringKeyField: "0a",
	}})
	if err != nil || string(pk) != "P1" || ck[0] != 0x0a {
		t.Errorf("stored fields: %q %v %v", pk, ck, err)
	}

	pk, ck, err = m.Keys(db.Hit{ID: "5031:", Fields: map[string]string{}})
	if err != nil || string(pk) != "P1" || ck != nil {
		t.Errorf("id fallback: %q %v %v", pk, ck, err)
	}

	if _, _, err := m.Keys(db.Hit{ID: "x", Fields: map[string]string{schema.PartitionKeyField: "zz"}}); err == nil {
		t.Error("expected error for malformed partition key")
	}
}

func TestProperty_DocumentIsDeterministic(t *testing.T) {
	m := NewMapper(testSchema(t))

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical rows map to identical documents", prop.ForAll(
		func(pk, ck []byte, city string, age int32, tags []string) bool {
			build := func() row.Row {
				ts := make([]any, len(tags))
				for i, tag := range tags {
					ts[i] = tag
				}
				return row.Row{
					PartitionKey:  row.PartitionKey(pk),
					ClusteringKey: row.ClusteringKey(ck),
					Columns:       map[string]any{"city": city, "age": age, "tags": ts},
				}
			}
			a, errA := m.Document(build())
			b, errB := m.Document(build())
			if errA != nil || errB != nil {
				return false
			}
			return reflect.DeepEqual(a, b)
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
		gen.AlphaString(),
		gen.Int32(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestProperty_TermsAreInjective(t *testing.T) {
	m := NewMapper(testSchema(t))

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	keys := gen.SliceOf(gen.UInt8())

	properties.Property("distinct key pairs never share a row term", prop.ForAll(
		func(pk1, ck1, pk2, ck2 []byte) bool {
			same := string(pk1) == string(pk2) && string(ck1) == string(ck2)
			t1 := m.RowTerm(row.PartitionKey(pk1), row.ClusteringKey(ck1))
			t2 := m.RowTerm(row.PartitionKey(pk2), row.ClusteringKey(ck2))
			return same == (t1 == t2)
		},
		keys, keys, keys, keys,
	))

	properties.Property("row terms decode to their keys", prop.ForAll(
		func(pk, ck []byte) bool {
			gotPK, gotCK, err := ParseRowID(m.RowTerm(row.PartitionKey(pk), row.ClusteringKey(ck)).Text)
			return err == nil && string(gotPK) == string(pk) && string(gotCK) == string(ck)
		},
		keys, keys,
	))

	properties.Property("partition terms never equal row terms", prop.ForAll(
		func(pk1, pk2, ck []byte) bool {
			return m.PartitionTerm(row.PartitionKey(pk1)) != m.RowTerm(row.PartitionKey(pk2), row.ClusteringKey(ck))
		},
		keys, keys, keys,
	))

	properties.TestingRun(t)
}

package compiler

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/condition"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/request"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	insensitive := false
	s, err := schema.Build(db.AnalyzerStandard, map[string]schema.Declaration{
		"city":  {Kind: schema.KindText},
		"age":   {Kind: schema.KindInteger},
		"name":  {Kind: schema.KindString},
		"email": {Kind: schema.KindString, Options: schema.Options{CaseSensitive: &insensitive}},
		"ip":    {Kind: schema.KindInet},
		"big":   {Kind: schema.KindBigInt, Options: schema.Options{Digits: 4}},
		"born":  {Kind: schema.KindDate},
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func mustCompile(t *testing.T, raw string) db.Query {
	t.Helper()
	c, err := condition.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	q, err := Compile(c, testSchema(t))
	if err != nil {
		t.Fatalf("compile %s: %v", raw, err)
	}
	return q
}

func TestCompile_Leaves(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"numeric match is a closed range", `{"type":"match","field":"age","value":30}`, "age:[30 TO 30]"},
		{"analyzed match", `{"type":"match","field":"city","value":"Madrid"}`, "city:(Madrid)"},
		{"exact match", `{"type":"match","field":"name","value":"Bob"}`, "name:Bob"},
		{"case-folded match", `{"type":"match","field":"email","value":"A@B.io"}`, "email:a@b.io"},
		{"inet match canonicalizes", `{"type":"match","field":"ip","value":"::FFFF:10.0.0.1"}`, "ip:10.0.0.1"},
		{
			"numeric range",
			`{"type":"range","field":"age","lower":18,"upper":65,"include_lower":true}`,
			"age:[18 TO 65}",
		},
		{"open numeric range", `{"type":"range","field":"age","upper":10}`, "age:{* TO 10}"},
		{"term range", `{"type":"range","field":"name","lower":"a","upper":"m"}`, "name:{a TO m}"},
		{"bigint range", `{"type":"range","field":"big","lower":-1,"upper":1}`, "big:{09999 TO 10001}"},
		{"date match", `{"type":"match","field":"born","value":"1970/01/01 00:00:01.000"}`, "born:[1000 TO 1000]"},
		{"prefix", `{"type":"prefix","field":"name","value":"Jo","boost":2}`, "name:Jo*^2"},
		{"prefix on inet keeps raw literal", `{"type":"prefix","field":"ip","value":"192.168."}`, "ip:192.168.*"},
		{"prefix folds case", `{"type":"prefix","field":"email","value":"ADMIN"}`, "email:admin*"},
		{"wildcard", `{"type":"wildcard","field":"name","value":"J?n*"}`, "name:J?n*"},
		{"fuzzy", `{"type":"fuzzy","field":"city","value":"madird","max_edits":1}`, "city:madird~1"},
		{"phrase", `{"type":"phrase","field":"city","value":"new york","slop":2}`, `city:"new york"~2`},
		{"native", `{"type":"lucene","query":"city:mad*","default_field":"city"}`, "raw(city:mad*)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := mustCompile(t, tc.in).String(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCompile_MatchAnalyzer(t *testing.T) {
	q := mustCompile(t, `{"type":"match","field":"city","value":"madrid"}`)
	m, ok := q.(*db.MatchQuery)
	if !ok {
		t.Fatalf("expected *db.MatchQuery, got %T", q)
	}
	if m.Analyzer != db.AnalyzerStandard {
		t.Errorf("analyzer = %q, want standard", m.Analyzer)
	}
}

func TestCompile_BooleanPreservesClauseOrder(t *testing.T) {
	q := mustCompile(t, `{
		"type":"boolean","boost":3,
		"must":[{"type":"match","field":"name","value":"b"},{"type":"match","field":"name","value":"a"}],
		"should":[{"type":"prefix","field":"name","value":"z"}],
		"not":[{"type":"match","field":"age","value":1}]
	}`)
	want := "(+name:b +name:a name:z* -age:[1 TO 1])^3"
	if got := q.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCompile_BoostsMultiply(t *testing.T) {
	q := mustCompile(t, `{"type":"boolean","boost":2.0,"must":[{"type":"match","field":"name","value":"x","boost":0.5}]}`)
	if got := db.EffectiveBoosts(q); !reflect.DeepEqual(got, []float64{1}) {
		t.Errorf("effective boosts = %v, want [1]", got)
	}

	nested := mustCompile(t, `{"type":"boolean","boost":2,"should":[
		{"type":"boolean","boost":3,"must":[{"type":"prefix","field":"name","value":"a","boost":0.5}]},
		{"type":"match","field":"age","value":3,"boost":4}
	]}`)
	if got := db.EffectiveBoosts(nested); !reflect.DeepEqual(got, []float64{3, 8}) {
		t.Errorf("nested effective boosts = %v, want [3 8]", got)
	}
}

func TestCompile_AllNotMatchesNothing(t *testing.T) {
	q := mustCompile(t, `{"type":"boolean","not":[{"type":"match","field":"name","value":"x"}]}`)
	b, ok := q.(*db.BooleanQuery)
	if !ok {
		t.Fatalf("expected *db.BooleanQuery, got %T", q)
	}
	if !b.MatchesNothing() {
		t.Error("all-not boolean should compile to a query matching nothing")
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"unmapped", `{"type":"match","field":"nope","value":1}`, domain.ErrUnmappedColumn},
		{"nested unmapped", `{"type":"boolean","should":[{"type":"range","field":"nope"}]}`, domain.ErrUnmappedColumn},
		{"prefix on integer", `{"type":"prefix","field":"age","value":"1"}`, domain.ErrUnsupportedConditionOnType},
		{"wildcard on date", `{"type":"wildcard","field":"born","value":"19*"}`, domain.ErrUnsupportedConditionOnType},
		{"fuzzy on bigint", `{"type":"fuzzy","field":"big","value":"12"}`, domain.ErrUnsupportedConditionOnType},
		{"phrase on string", `{"type":"phrase","field":"name","value":"a b"}`, domain.ErrUnsupportedConditionOnType},
		{"bad literal", `{"type":"match","field":"age","value":"thirty"}`, domain.ErrInvalidCondition},
		{"bad inet", `{"type":"match","field":"ip","value":"nope"}`, domain.ErrInvalidCondition},
		{"numeric range without bounds", `{"type":"range","field":"age"}`, domain.ErrInvalidCondition},
		{"term range without bounds", `{"type":"range","field":"name","include_lower":true}`, domain.ErrInvalidCondition},
		{"native default field", `{"type":"native","query":"x","default_field":"nope"}`, domain.ErrUnmappedColumn},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := condition.Parse([]byte(tc.in))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			_, err = Compile(c, testSchema(t))
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if domain.IsRetryable(err) {
				t.Error("validation errors must not be retryable")
			}
		})
	}
}

func TestCompile_UnsupportedConditionDetails(t *testing.T) {
	c, _ := condition.NewPrefix("age", "1")
	_, err := Compile(c, testSchema(t))
	var ce *domain.ConditionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConditionError, got %v", err)
	}
	if ce.Condition != "prefix" || ce.Field != "age" || ce.Mapping != "integer" {
		t.Errorf("ConditionError = %+v", ce)
	}
}

func TestCompile_Nil(t *testing.T) {
	if _, err := Compile(nil, testSchema(t)); !errors.Is(err, domain.ErrInvalidCondition) {
		t.Errorf("expected ErrInvalidCondition, got %v", err)
	}
}

func TestCompileSort(t *testing.T) {
	got, err := CompileSort([]request.SortField{{Field: "age", Reverse: true}, {Field: "name"}}, testSchema(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []db.SortField{
		{Field: "age", Descending: true, Numeric: true},
		{Field: "name"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CompileSort = %+v, want %+v", got, want)
	}
	if _, err := CompileSort([]request.SortField{{Field: "nope"}}, testSchema(t)); !errors.Is(err, domain.ErrUnmappedColumn) {
		t.Errorf("expected ErrUnmappedColumn, got %v", err)
	}
}

func TestCompile_JSONNumberPrecision(t *testing.T) {
	m, _ := condition.NewMatch("age", json.Number("2147483647"))
	q, err := Compile(m, testSchema(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := q.String(); got != "age:[2.147483647e+09 TO 2.147483647e+09]" {
		t.Errorf("got %q", got)
	}
}

package db

import (
	"strconv"
	"strings"
)

// Query is a node of the engine-neutral native query tree.
// The set of node types is closed; engines translate each of them.
type Query interface {
	// Weight returns the node's own boost. A zero Boost means 1.
	Weight() float64
	String() string
	query()
}

// TermQuery matches an exact token.
type TermQuery struct {
	Field string
	Text  string
	Boost float64
}

// MatchQuery analyzes Text with the field's analyzer and matches any resulting token.
type MatchQuery struct {
	Field    string
	Text     string
	Analyzer string
	Boost    float64
}

// PhraseQuery matches analyzed tokens in order, up to Slop positions apart.
type PhraseQuery struct {
	Field    string
	Text     string
	Analyzer string
	Slop     int
	Boost    float64
}

// NumericRangeQuery matches numbers between Min and Max. A nil bound is open.
type NumericRangeQuery struct {
	Field        string
	Min, Max     *float64
	MinInclusive bool
	MaxInclusive bool
	Boost        float64
}

// TermRangeQuery matches tokens lexicographically between Min and Max. A nil bound is open.
type TermRangeQuery struct {
	Field        string
	Min, Max     *string
	MinInclusive bool
	MaxInclusive bool
	Boost        float64
}

// PrefixQuery matches tokens starting with Prefix.
type PrefixQuery struct {
	Field  string
	Prefix string
	Boost  float64
}

// WildcardQuery matches tokens against a pattern with * and ?.
type WildcardQuery struct {
	Field   string
	Pattern string
	Boost   float64
}

// FuzzyQuery matches tokens within MaxEdits edits of Text.
type FuzzyQuery struct {
	Field          string
	Text           string
	MaxEdits       int
	PrefixLength   int
	MaxExpansions  int
	Transpositions bool
	Boost          float64
}

// RawQuery carries query syntax understood by the engine's own parser.
type RawQuery struct {
	Syntax       string
	DefaultField string
	Boost        float64
}

// BooleanQuery combines clauses. Clause order mirrors insertion order.
type BooleanQuery struct {
	Must    []Query
	Should  []Query
	MustNot []Query
	Boost   float64
}

// MatchAllQuery matches every document.
type MatchAllQuery struct {
	Boost float64
}

// MatchNoneQuery matches no document.
type MatchNoneQuery struct{}

func (q *TermQuery) query()         {}
func (q *MatchQuery) query()        {}
func (q *PhraseQuery) query()       {}
func (q *NumericRangeQuery) query() {}
func (q *TermRangeQuery) query()    {}
func (q *PrefixQuery) query()       {}
func (q *WildcardQuery) query()     {}
func (q *FuzzyQuery) query()        {}
func (q *RawQuery) query()          {}
func (q *BooleanQuery) query()      {}
func (q *MatchAllQuery) query()     {}
func (q *MatchNoneQuery) query()    {}

func weight(b float64) float64 {
	if b == 0 {
		return 1
	}
	return b
}

// Weight returns the boost.
func (q *TermQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *MatchQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *PhraseQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *NumericRangeQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *TermRangeQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *PrefixQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *WildcardQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *FuzzyQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *RawQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *BooleanQuery) Weight() float64 { return weight(q.Boost) }

// Weight returns the boost.
func (q *MatchAllQuery) Weight() float64 { return weight(q.Boost) }

// Weight is always 1; nothing matches.
func (q *MatchNoneQuery) Weight() float64 { return 1 }

// MatchesNothing reports whether the boolean has no positive clause.
// Such a query matches no document, whatever its prohibited clauses say.
func (q *BooleanQuery) MatchesNothing() bool {
	return len(q.Must) == 0 && len(q.Should) == 0
}

// --- String rendering (Lucene-like, deterministic) ---

func (q *TermQuery) String() string {
	return withBoost(q.Field+":"+q.Text, q.Boost)
}

func (q *MatchQuery) String() string {
	return withBoost(q.Field+":("+q.Text+")", q.Boost)
}

func (q *PhraseQuery) String() string {
	s := q.Field + ":" + strconv.Quote(q.Text)
	if q.Slop > 0 {
		s += "~" + strconv.Itoa(q.Slop)
	}
	return withBoost(s, q.Boost)
}

func (q *NumericRangeQuery) String() string {
	return withBoost(q.Field+":"+rangeString(fmtFloatPtr(q.Min), fmtFloatPtr(q.Max),
		q.MinInclusive, q.MaxInclusive), q.Boost)
}

func (q *TermRangeQuery) String() string {
	return withBoost(q.Field+":"+rangeString(q.Min, q.Max, q.MinInclusive, q.MaxInclusive), q.Boost)
}

func (q *PrefixQuery) String() string {
	return withBoost(q.Field+":"+q.Prefix+"*", q.Boost)
}

func (q *WildcardQuery) String() string {
	return withBoost(q.Field+":"+q.Pattern, q.Boost)
}

func (q *FuzzyQuery) String() string {
	return withBoost(q.Field+":"+q.Text+"~"+strconv.Itoa(q.MaxEdits), q.Boost)
}

func (q *RawQuery) String() string {
	return withBoost("raw("+q.Syntax+")", q.Boost)
}

func (q *BooleanQuery) String() string {
	parts := make([]string, 0, len(q.Must)+len(q.Should)+len(q.MustNot))
	for _, c := range q.Must {
		parts = append(parts, "+"+c.String())
	}
	for _, c := range q.Should {
		parts = append(parts, c.String())
	}
	for _, c := range q.MustNot {
		parts = append(parts, "-"+c.String())
	}
	return withBoost("("+strings.Join(parts, " ")+")", q.Boost)
}

func (q *MatchAllQuery) String() string { return withBoost("*:*", q.Boost) }

func (q *MatchNoneQuery) String() string { return "-*:*" }

func withBoost(s string, boost float64) string {
	if boost == 0 || boost == 1 {
		return s
	}
	return s + "^" + strconv.FormatFloat(boost, 'g', -1, 64)
}

func rangeString(lo, hi *string, loIncl, hiIncl bool) string {
	open, closeB := "{", "}"
	if loIncl {
		open = "["
	}
	if hiIncl {
		closeB = "]"
	}
	l, h := "*", "*"
	if lo != nil {
		l = *lo
	}
	if hi != nil {
		h = *hi
	}
	return open + l + " TO " + h + closeB
}

func fmtFloatPtr(f *float64) *string {
	if f == nil {
		return nil
	}
	s := strconv.FormatFloat(*f, 'g', -1, 64)
	return &s
}

// EffectiveBoosts returns, for every leaf in depth-first clause order, the product of
// the boosts on its path from the root. Prohibited clauses contribute no score and are skipped.
func EffectiveBoosts(q Query) []float64 {
	var out []float64
	var walk func(Query, float64)
	walk = func(n Query, acc float64) {
		acc *= n.Weight()
		b, ok := n.(*BooleanQuery)
		if !ok {
			out = append(out, acc)
			return
		}
		for _, c := range b.Must {
			walk(c, acc)
		}
		for _, c := range b.Should {
			walk(c, acc)
		}
	}
	walk(q, 1)
	return out
}

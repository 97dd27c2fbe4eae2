// Package schema maps table columns to index field strategies.
package schema

import (
	"fmt"
	"math"
	"math/big"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
)

// Kind names a mapping strategy. The set is closed.
type Kind string

// Mapping kinds.
const (
	KindBytes   Kind = "bytes"
	KindBoolean Kind = "boolean"
	KindDate    Kind = "date"
	KindDouble  Kind = "double"
	KindFloat   Kind = "float"
	KindInet    Kind = "inet"
	KindInteger Kind = "integer"
	KindLong    Kind = "long"
	KindString  Kind = "string"
	KindText    Kind = "text"
	KindUUID    Kind = "uuid"
	KindBigDec  Kind = "bigdec"
	KindBigInt  Kind = "bigint"
)

// Kinds lists every mapping kind.
var Kinds = []Kind{
	KindBytes, KindBoolean, KindDate, KindDouble, KindFloat, KindInet, KindInteger,
	KindLong, KindString, KindText, KindUUID, KindBigDec, KindBigInt,
}

// Base is the comparison family of a mapping.
type Base int

const (
	// Numeric values compare as numbers.
	Numeric Base = iota
	// Exact values are single untokenized tokens.
	Exact
	// Analyzed values are tokenized by an analyzer.
	Analyzed
)

func (b Base) String() string {
	switch b {
	case Numeric:
		return "numeric"
	case Exact:
		return "exact"
	default:
		return "analyzed"
	}
}

// Defaults taken when options leave them unset.
const (
	DefaultDatePattern   = "2006/01/02 15:04:05.000"
	DefaultBigIntDigits  = 32
	DefaultBigDecDigits  = 32
	maxFixedPointDigits  = 256
	defaultCaseSensitive = true
)

// Options configures a mapping. Fields that do not apply to a kind are rejected.
type Options struct {
	Analyzer      string
	CaseSensitive *bool
	Pattern       string
	Digits        int
	IntegerDigits int
	DecimalDigits int
}

// Indexed is the index-side form of one stored value. Empty means the field is omitted.
type Indexed struct {
	Terms   []string
	Numbers []float64
}

// Empty reports whether there is nothing to index.
func (i Indexed) Empty() bool { return len(i.Terms) == 0 && len(i.Numbers) == 0 }

// Mapping is a per-column indexing strategy.
type Mapping interface {
	Kind() Kind
	Base() Base
	// Accepts reports whether the mapping can index values of t.
	// Collections are accepted when their element (or map value) type is.
	Accepts(t cql.Type) bool
	// IndexValue converts a stored value. nil yields an empty result;
	// collections yield one entry per element, map values in key order.
	IndexValue(raw any) (Indexed, error)
	// QueryValue converts a query literal into a value comparable with IndexValue output:
	// float64 for numeric mappings, string otherwise.
	QueryValue(literal any) (any, error)
	SortField(field string, reverse bool) db.SortField
	// Analyzer returns the text analysis strategy; exact and numeric mappings use keyword.
	Analyzer() string
	// Patterns reports whether prefix, wildcard and fuzzy conditions are allowed.
	Patterns() bool
	IndexField(field string) db.IndexField
}

var (
	textKinds    = []cql.Kind{cql.Ascii, cql.Text, cql.Varchar}
	numberKinds  = []cql.Kind{cql.Int, cql.Bigint, cql.Counter, cql.Varint, cql.Float, cql.Double, cql.Decimal}
	integerKinds = []cql.Kind{cql.Int, cql.Bigint, cql.Counter, cql.Varint}
)

func kinds(groups ...[]cql.Kind) []cql.Kind {
	var out []cql.Kind
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// NewMapping builds a mapping of the given kind.
func NewMapping(kind Kind, opts Options) (Mapping, error) {
	if err := checkOptions(kind, opts); err != nil {
		return nil, err
	}

	switch kind {
	case KindInteger, KindLong, KindFloat, KindDouble:
		return &numberMapping{kind: kind, accepts: kinds(textKinds, numberKinds)}, nil
	case KindDate:
		pattern := opts.Pattern
		if pattern == "" {
			pattern = DefaultDatePattern
		}
		return &dateMapping{
			pattern: pattern,
			accepts: kinds(textKinds, numberKinds, []cql.Kind{cql.Timestamp, cql.TimeUUID}),
		}, nil
	case KindBigInt:
		digits := opts.Digits
		if digits == 0 {
			digits = DefaultBigIntDigits
		}
		return &fixedPointMapping{
			kind:    kind,
			intDigs: digits,
			accepts: kinds(textKinds, integerKinds),
		}, nil
	case KindBigDec:
		intDigs, decDigs := opts.IntegerDigits, opts.DecimalDigits
		if intDigs == 0 {
			intDigs = DefaultBigDecDigits
		}
		if decDigs == 0 {
			decDigs = DefaultBigDecDigits
		}
		return &fixedPointMapping{
			kind:    kind,
			intDigs: intDigs,
			decDigs: decDigs,
			accepts: kinds(textKinds, numberKinds),
		}, nil
	case KindText:
		return &textMapping{
			analyzer: opts.Analyzer,
			accepts: kinds(textKinds, integerKinds, []cql.Kind{
				cql.Float, cql.Double, cql.Boolean, cql.UUID, cql.TimeUUID, cql.Timestamp, cql.Blob, cql.Inet,
			}),
		}, nil
	case KindString:
		caseSensitive := defaultCaseSensitive
		if opts.CaseSensitive != nil {
			caseSensitive = *opts.CaseSensitive
		}
		return &tokenMapping{
			kind:          kind,
			caseSensitive: caseSensitive,
			accepts: kinds(textKinds, numberKinds, []cql.Kind{
				cql.Boolean, cql.UUID, cql.TimeUUID, cql.Timestamp, cql.Blob, cql.Inet,
			}),
		}, nil
	case KindUUID:
		return &tokenMapping{kind: kind, caseSensitive: true,
			accepts: kinds(textKinds, []cql.Kind{cql.UUID, cql.TimeUUID})}, nil
	case KindInet:
		return &tokenMapping{kind: kind, caseSensitive: true,
			accepts: kinds(textKinds, []cql.Kind{cql.Inet})}, nil
	case KindBytes:
		return &tokenMapping{kind: kind, caseSensitive: true,
			accepts: kinds(textKinds, []cql.Kind{cql.Blob})}, nil
	case KindBoolean:
		return &tokenMapping{kind: kind, caseSensitive: true,
			accepts: kinds(textKinds, []cql.Kind{cql.Boolean})}, nil
	}
	return nil, fmt.Errorf("unknown mapping type %q", kind)
}

func checkOptions(kind Kind, opts Options) error {
	if opts.Analyzer != "" && kind != KindText {
		return fmt.Errorf("analyzer is only valid for text mappings")
	}
	if opts.Analyzer != "" && !db.IsAnalyzer(opts.Analyzer) {
		return fmt.Errorf("unknown analyzer %q", opts.Analyzer)
	}
	if opts.CaseSensitive != nil && kind != KindString {
		return fmt.Errorf("case_sensitive is only valid for string mappings")
	}
	if opts.Pattern != "" && kind != KindDate {
		return fmt.Errorf("pattern is only valid for date mappings")
	}
	if opts.Digits != 0 && kind != KindBigInt {
		return fmt.Errorf("digits is only valid for bigint mappings")
	}
	if (opts.IntegerDigits != 0 || opts.DecimalDigits != 0) && kind != KindBigDec {
		return fmt.Errorf("integer_digits and decimal_digits are only valid for bigdec mappings")
	}
	for _, d := range []int{opts.Digits, opts.IntegerDigits, opts.DecimalDigits} {
		if d < 0 || d > maxFixedPointDigits {
			return fmt.Errorf("digits must be between 1 and %d", maxFixedPointDigits)
		}
	}
	return nil
}

func acceptsKind(accepted []cql.Kind, t cql.Type) bool {
	return slices.Contains(accepted, t.Value().Kind)
}

// each applies fn to every element a stored value contributes.
func each(raw any, fn func(any) error) error {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		for _, item := range v {
			if err := each(item, fn); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := each(v[k], fn); err != nil {
				return err
			}
		}
		return nil
	default:
		return fn(v)
	}
}

// --- numeric ---

type numberMapping struct {
	kind    Kind
	accepts []cql.Kind
}

func (m *numberMapping) Kind() Kind              { return m.kind }
func (m *numberMapping) Base() Base              { return Numeric }
func (m *numberMapping) Accepts(t cql.Type) bool { return acceptsKind(m.accepts, t) }
func (m *numberMapping) Analyzer() string        { return db.AnalyzerKeyword }
func (m *numberMapping) Patterns() bool          { return false }
func (m *numberMapping) IndexField(f string) db.IndexField {
	return db.IndexField{Name: f, Type: db.IndexFieldNumeric, Sortable: true}
}

func (m *numberMapping) SortField(field string, reverse bool) db.SortField {
	return db.SortField{Field: field, Descending: reverse, Numeric: true}
}

func (m *numberMapping) IndexValue(raw any) (Indexed, error) {
	var out Indexed
	err := each(raw, func(v any) error {
		f, err := m.convert(v)
		if err != nil {
			return err
		}
		out.Numbers = append(out.Numbers, f)
		return nil
	})
	return out, err
}

func (m *numberMapping) QueryValue(literal any) (any, error) {
	return m.convert(literal)
}

func (m *numberMapping) convert(v any) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s mapping: %w", m.kind, err)
	}
	if math.IsNaN(f) && (m.kind == KindInteger || m.kind == KindLong) {
		return 0, fmt.Errorf("%s mapping: NaN is not an integer", m.kind)
	}
	switch m.kind {
	case KindInteger:
		return saturate(f, math.MinInt32, math.MaxInt32), nil
	case KindLong:
		return saturate(f, math.MinInt64, math.MaxInt64), nil
	case KindFloat:
		return float64(float32(f)), nil
	default:
		return f, nil
	}
}

// saturate truncates f toward zero and clamps it to [lo, hi].
func saturate(f, lo, hi float64) float64 {
	f = math.Trunc(f)
	switch {
	case f < lo:
		return lo
	case f > hi:
		return hi
	}
	return f
}

// --- date ---

type dateMapping struct {
	pattern string
	accepts []cql.Kind
}

func (m *dateMapping) Kind() Kind              { return KindDate }
func (m *dateMapping) Base() Base              { return Numeric }
func (m *dateMapping) Accepts(t cql.Type) bool { return acceptsKind(m.accepts, t) }
func (m *dateMapping) Analyzer() string        { return db.AnalyzerKeyword }
func (m *dateMapping) Patterns() bool          { return false }
func (m *dateMapping) IndexField(f string) db.IndexField {
	return db.IndexField{Name: f, Type: db.IndexFieldNumeric, Sortable: true}
}

func (m *dateMapping) SortField(field string, reverse bool) db.SortField {
	return db.SortField{Field: field, Descending: reverse, Numeric: true}
}

func (m *dateMapping) IndexValue(raw any) (Indexed, error) {
	var out Indexed
	err := each(raw, func(v any) error {
		ms, err := m.millis(v)
		if err != nil {
			return err
		}
		out.Numbers = append(out.Numbers, ms)
		return nil
	})
	return out, err
}

func (m *dateMapping) QueryValue(literal any) (any, error) {
	return m.millis(literal)
}

func (m *dateMapping) millis(v any) (float64, error) {
	switch t := v.(type) {
	case time.Time:
		return float64(t.UnixMilli()), nil
	case string:
		parsed, err := time.Parse(m.pattern, t)
		if err != nil {
			return 0, fmt.Errorf("date mapping: %q does not match pattern %q", t, m.pattern)
		}
		return float64(parsed.UnixMilli()), nil
	}
	if id, ok := asUUID(v); ok && id.Version() == 1 {
		sec, nsec := id.Time().UnixTime()
		return float64(time.Unix(sec, nsec).UnixMilli()), nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("date mapping: %w", err)
	}
	return float64(int64(f)), nil
}

// --- fixed point (bigint, bigdec) ---

// fixedPointMapping renders arbitrary-precision numbers as fixed-width offset decimal
// strings so that lexicographic order equals numeric order.
type fixedPointMapping struct {
	kind    Kind
	intDigs int
	decDigs int
	accepts []cql.Kind
}

func (m *fixedPointMapping) Kind() Kind              { return m.kind }
func (m *fixedPointMapping) Base() Base              { return Exact }
func (m *fixedPointMapping) Accepts(t cql.Type) bool { return acceptsKind(m.accepts, t) }
func (m *fixedPointMapping) Analyzer() string        { return db.AnalyzerKeyword }
func (m *fixedPointMapping) Patterns() bool          { return false }
func (m *fixedPointMapping) IndexField(f string) db.IndexField {
	return db.IndexField{Name: f, Type: db.IndexFieldTag, TagCaseSensitive: true, Sortable: true}
}

func (m *fixedPointMapping) SortField(field string, reverse bool) db.SortField {
	return db.SortField{Field: field, Descending: reverse}
}

func (m *fixedPointMapping) IndexValue(raw any) (Indexed, error) {
	var out Indexed
	err := each(raw, func(v any) error {
		s, err := m.encode(v)
		if err != nil {
			return err
		}
		out.Terms = append(out.Terms, s)
		return nil
	})
	return out, err
}

func (m *fixedPointMapping) QueryValue(literal any) (any, error) {
	return m.encode(literal)
}

func (m *fixedPointMapping) encode(v any) (string, error) {
	r, err := toRat(v)
	if err != nil {
		return "", fmt.Errorf("%s mapping: %w", m.kind, err)
	}
	if m.kind == KindBigInt && !r.IsInt() {
		return "", fmt.Errorf("bigint mapping: %s is not an integer", r.RatString())
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(m.decDigs)), nil)
	scaled := new(big.Int).Quo(new(big.Int).Mul(r.Num(), scale), r.Denom())

	total := m.intDigs + m.decDigs
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(total)), nil)
	if new(big.Int).Abs(scaled).Cmp(limit) >= 0 {
		return "", fmt.Errorf("%s mapping: %s needs more than %d integer digits", m.kind, r.RatString(), m.intDigs)
	}
	offset := scaled.Add(scaled, limit)
	s := offset.String()
	return strings.Repeat("0", total+1-len(s)) + s, nil
}

// --- analyzed text ---

type textMapping struct {
	analyzer string
	accepts  []cql.Kind
}

func (m *textMapping) Kind() Kind              { return KindText }
func (m *textMapping) Base() Base              { return Analyzed }
func (m *textMapping) Accepts(t cql.Type) bool { return acceptsKind(m.accepts, t) }
func (m *textMapping) Analyzer() string        { return m.analyzer }
func (m *textMapping) Patterns() bool          { return true }
func (m *textMapping) IndexField(f string) db.IndexField {
	return db.IndexField{Name: f, Type: db.IndexFieldText, Analyzer: m.analyzer}
}

func (m *textMapping) SortField(field string, reverse bool) db.SortField {
	return db.SortField{Field: field, Descending: reverse}
}

func (m *textMapping) IndexValue(raw any) (Indexed, error) {
	var out Indexed
	err := each(raw, func(v any) error {
		s, err := textForm(v)
		if err != nil {
			return fmt.Errorf("text mapping: %w", err)
		}
		out.Terms = append(out.Terms, s)
		return nil
	})
	return out, err
}

func (m *textMapping) QueryValue(literal any) (any, error) {
	return textForm(literal)
}

// --- exact tokens (string, uuid, inet, bytes, boolean) ---

type tokenMapping struct {
	kind          Kind
	caseSensitive bool
	accepts       []cql.Kind
}

func (m *tokenMapping) Kind() Kind              { return m.kind }
func (m *tokenMapping) Base() Base              { return Exact }
func (m *tokenMapping) Accepts(t cql.Type) bool { return acceptsKind(m.accepts, t) }
func (m *tokenMapping) Analyzer() string        { return db.AnalyzerKeyword }
func (m *tokenMapping) Patterns() bool          { return true }
func (m *tokenMapping) IndexField(f string) db.IndexField {
	return db.IndexField{Name: f, Type: db.IndexFieldTag, TagCaseSensitive: true, Sortable: true}
}

// CaseSensitive reports whether tokens keep their case.
func (m *tokenMapping) CaseSensitive() bool { return m.caseSensitive }

func (m *tokenMapping) SortField(field string, reverse bool) db.SortField {
	return db.SortField{Field: field, Descending: reverse}
}

func (m *tokenMapping) IndexValue(raw any) (Indexed, error) {
	var out Indexed
	err := each(raw, func(v any) error {
		s, err := m.token(v)
		if err != nil {
			return err
		}
		out.Terms = append(out.Terms, s)
		return nil
	})
	return out, err
}

func (m *tokenMapping) QueryValue(literal any) (any, error) {
	return m.token(literal)
}

func (m *tokenMapping) token(v any) (string, error) {
	var (
		s   string
		err error
	)
	switch m.kind {
	case KindUUID:
		s, err = uuidToken(v)
	case KindInet:
		s, err = inetToken(v)
	case KindBytes:
		s, err = bytesToken(v)
	case KindBoolean:
		s, err = boolToken(v)
	default:
		s, err = textForm(v)
		if err == nil && !m.caseSensitive {
			s = strings.ToLower(s)
		}
	}
	if err != nil {
		return "", fmt.Errorf("%s mapping: %w", m.kind, err)
	}
	return s, nil
}

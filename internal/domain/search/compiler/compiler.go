// Package compiler turns condition trees into engine-neutral native queries.
package compiler

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/condition"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/request"
)

// Compile translates a condition tree into a native query using the schema's mappings.
// Every failure is a permanent validation error returned before any engine call.
func Compile(c condition.Condition, s *schema.Schema) (db.Query, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: condition is nil", domain.ErrInvalidCondition)
	}

	switch c := c.(type) {
	case *condition.Match:
		return compileMatch(c, s)
	case *condition.Range:
		return compileRange(c, s)
	case *condition.Pattern:
		return compilePattern(c, s)
	case *condition.Fuzzy:
		return compileFuzzy(c, s)
	case *condition.Phrase:
		return compilePhrase(c, s)
	case *condition.Boolean:
		return compileBoolean(c, s)
	case *condition.Native:
		if f := c.DefaultField(); f != "" {
			if _, err := s.Resolve(f); err != nil {
				return nil, err
			}
		}
		return &db.RawQuery{Syntax: c.Query(), DefaultField: c.DefaultField(), Boost: c.Boost()}, nil
	}
	return nil, fmt.Errorf("%w: unknown condition %T", domain.ErrInvalidCondition, c)
}

// CompileSort resolves sort fields through their mappings.
func CompileSort(fields []request.SortField, s *schema.Schema) ([]db.SortField, error) {
	out := make([]db.SortField, 0, len(fields))
	for _, f := range fields {
		m, err := s.Resolve(f.Field)
		if err != nil {
			return nil, err
		}
		out = append(out, m.SortField(f.Field, f.Reverse))
	}
	return out, nil
}

func compileMatch(c *condition.Match, s *schema.Schema) (db.Query, error) {
	m, err := s.Resolve(c.Field())
	if err != nil {
		return nil, err
	}
	v, err := queryValue(m, c.Field(), c.Value())
	if err != nil {
		return nil, err
	}

	switch m.Base() {
	case schema.Numeric:
		n := v.(float64)
		return &db.NumericRangeQuery{
			Field: c.Field(), Min: &n, Max: &n,
			MinInclusive: true, MaxInclusive: true,
			Boost: c.Boost(),
		}, nil
	case schema.Analyzed:
		return &db.MatchQuery{Field: c.Field(), Text: v.(string), Analyzer: m.Analyzer(), Boost: c.Boost()}, nil
	default:
		return &db.TermQuery{Field: c.Field(), Text: v.(string), Boost: c.Boost()}, nil
	}
}

func compileRange(c *condition.Range, s *schema.Schema) (db.Query, error) {
	m, err := s.Resolve(c.Field())
	if err != nil {
		return nil, err
	}
	lo, err := optionalQueryValue(m, c.Field(), c.Lower())
	if err != nil {
		return nil, err
	}
	hi, err := optionalQueryValue(m, c.Field(), c.Upper())
	if err != nil {
		return nil, err
	}
	if lo == nil && hi == nil {
		return nil, fmt.Errorf("%w: range on %q needs a lower or upper bound", domain.ErrInvalidCondition, c.Field())
	}

	if m.Base() == schema.Numeric {
		q := &db.NumericRangeQuery{
			Field:        c.Field(),
			MinInclusive: c.IncludeLower(),
			MaxInclusive: c.IncludeUpper(),
			Boost:        c.Boost(),
		}
		if lo != nil {
			n := lo.(float64)
			q.Min = &n
		}
		if hi != nil {
			n := hi.(float64)
			q.Max = &n
		}
		return q, nil
	}

	q := &db.TermRangeQuery{
		Field:        c.Field(),
		MinInclusive: c.IncludeLower(),
		MaxInclusive: c.IncludeUpper(),
		Boost:        c.Boost(),
	}
	if lo != nil {
		t := lo.(string)
		q.Min = &t
	}
	if hi != nil {
		t := hi.(string)
		q.Max = &t
	}
	return q, nil
}

func compilePattern(c *condition.Pattern, s *schema.Schema) (db.Query, error) {
	m, err := patternMapping(c.Type(), c.Field(), s)
	if err != nil {
		return nil, err
	}
	v := literal(m, c.Value())
	if c.Type() == condition.TypePrefix {
		return &db.PrefixQuery{Field: c.Field(), Prefix: v, Boost: c.Boost()}, nil
	}
	return &db.WildcardQuery{Field: c.Field(), Pattern: v, Boost: c.Boost()}, nil
}

func compileFuzzy(c *condition.Fuzzy, s *schema.Schema) (db.Query, error) {
	m, err := patternMapping(c.Type(), c.Field(), s)
	if err != nil {
		return nil, err
	}
	p := c.Params()
	return &db.FuzzyQuery{
		Field:          c.Field(),
		Text:           literal(m, c.Value()),
		MaxEdits:       p.MaxEdits,
		PrefixLength:   p.PrefixLength,
		MaxExpansions:  p.MaxExpansions,
		Transpositions: p.Transpositions,
		Boost:          c.Boost(),
	}, nil
}

func compilePhrase(c *condition.Phrase, s *schema.Schema) (db.Query, error) {
	m, err := s.Resolve(c.Field())
	if err != nil {
		return nil, err
	}
	if m.Base() != schema.Analyzed {
		return nil, domain.NewUnsupportedCondition(string(c.Type()), c.Field(), string(m.Kind()))
	}
	return &db.PhraseQuery{
		Field: c.Field(), Text: c.Value(), Analyzer: m.Analyzer(),
		Slop: c.Slop(), Boost: c.Boost(),
	}, nil
}

func compileBoolean(c *condition.Boolean, s *schema.Schema) (db.Query, error) {
	must, err := compileAll(c.Must(), s)
	if err != nil {
		return nil, err
	}
	should, err := compileAll(c.Should(), s)
	if err != nil {
		return nil, err
	}
	not, err := compileAll(c.Not(), s)
	if err != nil {
		return nil, err
	}
	return &db.BooleanQuery{Must: must, Should: should, MustNot: not, Boost: c.Boost()}, nil
}

func compileAll(cs []condition.Condition, s *schema.Schema) ([]db.Query, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	out := make([]db.Query, 0, len(cs))
	for _, c := range cs {
		q, err := Compile(c, s)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func patternMapping(t condition.Type, field string, s *schema.Schema) (schema.Mapping, error) {
	m, err := s.Resolve(field)
	if err != nil {
		return nil, err
	}
	if !m.Patterns() {
		return nil, domain.NewUnsupportedCondition(string(t), field, string(m.Kind()))
	}
	return m, nil
}

type caseSensitivity interface {
	CaseSensitive() bool
}

// literal keeps pattern text verbatim, folding case only where the index folded it.
func literal(m schema.Mapping, v string) string {
	if cs, ok := m.(caseSensitivity); ok && !cs.CaseSensitive() {
		return strings.ToLower(v)
	}
	return v
}

func queryValue(m schema.Mapping, field string, v any) (any, error) {
	q, err := m.QueryValue(v)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q: %w", domain.ErrInvalidCondition, field, err)
	}
	return q, nil
}

func optionalQueryValue(m schema.Mapping, field string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return queryValue(m, field, v)
}

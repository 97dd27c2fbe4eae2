// Package condition models the boost-weighted boolean condition tree of a search.
package condition

import (
	"fmt"
	"math"
)

// Type discriminates condition variants.
type Type string

// Condition types.
const (
	TypeMatch    Type = "match"
	TypeRange    Type = "range"
	TypePrefix   Type = "prefix"
	TypeWildcard Type = "wildcard"
	TypeFuzzy    Type = "fuzzy"
	TypePhrase   Type = "phrase"
	TypeBoolean  Type = "boolean"
	TypeNative   Type = "native"
)

// DefaultBoost is the boost of a condition that does not set one.
const DefaultBoost = 1.0

// MaxClausesPerGroup is the maximum number of children per boolean clause list.
const MaxClausesPerGroup = 1024

// Condition is a node of the condition tree. The set of variants is closed.
type Condition interface {
	Type() Type
	Boost() float64
	condition()
}

type base struct {
	boost float64
}

func (b base) Boost() float64 { return b.boost }
func (b base) condition()     {}

// Option customizes a condition.
type Option func(*base)

// WithBoost sets the boost multiplier.
func WithBoost(boost float64) Option {
	return func(b *base) { b.boost = boost }
}

func newBase(opts []Option) (base, error) {
	b := base{boost: DefaultBoost}
	for _, o := range opts {
		o(&b)
	}
	if math.IsNaN(b.boost) || math.IsInf(b.boost, 0) || b.boost <= 0 {
		return base{}, fmt.Errorf("boost must be a positive number, got %v", b.boost)
	}
	return b, nil
}

func requireField(t Type, field string) error {
	if field == "" {
		return fmt.Errorf("%s condition requires a field", t)
	}
	return nil
}

// Match selects documents whose field equals (exact) or contains the tokens of (analyzed) a value.
type Match struct {
	base
	field string
	value any
}

// NewMatch creates a match condition.
func NewMatch(field string, value any, opts ...Option) (*Match, error) {
	if err := requireField(TypeMatch, field); err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("match condition on %q requires a value", field)
	}
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &Match{base: b, field: field, value: value}, nil
}

// Type returns TypeMatch.
func (c *Match) Type() Type { return TypeMatch }

// Field returns the column name.
func (c *Match) Field() string { return c.field }

// Value returns the literal.
func (c *Match) Value() any { return c.value }

// Range selects documents whose field lies between two bounds. A nil bound is open.
type Range struct {
	base
	field        string
	lower, upper any
	includeLower bool
	includeUpper bool
}

// NewRange creates a range condition.
func NewRange(field string, lower, upper any, includeLower, includeUpper bool, opts ...Option) (*Range, error) {
	if err := requireField(TypeRange, field); err != nil {
		return nil, err
	}
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &Range{
		base: b, field: field,
		lower: lower, upper: upper,
		includeLower: includeLower, includeUpper: includeUpper,
	}, nil
}

// Type returns TypeRange.
func (c *Range) Type() Type { return TypeRange }

// Field returns the column name.
func (c *Range) Field() string { return c.field }

// Lower returns the lower bound literal, nil when open.
func (c *Range) Lower() any { return c.lower }

// Upper returns the upper bound literal, nil when open.
func (c *Range) Upper() any { return c.upper }

// IncludeLower reports whether the lower bound is inclusive.
func (c *Range) IncludeLower() bool { return c.includeLower }

// IncludeUpper reports whether the upper bound is inclusive.
func (c *Range) IncludeUpper() bool { return c.includeUpper }

// Pattern is a prefix or wildcard condition over a raw literal.
type Pattern struct {
	base
	kind  Type
	field string
	value string
}

// NewPrefix creates a prefix condition.
func NewPrefix(field, prefix string, opts ...Option) (*Pattern, error) {
	return newPattern(TypePrefix, field, prefix, opts)
}

// NewWildcard creates a wildcard condition. * matches any sequence, ? any single character.
func NewWildcard(field, pattern string, opts ...Option) (*Pattern, error) {
	return newPattern(TypeWildcard, field, pattern, opts)
}

func newPattern(kind Type, field, value string, opts []Option) (*Pattern, error) {
	if err := requireField(kind, field); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, fmt.Errorf("%s condition on %q requires a value", kind, field)
	}
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &Pattern{base: b, kind: kind, field: field, value: value}, nil
}

// Type returns TypePrefix or TypeWildcard.
func (c *Pattern) Type() Type { return c.kind }

// Field returns the column name.
func (c *Pattern) Field() string { return c.field }

// Value returns the prefix or the pattern.
func (c *Pattern) Value() string { return c.value }

// FuzzyParams tune edit-distance matching.
type FuzzyParams struct {
	MaxEdits       int
	PrefixLength   int
	MaxExpansions  int
	Transpositions bool
}

// DefaultFuzzyParams returns the parameters used when a fuzzy condition sets none.
func DefaultFuzzyParams() FuzzyParams {
	return FuzzyParams{MaxEdits: 2, PrefixLength: 0, MaxExpansions: 50, Transpositions: true}
}

// Fuzzy selects documents with a token within a bounded edit distance of the value.
type Fuzzy struct {
	base
	field  string
	value  string
	params FuzzyParams
}

// NewFuzzy creates a fuzzy condition.
func NewFuzzy(field, value string, params FuzzyParams, opts ...Option) (*Fuzzy, error) {
	if err := requireField(TypeFuzzy, field); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, fmt.Errorf("fuzzy condition on %q requires a value", field)
	}
	if params.MaxEdits < 0 || params.MaxEdits > 2 {
		return nil, fmt.Errorf("max_edits must be between 0 and 2, got %d", params.MaxEdits)
	}
	if params.PrefixLength < 0 {
		return nil, fmt.Errorf("prefix_length must not be negative")
	}
	if params.MaxExpansions <= 0 {
		return nil, fmt.Errorf("max_expansions must be positive")
	}
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &Fuzzy{base: b, field: field, value: value, params: params}, nil
}

// Type returns TypeFuzzy.
func (c *Fuzzy) Type() Type { return TypeFuzzy }

// Field returns the column name.
func (c *Fuzzy) Field() string { return c.field }

// Value returns the literal.
func (c *Fuzzy) Value() string { return c.value }

// Params returns the edit-distance parameters.
func (c *Fuzzy) Params() FuzzyParams { return c.params }

// Phrase selects documents containing the analyzed tokens of value in order.
type Phrase struct {
	base
	field string
	value string
	slop  int
}

// NewPhrase creates a phrase condition.
func NewPhrase(field, value string, slop int, opts ...Option) (*Phrase, error) {
	if err := requireField(TypePhrase, field); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, fmt.Errorf("phrase condition on %q requires a value", field)
	}
	if slop < 0 {
		return nil, fmt.Errorf("slop must not be negative")
	}
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &Phrase{base: b, field: field, value: value, slop: slop}, nil
}

// Type returns TypePhrase.
func (c *Phrase) Type() Type { return TypePhrase }

// Field returns the column name.
func (c *Phrase) Field() string { return c.field }

// Value returns the phrase text.
func (c *Phrase) Value() string { return c.value }

// Slop returns the allowed token distance.
func (c *Phrase) Slop() int { return c.slop }

// Boolean composes children with must (AND), should (OR) and not (AND NOT) semantics.
// Without must and should clauses it matches nothing.
type Boolean struct {
	base
	must   []Condition
	should []Condition
	not    []Condition
}

// NewBoolean creates a boolean condition. Clause order is preserved.
func NewBoolean(must, should, not []Condition, opts ...Option) (*Boolean, error) {
	for name, group := range map[string][]Condition{"must": must, "should": should, "not": not} {
		if len(group) > MaxClausesPerGroup {
			return nil, fmt.Errorf("too many %s clauses (max %d)", name, MaxClausesPerGroup)
		}
		for _, c := range group {
			if c == nil {
				return nil, fmt.Errorf("%s clause is nil", name)
			}
		}
	}
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &Boolean{
		base:   b,
		must:   append([]Condition(nil), must...),
		should: append([]Condition(nil), should...),
		not:    append([]Condition(nil), not...),
	}, nil
}

// Type returns TypeBoolean.
func (c *Boolean) Type() Type { return TypeBoolean }

// Must returns the required clauses.
func (c *Boolean) Must() []Condition { return c.must }

// Should returns the optional clauses.
func (c *Boolean) Should() []Condition { return c.should }

// Not returns the prohibited clauses.
func (c *Boolean) Not() []Condition { return c.not }

// Native carries a query in the index engine's own syntax.
type Native struct {
	base
	query        string
	defaultField string
}

// NewNative creates a native condition. defaultField, when set, must be a mapped column.
func NewNative(query, defaultField string, opts ...Option) (*Native, error) {
	if query == "" {
		return nil, fmt.Errorf("native condition requires a query")
	}
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &Native{base: b, query: query, defaultField: defaultField}, nil
}

// Type returns TypeNative.
func (c *Native) Type() Type { return TypeNative }

// Query returns the raw query text.
func (c *Native) Query() string { return c.query }

// DefaultField returns the column unqualified terms search.
func (c *Native) DefaultField() string { return c.defaultField }

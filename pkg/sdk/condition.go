package rowsearch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/condition"
)

// Condition is a node of a search condition tree.
// Build conditions with the constructors below and combine them with Bool.
type Condition struct {
	raw condition.Raw
	err error
}

// Boost multiplies the node's score contribution. It composes with the
// boosts of enclosing boolean conditions.
func (c Condition) Boost(b float64) Condition {
	c.raw.Boost = &b
	return c
}

func (c Condition) build() (condition.Condition, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.raw.Build()
}

// MarshalJSON renders the condition in the HTTP API's wire form.
func (c Condition) MarshalJSON() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return json.Marshal(c.raw)
}

// ParseCondition decodes a condition from its JSON wire form.
func ParseCondition(data []byte) (Condition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var raw condition.Raw
	if err := dec.Decode(&raw); err != nil {
		return Condition{}, fmt.Errorf("%w: %w", domain.ErrInvalidCondition, err)
	}
	if _, err := raw.Build(); err != nil {
		return Condition{}, err
	}
	return Condition{raw: raw}, nil
}

// Match selects rows whose field equals value. Text fields match analyzed terms.
func Match(field string, value any) Condition {
	return Condition{raw: condition.Raw{Type: string(condition.TypeMatch), Field: field, Value: value}}
}

// Range selects rows whose field lies between lower and upper.
// A nil bound is open on that side.
func Range(field string, lower, upper any, includeLower, includeUpper bool) Condition {
	return Condition{raw: condition.Raw{
		Type:         string(condition.TypeRange),
		Field:        field,
		Lower:        lower,
		Upper:        upper,
		IncludeLower: &includeLower,
		IncludeUpper: &includeUpper,
	}}
}

// Prefix selects rows whose field starts with value.
func Prefix(field, value string) Condition {
	return Condition{raw: condition.Raw{Type: string(condition.TypePrefix), Field: field, Value: value}}
}

// Wildcard selects rows whose field matches a pattern with * and ?.
func Wildcard(field, pattern string) Condition {
	return Condition{raw: condition.Raw{Type: string(condition.TypeWildcard), Field: field, Value: pattern}}
}

// Fuzzy selects rows whose field is within maxEdits edits of value.
func Fuzzy(field, value string, maxEdits int) Condition {
	return Condition{raw: condition.Raw{
		Type:     string(condition.TypeFuzzy),
		Field:    field,
		Value:    value,
		MaxEdits: &maxEdits,
	}}
}

// Phrase selects rows whose text field contains the given words in order.
func Phrase(field string, words []string, slop int) Condition {
	return Condition{raw: condition.Raw{
		Type:   string(condition.TypePhrase),
		Field:  field,
		Values: append([]string(nil), words...),
		Slop:   slop,
	}}
}

// Native passes a query string to the engine's own query parser.
func Native(query, defaultField string) Condition {
	return Condition{raw: condition.Raw{
		Type:         string(condition.TypeNative),
		Query:        query,
		DefaultField: defaultField,
	}}
}

// Bool combines conditions. Every must clause has to match, at least one should
// clause has to match when there are no must clauses, and no not clause may match.
func Bool(must, should, not []Condition) Condition {
	c := Condition{raw: condition.Raw{Type: string(condition.TypeBoolean)}}
	var err error
	if c.raw.Must, err = raws(must); err != nil {
		return Condition{err: err}
	}
	if c.raw.Should, err = raws(should); err != nil {
		return Condition{err: err}
	}
	if c.raw.Not, err = raws(not); err != nil {
		return Condition{err: err}
	}
	return c
}

// Must is shorthand for a boolean condition with only must clauses.
func Must(cs ...Condition) Condition { return Bool(cs, nil, nil) }

// Should is shorthand for a boolean condition with only should clauses.
func Should(cs ...Condition) Condition { return Bool(nil, cs, nil) }

// Not is shorthand for a boolean condition with only not clauses.
func Not(cs ...Condition) Condition { return Bool(nil, nil, cs) }

func raws(cs []Condition) ([]condition.Raw, error) {
	out := make([]condition.Raw, 0, len(cs))
	for _, c := range cs {
		if c.err != nil {
			return nil, c.err
		}
		out = append(out, c.raw)
	}
	return out, nil
}

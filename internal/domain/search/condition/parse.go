package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/rowsearch/internal/domain"
)

// MaxDepth bounds the nesting of boolean conditions accepted by Parse.
const MaxDepth = 64

// Raw is the wire form of a condition tree.
type Raw struct {
	Type  string   `json:"type"`
	Boost *float64 `json:"boost,omitempty"`
	Field string   `json:"field,omitempty"`
	Value any      `json:"value,omitempty"`

	// range
	Lower           any   `json:"lower,omitempty"`
	Upper           any   `json:"upper,omitempty"`
	IncludeLower    *bool `json:"include_lower,omitempty"`
	IncludeUpper    *bool `json:"include_upper,omitempty"`
	IncludeLowerAlt *bool `json:"includeLower,omitempty"`
	IncludeUpperAlt *bool `json:"includeUpper,omitempty"`

	// boolean
	Must   []Raw `json:"must,omitempty"`
	Should []Raw `json:"should,omitempty"`
	Not    []Raw `json:"not,omitempty"`

	// fuzzy
	MaxEdits       *int  `json:"max_edits,omitempty"`
	PrefixLength   *int  `json:"prefix_length,omitempty"`
	MaxExpansions  *int  `json:"max_expansions,omitempty"`
	Transpositions *bool `json:"transpositions,omitempty"`

	// phrase
	Values []string `json:"values,omitempty"`
	Slop   int      `json:"slop,omitempty"`

	// native
	Query        string `json:"query,omitempty"`
	DefaultField string `json:"default_field,omitempty"`
}

// Parse decodes a JSON condition tree. Numbers are kept as json.Number so that
// integer literals keep their precision until a mapping converts them.
func Parse(data []byte) (Condition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var r Raw
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCondition, err)
	}
	return r.Build()
}

// Build validates the wire form and constructs the condition tree.
func (r *Raw) Build() (Condition, error) {
	c, err := r.build(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCondition, err)
	}
	return c, nil
}

func (r *Raw) build(depth int) (Condition, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("condition nesting exceeds %d levels", MaxDepth)
	}

	var opts []Option
	if r.Boost != nil {
		opts = append(opts, WithBoost(*r.Boost))
	}

	switch Type(strings.ToLower(r.Type)) {
	case TypeMatch:
		return NewMatch(r.Field, r.Value, opts...)
	case TypeRange:
		return NewRange(r.Field, r.Lower, r.Upper,
			firstBool(r.IncludeLower, r.IncludeLowerAlt),
			firstBool(r.IncludeUpper, r.IncludeUpperAlt),
			opts...)
	case TypePrefix:
		s, err := stringValue(r)
		if err != nil {
			return nil, err
		}
		return NewPrefix(r.Field, s, opts...)
	case TypeWildcard:
		s, err := stringValue(r)
		if err != nil {
			return nil, err
		}
		return NewWildcard(r.Field, s, opts...)
	case TypeFuzzy:
		s, err := stringValue(r)
		if err != nil {
			return nil, err
		}
		params := DefaultFuzzyParams()
		if r.MaxEdits != nil {
			params.MaxEdits = *r.MaxEdits
		}
		if r.PrefixLength != nil {
			params.PrefixLength = *r.PrefixLength
		}
		if r.MaxExpansions != nil {
			params.MaxExpansions = *r.MaxExpansions
		}
		if r.Transpositions != nil {
			params.Transpositions = *r.Transpositions
		}
		return NewFuzzy(r.Field, s, params, opts...)
	case TypePhrase:
		text := strings.Join(r.Values, " ")
		if text == "" {
			s, err := stringValue(r)
			if err != nil {
				return nil, err
			}
			text = s
		}
		return NewPhrase(r.Field, text, r.Slop, opts...)
	case TypeBoolean:
		must, err := buildAll(r.Must, depth)
		if err != nil {
			return nil, err
		}
		should, err := buildAll(r.Should, depth)
		if err != nil {
			return nil, err
		}
		not, err := buildAll(r.Not, depth)
		if err != nil {
			return nil, err
		}
		return NewBoolean(must, should, not, opts...)
	case TypeNative, "lucene":
		query := r.Query
		if query == "" {
			if s, ok := r.Value.(string); ok {
				query = s
			}
		}
		return NewNative(query, r.DefaultField, opts...)
	case "":
		return nil, fmt.Errorf("condition type is required")
	default:
		return nil, fmt.Errorf("unknown condition type %q", r.Type)
	}
}

func buildAll(raws []Raw, depth int) ([]Condition, error) {
	out := make([]Condition, 0, len(raws))
	for i := range raws {
		c, err := raws[i].build(depth + 1)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func stringValue(r *Raw) (string, error) {
	switch v := r.Value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case nil:
		return "", fmt.Errorf("%s condition on %q requires a value", r.Type, r.Field)
	}
	return "", fmt.Errorf("%s condition on %q requires a scalar value", r.Type, r.Field)
}

func firstBool(ps ...*bool) bool {
	for _, p := range ps {
		if p != nil {
			return *p
		}
	}
	return false
}

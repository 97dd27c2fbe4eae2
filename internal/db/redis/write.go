package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/rowsearch/internal/db"
)

// Upsert stores the document addressed by an ID term with JSON.SET, replacing it whole.
func (s *Store) Upsert(ctx context.Context, term db.Term, doc *db.Document) error {
	def, err := s.definition(db.OpUpsert)
	if err != nil {
		return err
	}
	if term.Field != db.IDField {
		return &db.Error{Op: db.OpUpsert, Err: fmt.Errorf("%w: upsert by %s", db.ErrUnsupportedQuery, term.Field)}
	}

	data, err := json.Marshal(toJSONDoc(def, doc))
	if err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}

	key := keyPrefix(def) + term.Text
	cmd := s.b().Arbitrary("JSON.SET").Keys(key).Args("$", string(data)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}
	return nil
}

// DeleteTerm removes every document carrying the term.
func (s *Store) DeleteTerm(ctx context.Context, term db.Term) error {
	def, err := s.definition(db.OpDeleteTerm)
	if err != nil {
		return err
	}
	if term.Field == db.IDField {
		cmd := s.b().Del().Key(keyPrefix(def) + term.Text).Build()
		if err := s.do(ctx, cmd).Error(); err != nil {
			return &db.Error{Op: db.OpDeleteTerm, Err: err}
		}
		return nil
	}

	q, err := render(def, &db.TermQuery{Field: term.Field, Text: term.Text})
	if err != nil {
		return &db.Error{Op: db.OpDeleteTerm, Err: err}
	}
	if _, err := s.deleteMatching(ctx, def, q, nil); err != nil {
		return &db.Error{Op: db.OpDeleteTerm, Err: err}
	}
	return nil
}

// DeleteQuery removes every document matching q. Term ranges in the top-level
// conjunction have no FT syntax; they are checked against returned field values.
func (s *Store) DeleteQuery(ctx context.Context, q db.Query) (int, error) {
	def, err := s.definition(db.OpDeleteQuery)
	if err != nil {
		return 0, err
	}

	rest, ranges := splitTermRanges(q)
	str, err := render(def, rest)
	if err != nil {
		return 0, &db.Error{Op: db.OpDeleteQuery, Err: err}
	}
	n, err := s.deleteMatching(ctx, def, str, ranges)
	if err != nil {
		return n, &db.Error{Op: db.OpDeleteQuery, Err: err}
	}
	return n, nil
}

// deleteMatching pages through matches and deletes them. Without residual ranges
// every page is deleted and the search restarts at offset 0; with them, keys that
// fail a range stay and the offset advances past them.
func (s *Store) deleteMatching(ctx context.Context, def *db.IndexDefinition, q string, ranges []*db.TermRangeQuery) (int, error) {
	if q == matchNone {
		return 0, nil
	}

	returned := make([]string, 0, len(ranges))
	for _, r := range ranges {
		returned = append(returned, r.Field)
	}

	deleted, offset := 0, 0
	for {
		args := []string{def.Name, q}
		if len(returned) == 0 {
			args = append(args, "NOCONTENT")
		} else {
			args = append(args, "RETURN", strconv.Itoa(len(returned)))
			args = append(args, returned...)
		}
		args = append(args, "LIMIT", strconv.Itoa(offset), strconv.Itoa(s.batchSize), "DIALECT", "2")

		cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
		raw, err := s.do(ctx, cmd).ToArray()
		if err != nil {
			return deleted, err
		}
		page, err := parseKeys(raw, len(returned) > 0)
		if err != nil {
			return deleted, err
		}
		if len(page) == 0 {
			return deleted, nil
		}

		var keys []string
		for _, e := range page {
			if inRanges(e.fields, ranges) {
				keys = append(keys, e.key)
			}
		}
		offset += len(page) - len(keys)

		if len(keys) > 0 {
			if err := s.del(ctx, keys); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		if len(page) < s.batchSize {
			return deleted, nil
		}
	}
}

func (s *Store) del(ctx context.Context, keys []string) error {
	cmds := make([]rueidis.Completed, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, s.b().Del().Key(k).Build())
	}
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("key %s: %w", keys[i], err)
		}
	}
	return nil
}

// splitTermRanges lifts term ranges out of the top-level conjunction, descending
// into nested conjunctions whose clauses are all required.
func splitTermRanges(q db.Query) (db.Query, []*db.TermRangeQuery) {
	switch n := q.(type) {
	case *db.TermRangeQuery:
		return &db.MatchAllQuery{}, []*db.TermRangeQuery{n}
	case *db.BooleanQuery:
		var ranges []*db.TermRangeQuery
		must := make([]db.Query, 0, len(n.Must))
		for _, c := range n.Must {
			rest, lifted := splitTermRanges(c)
			ranges = append(ranges, lifted...)
			if len(lifted) > 0 && matchesAll(rest) {
				continue
			}
			must = append(must, rest)
		}
		if len(ranges) == 0 {
			return q, nil
		}
		if len(must) == 0 && len(n.Should) == 0 {
			must = append(must, &db.MatchAllQuery{})
		}
		return &db.BooleanQuery{Must: must, Should: n.Should, MustNot: n.MustNot, Boost: n.Boost}, ranges
	}
	return q, nil
}

func matchesAll(q db.Query) bool {
	switch n := q.(type) {
	case *db.MatchAllQuery:
		return true
	case *db.BooleanQuery:
		return len(n.Should) == 0 && len(n.MustNot) == 0 && len(n.Must) > 0 &&
			!slices.ContainsFunc(n.Must, func(c db.Query) bool { return !matchesAll(c) })
	}
	return false
}

func inRanges(fields map[string]string, ranges []*db.TermRangeQuery) bool {
	for _, r := range ranges {
		v, ok := fields[r.Field]
		if !ok || !slices.ContainsFunc(fieldValues(v), func(t string) bool { return termInRange(t, r) }) {
			return false
		}
	}
	return true
}

// fieldValues splits a returned multi-valued field, which arrives as a JSON array.
func fieldValues(v string) []string {
	if strings.HasPrefix(v, "[") {
		var terms []string
		if err := json.Unmarshal([]byte(v), &terms); err == nil {
			return terms
		}
	}
	return []string{v}
}

func termInRange(v string, r *db.TermRangeQuery) bool {
	if r.Min != nil {
		if v < *r.Min || (v == *r.Min && !r.MinInclusive) {
			return false
		}
	}
	if r.Max != nil {
		if v > *r.Max || (v == *r.Max && !r.MaxInclusive) {
			return false
		}
	}
	return true
}

// toJSONDoc lays a document out to match the index's JSON paths.
func toJSONDoc(def *db.IndexDefinition, doc *db.Document) map[string]any {
	out := make(map[string]any, len(doc.Fields))
	for _, f := range doc.Fields {
		idxField, ok := def.Field(f.Name)
		stored := ok && idxField.Stored
		switch {
		case f.Kind == db.FieldNumeric && stored:
			if len(f.Numbers) > 0 {
				out[f.Name] = f.Numbers[0]
			}
		case f.Kind == db.FieldNumeric:
			out[f.Name] = f.Numbers
		case stored:
			if len(f.Terms) > 0 {
				out[f.Name] = f.Terms[0]
			}
		default:
			out[f.Name] = f.Terms
		}
	}
	return out
}

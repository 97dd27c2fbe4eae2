package bleve

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kailas-cloud/rowsearch/internal/db"
)

type bleveQuery = query.Query

// buildSearchQuery combines the scored query with the filter. Filter leaves get a
// zero boost so they narrow the result without moving scores.
func buildSearchQuery(req *db.SearchRequest) (bleveQuery, error) {
	var main bleveQuery = bleve.NewMatchAllQuery()
	if req.Query != nil {
		q, err := translate(req.Query, 1)
		if err != nil {
			return nil, err
		}
		main = q
	}
	if req.Filter == nil {
		return main, nil
	}
	f, err := translate(req.Filter, 0)
	if err != nil {
		return nil, err
	}
	return bleve.NewConjunctionQuery(main, f), nil
}

// translate converts a native query. Bleve scores compound queries by their leaves
// only, so boosts are multiplied down the tree and set on each leaf.
func translate(q db.Query, acc float64) (bleveQuery, error) {
	boost := acc * q.Weight()

	switch n := q.(type) {
	case *db.TermQuery:
		if n.Field == db.IDField {
			bq := bleve.NewDocIDQuery([]string{n.Text})
			bq.SetBoost(boost)
			return bq, nil
		}
		bq := bleve.NewTermQuery(n.Text)
		bq.SetField(n.Field)
		bq.SetBoost(boost)
		return bq, nil

	case *db.MatchQuery:
		bq := bleve.NewMatchQuery(n.Text)
		bq.SetField(n.Field)
		bq.SetBoost(boost)
		if n.Analyzer != "" {
			a, err := analyzerName(n.Analyzer)
			if err != nil {
				return nil, err
			}
			bq.Analyzer = a
		}
		return bq, nil

	case *db.PhraseQuery:
		a, err := analyzerName(n.Analyzer)
		if err != nil {
			return nil, err
		}
		if n.Slop > 0 {
			// No sloppy phrases in Bleve: every token must be present, in any order.
			bq := bleve.NewMatchQuery(n.Text)
			bq.SetField(n.Field)
			bq.SetOperator(query.MatchQueryOperatorAnd)
			bq.Analyzer = a
			bq.SetBoost(boost)
			return bq, nil
		}
		bq := bleve.NewMatchPhraseQuery(n.Text)
		bq.SetField(n.Field)
		bq.Analyzer = a
		bq.SetBoost(boost)
		return bq, nil

	case *db.NumericRangeQuery:
		minIncl, maxIncl := n.MinInclusive, n.MaxInclusive
		bq := bleve.NewNumericRangeInclusiveQuery(n.Min, n.Max, &minIncl, &maxIncl)
		bq.SetField(n.Field)
		bq.SetBoost(boost)
		return bq, nil

	case *db.TermRangeQuery:
		if n.Min == nil && n.Max == nil {
			bq := bleve.NewWildcardQuery("*")
			bq.SetField(n.Field)
			bq.SetBoost(boost)
			return bq, nil
		}
		var lo, hi string
		if n.Min != nil {
			lo = *n.Min
		}
		if n.Max != nil {
			hi = *n.Max
		}
		minIncl, maxIncl := n.MinInclusive, n.MaxInclusive
		bq := bleve.NewTermRangeInclusiveQuery(lo, hi, &minIncl, &maxIncl)
		bq.SetField(n.Field)
		bq.SetBoost(boost)
		return bq, nil

	case *db.PrefixQuery:
		bq := bleve.NewPrefixQuery(n.Prefix)
		bq.SetField(n.Field)
		bq.SetBoost(boost)
		return bq, nil

	case *db.WildcardQuery:
		bq := bleve.NewWildcardQuery(n.Pattern)
		bq.SetField(n.Field)
		bq.SetBoost(boost)
		return bq, nil

	case *db.FuzzyQuery:
		bq := bleve.NewFuzzyQuery(n.Text)
		bq.SetField(n.Field)
		bq.SetFuzziness(n.MaxEdits)
		bq.SetPrefix(n.PrefixLength)
		bq.SetBoost(boost)
		return bq, nil

	case *db.RawQuery:
		parsed, err := bleve.NewQueryStringQuery(n.Syntax).Parse()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", db.ErrUnsupportedQuery, err)
		}
		if n.DefaultField != "" {
			setDefaultField(parsed, n.DefaultField)
		}
		scaleBoosts(parsed, boost)
		return parsed, nil

	case *db.BooleanQuery:
		if n.MatchesNothing() {
			return bleve.NewMatchNoneQuery(), nil
		}
		bq := bleve.NewBooleanQuery()
		for _, c := range n.Must {
			t, err := translate(c, boost)
			if err != nil {
				return nil, err
			}
			bq.AddMust(t)
		}
		for _, c := range n.Should {
			t, err := translate(c, boost)
			if err != nil {
				return nil, err
			}
			bq.AddShould(t)
		}
		for _, c := range n.MustNot {
			t, err := translate(c, 1)
			if err != nil {
				return nil, err
			}
			bq.AddMustNot(t)
		}
		return bq, nil

	case *db.MatchAllQuery:
		bq := bleve.NewMatchAllQuery()
		bq.SetBoost(boost)
		return bq, nil

	case *db.MatchNoneQuery:
		return bleve.NewMatchNoneQuery(), nil
	}
	return nil, fmt.Errorf("%w: %T", db.ErrUnsupportedQuery, q)
}

// setDefaultField points unqualified clauses of a parsed query string at field.
func setDefaultField(q bleveQuery, field string) {
	walk(q, func(leaf bleveQuery) {
		if fq, ok := leaf.(query.FieldableQuery); ok && fq.Field() == "" {
			fq.SetField(field)
		}
	})
}

// scaleBoosts multiplies the boost of every leaf of a parsed query string.
func scaleBoosts(q bleveQuery, factor float64) {
	if factor == 1 {
		return
	}
	walk(q, func(leaf bleveQuery) {
		if bq, ok := leaf.(query.BoostableQuery); ok {
			bq.SetBoost(bq.Boost() * factor)
		}
	})
}

func walk(q bleveQuery, fn func(bleveQuery)) {
	switch n := q.(type) {
	case *query.BooleanQuery:
		for _, c := range []bleveQuery{n.Must, n.Should, n.MustNot} {
			if c != nil {
				walk(c, fn)
			}
		}
	case *query.ConjunctionQuery:
		for _, c := range n.Conjuncts {
			walk(c, fn)
		}
	case *query.DisjunctionQuery:
		for _, c := range n.Disjuncts {
			walk(c, fn)
		}
	default:
		fn(q)
	}
}

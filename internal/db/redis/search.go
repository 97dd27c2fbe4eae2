package redis

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/rowsearch/internal/db"
)

// matchNone selects nothing: partition keys are hex and never equal "none".
const matchNone = "@_partition_key:{none}"

// Search runs a ranked FT.SEARCH. Only the first sort field is honored.
// Term ranges in the top-level conjunction of the query or filter have no FT
// syntax; they are checked against returned field values, paging until Limit
// hits pass.
func (s *Store) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error) {
	def, err := s.definition(db.OpSearch)
	if err != nil {
		return nil, err
	}

	query, ranges := splitTermRanges(req.Query)
	filter, filterRanges := splitTermRanges(req.Filter)
	ranges = append(ranges, filterRanges...)

	queryStr := "*"
	if query != nil {
		if queryStr, err = render(def, query); err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
	}
	if filter != nil {
		filterStr, err := render(def, filter)
		if err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		queryStr = combine(queryStr, filterStr)
	}
	if queryStr == matchNone {
		return &db.SearchResult{}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	var res *db.SearchResult
	if len(ranges) == 0 {
		res, err = s.searchPage(ctx, def, queryStr, req.Fields, req.Sort, 0, limit)
	} else {
		res, err = s.searchResidual(ctx, def, queryStr, req, ranges, limit)
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	prefix := keyPrefix(def)
	for i := range res.Hits {
		res.Hits[i].ID = strings.TrimPrefix(res.Hits[i].ID, prefix)
	}
	return res, nil
}

func (s *Store) searchPage(
	ctx context.Context, def *db.IndexDefinition, q string, fields []string, sort []db.SortField, offset, n int,
) (*db.SearchResult, error) {
	args := []string{def.Name, q, "WITHSCORES"}
	if len(fields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(fields)))
		args = append(args, fields...)
	} else {
		args = append(args, "NOCONTENT")
	}
	if len(sort) > 0 {
		dir := "ASC"
		if sort[0].Descending {
			dir = "DESC"
		}
		args = append(args, "SORTBY", sort[0].Field, dir)
	}
	args = append(args, "LIMIT", strconv.Itoa(offset), strconv.Itoa(n), "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, err
	}
	return parseScoredResult(raw, len(fields) > 0)
}

// searchResidual pages in rank order and keeps the hits whose range fields pass.
// Total counts the kept hits.
func (s *Store) searchResidual(
	ctx context.Context, def *db.IndexDefinition, q string, req *db.SearchRequest, ranges []*db.TermRangeQuery, limit int,
) (*db.SearchResult, error) {
	fields := slices.Clone(req.Fields)
	for _, r := range ranges {
		if !slices.Contains(fields, r.Field) {
			fields = append(fields, r.Field)
		}
	}

	var hits []db.Hit
	for offset := 0; ; offset += s.batchSize {
		page, err := s.searchPage(ctx, def, q, fields, req.Sort, offset, s.batchSize)
		if err != nil {
			return nil, err
		}
		for _, h := range page.Hits {
			if !inRanges(h.Fields, ranges) {
				continue
			}
			hits = append(hits, keepFields(h, req.Fields))
			if len(hits) == limit {
				return &db.SearchResult{Total: len(hits), Hits: hits}, nil
			}
		}
		if len(page.Hits) < s.batchSize || offset+s.batchSize >= page.Total {
			return &db.SearchResult{Total: len(hits), Hits: hits}, nil
		}
	}
}

// keepFields drops the values fetched only for range checks.
func keepFields(h db.Hit, fields []string) db.Hit {
	if len(fields) == 0 {
		h.Fields = nil
		return h
	}
	for name := range h.Fields {
		if !slices.Contains(fields, name) {
			delete(h.Fields, name)
		}
	}
	return h
}

func combine(query, filter string) string {
	switch {
	case query == matchNone || filter == matchNone:
		return matchNone
	case query == "*":
		return filter
	case filter == "*":
		return query
	}
	return "(" + query + ") (" + filter + ")"
}

// --- Result parsing ---

type keyEntry struct {
	key    string
	fields map[string]string
}

// parseKeys reads [total, key1, (fields1,) key2, ...].
func parseKeys(raw []rueidis.RedisMessage, withFields bool) ([]keyEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if _, err := raw[0].AsInt64(); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	stride := 1
	if withFields {
		stride = 2
	}
	entries := make([]keyEntry, 0, (len(raw)-1)/stride)
	for i := 1; i+stride-1 < len(raw); i += stride {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		e := keyEntry{key: key}
		if withFields {
			if fields, err := raw[i+1].ToArray(); err == nil {
				e.fields = parseFieldPairs(fields)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// parseScoredResult reads [total, key1, score1, (fields1,) key2, ...].
func parseScoredResult(raw []rueidis.RedisMessage, withFields bool) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	stride := 2
	if withFields {
		stride = 3
	}
	hits := make([]db.Hit, 0, (len(raw)-1)/stride)
	for i := 1; i+stride-1 < len(raw); i += stride {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		hit := db.Hit{ID: key, Score: score}
		if withFields {
			if fields, err := raw[i+2].ToArray(); err == nil {
				hit.Fields = parseFieldPairs(fields)
			}
		}
		hits = append(hits, hit)
	}

	return &db.SearchResult{Total: int(total), Hits: hits}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query rendering ---

// render translates a native query into FT.SEARCH syntax (DIALECT 2).
func render(def *db.IndexDefinition, q db.Query) (string, error) {
	switch n := q.(type) {
	case *db.TermQuery:
		typ, err := lookup(def, n.Field)
		if err != nil {
			return "", err
		}
		var s string
		if typ == db.IndexFieldText {
			s = fmt.Sprintf("@%s:(%s)", n.Field, escapeQuery(n.Text))
		} else {
			s = buildTagFilter(n.Field, n.Text)
		}
		return weighted(s, n.Weight()), nil

	case *db.MatchQuery:
		typ, err := lookup(def, n.Field)
		if err != nil {
			return "", err
		}
		if typ != db.IndexFieldText {
			return weighted(buildTagFilter(n.Field, n.Text), n.Weight()), nil
		}
		tokens := strings.Fields(n.Text)
		if len(tokens) == 0 {
			return matchNone, nil
		}
		for i, t := range tokens {
			tokens[i] = escapeQuery(t)
		}
		return weighted(fmt.Sprintf("@%s:(%s)", n.Field, strings.Join(tokens, " | ")), n.Weight()), nil

	case *db.PhraseQuery:
		if _, err := lookup(def, n.Field); err != nil {
			return "", err
		}
		s := fmt.Sprintf(`@%s:"%s"`, n.Field, escapeQuery(n.Text))
		var attrs []string
		if w := n.Weight(); w != 1 {
			attrs = append(attrs, "$weight: "+formatFloat(w))
		}
		if n.Slop > 0 {
			attrs = append(attrs, "$slop: "+strconv.Itoa(n.Slop), "$inorder: true")
		}
		return withAttributes(s, attrs), nil

	case *db.NumericRangeQuery:
		if _, err := lookup(def, n.Field); err != nil {
			return "", err
		}
		return weighted(buildNumericFilter(n), n.Weight()), nil

	case *db.TermRangeQuery:
		return "", fmt.Errorf("%w: term range on %s", db.ErrUnsupportedQuery, n.Field)

	case *db.PrefixQuery:
		typ, err := lookup(def, n.Field)
		if err != nil {
			return "", err
		}
		return weighted(patternFilter(n.Field, typ, escapePattern(n.Prefix)+"*"), n.Weight()), nil

	case *db.WildcardQuery:
		typ, err := lookup(def, n.Field)
		if err != nil {
			return "", err
		}
		p := "w'" + strings.ReplaceAll(n.Pattern, "'", `\'`) + "'"
		return weighted(patternFilter(n.Field, typ, p), n.Weight()), nil

	case *db.FuzzyQuery:
		typ, err := lookup(def, n.Field)
		if err != nil {
			return "", err
		}
		if typ != db.IndexFieldText {
			return "", fmt.Errorf("%w: fuzzy on non-text field %s", db.ErrUnsupportedQuery, n.Field)
		}
		marks := strings.Repeat("%", n.MaxEdits)
		return weighted(fmt.Sprintf("@%s:(%s%s%s)", n.Field, marks, escapeQuery(n.Text), marks), n.Weight()), nil

	case *db.RawQuery:
		s := "(" + n.Syntax + ")"
		if n.DefaultField != "" {
			s = "@" + n.DefaultField + ":" + s
		}
		return weighted(s, n.Weight()), nil

	case *db.BooleanQuery:
		return renderBoolean(def, n)

	case *db.MatchAllQuery:
		return "*", nil

	case *db.MatchNoneQuery:
		return matchNone, nil
	}
	return "", fmt.Errorf("%w: %T", db.ErrUnsupportedQuery, q)
}

// renderBoolean keeps clause order: required parts, then the optional group, then exclusions.
func renderBoolean(def *db.IndexDefinition, q *db.BooleanQuery) (string, error) {
	if q.MatchesNothing() {
		return matchNone, nil
	}

	var parts []string
	for _, c := range q.Must {
		s, err := render(def, c)
		if err != nil {
			return "", err
		}
		if s == matchNone {
			return matchNone, nil
		}
		parts = append(parts, s)
	}

	should := make([]string, 0, len(q.Should))
	for _, c := range q.Should {
		s, err := render(def, c)
		if err != nil {
			return "", err
		}
		if s != matchNone {
			should = append(should, s)
		}
	}
	switch {
	case len(should) == 0 && len(parts) == 0:
		return matchNone, nil
	case len(should) > 0 && len(parts) == 0:
		parts = append(parts, "("+strings.Join(should, " | ")+")")
	case len(should) > 0:
		parts = append(parts, "~("+strings.Join(should, " | ")+")")
	}

	for _, c := range q.MustNot {
		s, err := render(def, c)
		if err != nil {
			return "", err
		}
		if s != matchNone {
			parts = append(parts, "-("+s+")")
		}
	}

	out := strings.Join(parts, " ")
	if len(parts) > 1 {
		out = "(" + out + ")"
	}
	return weighted(out, q.Weight()), nil
}

func lookup(def *db.IndexDefinition, field string) (db.IndexFieldType, error) {
	typ, ok := fieldType(def, field)
	if !ok {
		return 0, fmt.Errorf("%w: field %s is not indexed", db.ErrUnsupportedQuery, field)
	}
	return typ, nil
}

func weighted(s string, w float64) string {
	if w == 1 {
		return s
	}
	return withAttributes(s, []string{"$weight: " + formatFloat(w)})
}

func withAttributes(s string, attrs []string) string {
	if len(attrs) == 0 {
		return s
	}
	return "(" + s + ") => { " + strings.Join(attrs, "; ") + "; }"
}

func patternFilter(field string, typ db.IndexFieldType, pattern string) string {
	if typ == db.IndexFieldText {
		return fmt.Sprintf("@%s:(%s)", field, pattern)
	}
	return fmt.Sprintf("@%s:{%s}", field, pattern)
}

func buildTagFilter(key, value string) string {
	escaped := tagEscaper.Replace(value)
	return fmt.Sprintf("@%s:{%s}", key, escaped)
}

func buildNumericFilter(r *db.NumericRangeQuery) string {
	minBound := "-inf"
	maxBound := "+inf"

	if r.Min != nil {
		minBound = formatFloat(*r.Min)
		if !r.MinInclusive {
			minBound = "(" + minBound
		}
	}
	if r.Max != nil {
		maxBound = formatFloat(*r.Max)
		if !r.MaxInclusive {
			maxBound = "(" + maxBound
		}
	}

	return fmt.Sprintf("@%s:[%s %s]", r.Field, minBound, maxBound)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

// escapePattern escapes a literal that is followed by a pattern operator.
func escapePattern(s string) string {
	return tagEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)

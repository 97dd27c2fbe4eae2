package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/rowsearch/internal/db"
)

// CreateIndex creates an FT index over JSON documents from the given definition.
// When the index already exists the store still adopts the definition and
// returns db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	err = s.do(ctx, cmd).Error()
	if err != nil && !isRedisErr(err, "index already exists") {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	s.mu.Lock()
	s.def = def
	s.mu.Unlock()

	if err != nil {
		return db.ErrIndexExists
	}
	return nil
}

// DocCount returns the number of indexed documents via FT.SEARCH with LIMIT 0 0.
func (s *Store) DocCount(ctx context.Context) (uint64, error) {
	def, err := s.definition(db.OpCount)
	if err != nil {
		return 0, err
	}
	cmd := s.b().Arbitrary("FT.SEARCH").Args(def.Name, "*", "LIMIT", "0", "0").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return 0, &db.Error{Op: db.OpCount, Err: db.ErrIndexNotFound}
		}
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: fmt.Errorf("parse count: %w", err)}
	}
	return uint64(total), nil
}

func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	args := []string{idx.Name, "ON", "JSON"}
	args = append(args, "PREFIX", "1", keyPrefix(idx))
	if idx.DefaultAnalyzer == db.AnalyzerEnglish {
		args = append(args, "LANGUAGE", "english")
	}

	args = append(args, "SCHEMA")

	for i := range idx.Fields {
		if idx.Fields[i].Name == db.IDField {
			// The document key carries the ID.
			continue
		}
		fieldArgs, err := buildFieldArgs(&idx.Fields[i], idx.DefaultAnalyzer)
		if err != nil {
			return nil, err
		}
		args = append(args, fieldArgs...)
	}

	return args, nil
}

// jsonPath addresses a field in the stored document. Stored fields are scalars,
// every other field is an array so collection columns index each element.
func jsonPath(f *db.IndexField) string {
	if f.Stored {
		return "$." + f.Name
	}
	return "$." + f.Name + "[*]"
}

func buildFieldArgs(f *db.IndexField, defaultAnalyzer string) ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("field name is required")
	}

	args := []string{jsonPath(f), "AS", f.Name}

	switch f.Type {
	case db.IndexFieldNumeric:
		args = append(args, "NUMERIC")

	case db.IndexFieldText:
		analyzer := f.Analyzer
		if analyzer == "" {
			analyzer = defaultAnalyzer
		}
		switch analyzer {
		case db.AnalyzerKeyword:
			args = append(args, "TAG", "CASESENSITIVE")
		case db.AnalyzerEnglish:
			args = append(args, "TEXT")
		default:
			args = append(args, "TEXT", "NOSTEM")
		}

	case db.IndexFieldTag:
		args = append(args, "TAG")
		if f.TagCaseSensitive {
			args = append(args, "CASESENSITIVE")
		}

	default:
		return nil, errors.New("unknown field type " + strconv.Itoa(int(f.Type)))
	}

	if f.Sortable && f.Stored {
		args = append(args, "SORTABLE")
	}

	return args, nil
}

// fieldType reports how the engine indexed a field, folding keyword-analyzed text into TAG.
func fieldType(def *db.IndexDefinition, name string) (db.IndexFieldType, bool) {
	f, ok := def.Field(name)
	if !ok {
		return 0, false
	}
	if f.Type == db.IndexFieldText {
		analyzer := f.Analyzer
		if analyzer == "" {
			analyzer = def.DefaultAnalyzer
		}
		if analyzer == db.AnalyzerKeyword {
			return db.IndexFieldTag, true
		}
	}
	return f.Type, true
}

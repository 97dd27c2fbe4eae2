package bleve

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/kailas-cloud/rowsearch/internal/db"
)

// analyzerName maps engine-neutral analyzer names onto registered Bleve analyzers.
func analyzerName(name string) (string, error) {
	switch name {
	case "", db.AnalyzerStandard:
		return standard.Name, nil
	case db.AnalyzerSimple:
		return simple.Name, nil
	case db.AnalyzerEnglish:
		return en.AnalyzerName, nil
	case db.AnalyzerKeyword:
		return keyword.Name, nil
	}
	return "", fmt.Errorf("unknown analyzer %q", name)
}

// buildMapping creates a static mapping: fields outside the definition are dropped.
func buildMapping(def *db.IndexDefinition) (*mapping.IndexMappingImpl, error) {
	defaultAnalyzer, err := analyzerName(def.DefaultAnalyzer)
	if err != nil {
		return nil, err
	}

	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = defaultAnalyzer
	im.StoreDynamic = false
	im.IndexDynamic = false
	im.DocValuesDynamic = false

	doc := bleve.NewDocumentStaticMapping()
	for _, f := range def.Fields {
		if f.Name == db.IDField {
			// Document IDs are native to Bleve.
			continue
		}
		fm, err := fieldMapping(f, def.DefaultAnalyzer)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		doc.AddFieldMappingsAt(f.Name, fm)
	}
	im.DefaultMapping = doc

	if err := im.Validate(); err != nil {
		return nil, err
	}
	return im, nil
}

func fieldMapping(f db.IndexField, defaultAnalyzer string) (*mapping.FieldMapping, error) {
	var fm *mapping.FieldMapping
	switch f.Type {
	case db.IndexFieldNumeric:
		fm = bleve.NewNumericFieldMapping()
	case db.IndexFieldTag:
		fm = bleve.NewKeywordFieldMapping()
	case db.IndexFieldText:
		name := f.Analyzer
		if name == "" {
			name = defaultAnalyzer
		}
		a, err := analyzerName(name)
		if err != nil {
			return nil, err
		}
		fm = bleve.NewTextFieldMapping()
		fm.Analyzer = a
		fm.IncludeTermVectors = true
	default:
		return nil, fmt.Errorf("unsupported field type %d", f.Type)
	}
	fm.Store = f.Stored
	fm.DocValues = f.Sortable || f.Type == db.IndexFieldNumeric
	fm.IncludeInAll = f.Type == db.IndexFieldText
	return fm, nil
}

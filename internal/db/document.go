package db

// FieldKind selects how a document field is indexed.
type FieldKind int

const (
	// FieldKeyword indexes each term as a single untokenized token.
	FieldKeyword FieldKind = iota
	// FieldText runs each term through the field's analyzer.
	FieldText
	// FieldNumeric indexes numbers for range queries.
	FieldNumeric
)

// Field is one named, possibly multi-valued document field.
type Field struct {
	Name     string
	Kind     FieldKind
	Analyzer string // FieldText only
	Stored   bool
	Terms    []string
	Numbers  []float64
}

// Document is the unit written to the index. It is replaced as a whole on upsert.
type Document struct {
	Fields []Field
}

// Field returns the named field.
func (d *Document) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Package cql models the storage-side column types of a wide-row table.
package cql

import (
	"fmt"
	"strings"
)

// Kind enumerates the storage types a column can be declared with.
type Kind int

const (
	// Ascii is a US-ASCII string.
	Ascii Kind = iota + 1
	// Text is a UTF-8 string.
	Text
	// Varchar is an alias of Text.
	Varchar
	// Int is a 32-bit signed integer.
	Int
	// Bigint is a 64-bit signed integer.
	Bigint
	// Counter is a 64-bit counter column.
	Counter
	// Varint is an arbitrary-precision integer.
	Varint
	// Float is a 32-bit IEEE-754 float.
	Float
	// Double is a 64-bit IEEE-754 float.
	Double
	// Decimal is an arbitrary-precision decimal.
	Decimal
	// Boolean is true or false.
	Boolean
	// UUID is a type 1 or type 4 UUID.
	UUID
	// TimeUUID is a type 1 UUID.
	TimeUUID
	// Timestamp is a millisecond-precision instant.
	Timestamp
	// Blob is an arbitrary byte sequence.
	Blob
	// Inet is an IPv4 or IPv6 address.
	Inet
	// List is an ordered collection.
	List
	// Set is a sorted collection of distinct values.
	Set
	// Map is a sorted key-value collection.
	Map
)

var kindNames = map[Kind]string{
	Ascii:     "ascii",
	Text:      "text",
	Varchar:   "varchar",
	Int:       "int",
	Bigint:    "bigint",
	Counter:   "counter",
	Varint:    "varint",
	Float:     "float",
	Double:    "double",
	Decimal:   "decimal",
	Boolean:   "boolean",
	UUID:      "uuid",
	TimeUUID:  "timeuuid",
	Timestamp: "timestamp",
	Blob:      "blob",
	Inet:      "inet",
	List:      "list",
	Set:       "set",
	Map:       "map",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsNumeric reports whether values of the kind are numbers.
func (k Kind) IsNumeric() bool {
	switch k {
	case Int, Bigint, Counter, Varint, Float, Double, Decimal:
		return true
	}
	return false
}

// IsText reports whether values of the kind are strings.
func (k Kind) IsText() bool {
	return k == Ascii || k == Text || k == Varchar
}

// IsCollection reports whether the kind is list, set or map.
func (k Kind) IsCollection() bool {
	return k == List || k == Set || k == Map
}

// Type is a fully resolved column type. Collections carry their element types.
type Type struct {
	Kind Kind
	Key  *Type // map key
	Elem *Type // list/set element, map value
}

// Native returns a non-collection type.
func Native(k Kind) Type { return Type{Kind: k} }

// ListOf returns list<elem>.
func ListOf(elem Type) Type { return Type{Kind: List, Elem: &elem} }

// SetOf returns set<elem>.
func SetOf(elem Type) Type { return Type{Kind: Set, Elem: &elem} }

// MapOf returns map<key, value>.
func MapOf(key, value Type) Type { return Type{Kind: Map, Key: &key, Elem: &value} }

// Value returns the type of the individual values a mapping sees:
// the element type for lists and sets, the value type for maps, the type itself otherwise.
func (t Type) Value() Type {
	if t.Kind.IsCollection() && t.Elem != nil {
		return *t.Elem
	}
	return t
}

func (t Type) String() string {
	switch t.Kind {
	case List, Set:
		return fmt.Sprintf("%s<%s>", t.Kind, t.Elem)
	case Map:
		return fmt.Sprintf("map<%s, %s>", t.Key, t.Elem)
	default:
		return t.Kind.String()
	}
}

// Parse reads a CQL type expression such as "int", "list<text>" or "map<text, frozen<set<int>>>".
func Parse(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Type{}, fmt.Errorf("empty type")
	}

	name, args, hasArgs := strings.Cut(s, "<")
	name = strings.TrimSpace(name)
	if !hasArgs {
		k, ok := kindsByName[name]
		if !ok || k.IsCollection() {
			return Type{}, fmt.Errorf("unknown type %q", s)
		}
		return Native(k), nil
	}
	if !strings.HasSuffix(args, ">") {
		return Type{}, fmt.Errorf("unbalanced type %q", s)
	}
	args = args[:len(args)-1]

	switch name {
	case "frozen":
		return Parse(args)
	case "list", "set":
		elem, err := parseElem(args)
		if err != nil {
			return Type{}, err
		}
		if name == "list" {
			return ListOf(elem), nil
		}
		return SetOf(elem), nil
	case "map":
		parts := splitTopLevel(args)
		if len(parts) != 2 {
			return Type{}, fmt.Errorf("map type %q needs key and value", s)
		}
		key, err := parseElem(parts[0])
		if err != nil {
			return Type{}, err
		}
		value, err := parseElem(parts[1])
		if err != nil {
			return Type{}, err
		}
		return MapOf(key, value), nil
	default:
		return Type{}, fmt.Errorf("unknown type %q", s)
	}
}

// MustParse is Parse for static declarations.
func MustParse(s string) Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseElem(s string) (Type, error) {
	t, err := Parse(s)
	if err != nil {
		return Type{}, err
	}
	if t.Kind.IsCollection() {
		return Type{}, fmt.Errorf("nested collection %q is not supported", s)
	}
	return t, nil
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

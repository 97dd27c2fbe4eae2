package cql

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/netip"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Coerce converts a loosely typed value (as decoded from JSON, or already native)
// into the canonical Go representation of t. nil stays nil.
//
// Canonical representations: ascii/text/varchar string, int int32, bigint/counter int64,
// varint *big.Int, float float32, double float64, decimal *big.Rat, boolean bool,
// uuid/timeuuid uuid.UUID, timestamp time.Time (UTC, millisecond precision), blob []byte,
// inet netip.Addr, list/set []any, map map[string]any.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Kind {
	case Ascii, Text, Varchar:
		s, ok := v.(string)
		if !ok {
			return nil, typeErr(t, v)
		}
		return s, nil
	case Int:
		n, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%s: %d overflows", t, n)
		}
		return int32(n), nil
	case Bigint, Counter:
		n, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return n, nil
	case Varint:
		return toBigInt(t, v)
	case Float:
		f, err := toFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return float32(f), nil
	case Double:
		f, err := toFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return f, nil
	case Decimal:
		return toRat(t, v)
	case Boolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", t, err)
			}
			return parsed, nil
		}
		return nil, typeErr(t, v)
	case UUID, TimeUUID:
		return toUUID(t, v)
	case Timestamp:
		return toTime(t, v)
	case Blob:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			decoded, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", t, err)
			}
			return decoded, nil
		}
		return nil, typeErr(t, v)
	case Inet:
		switch a := v.(type) {
		case netip.Addr:
			return a, nil
		case string:
			parsed, err := netip.ParseAddr(a)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", t, err)
			}
			return parsed, nil
		}
		return nil, typeErr(t, v)
	case List, Set:
		items, ok := v.([]any)
		if !ok {
			return nil, typeErr(t, v)
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			c, err := Coerce(*t.Elem, item)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case Map:
		entries, ok := v.(map[string]any)
		if !ok {
			return nil, typeErr(t, v)
		}
		out := make(map[string]any, len(entries))
		for k, item := range entries {
			c, err := Coerce(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown type %s", t)
}

func typeErr(t Type, v any) error {
	return fmt.Errorf("%s: unexpected value of type %T", t, v)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unexpected value of type %T", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("unexpected value of type %T", v)
}

func toBigInt(t Type, v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case string:
		b, ok := new(big.Int).SetString(n, 10)
		if !ok {
			return nil, fmt.Errorf("%s: invalid integer %q", t, n)
		}
		return b, nil
	case json.Number:
		return toBigInt(t, n.String())
	}
	i, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	return big.NewInt(i), nil
}

func toRat(t Type, v any) (*big.Rat, error) {
	switch n := v.(type) {
	case *big.Rat:
		return n, nil
	case string:
		r, ok := new(big.Rat).SetString(n)
		if !ok {
			return nil, fmt.Errorf("%s: invalid decimal %q", t, n)
		}
		return r, nil
	case json.Number:
		return toRat(t, n.String())
	}
	f, err := toFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	r := new(big.Rat)
	if r.SetFloat64(f) == nil {
		return nil, fmt.Errorf("%s: %v is not finite", t, f)
	}
	return r, nil
}

func toUUID(t Type, v any) (uuid.UUID, error) {
	var id uuid.UUID
	switch u := v.(type) {
	case uuid.UUID:
		id = u
	case string:
		parsed, err := uuid.Parse(u)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%s: %w", t, err)
		}
		id = parsed
	default:
		return uuid.Nil, typeErr(t, v)
	}
	if t.Kind == TimeUUID && id.Version() != 1 {
		return uuid.Nil, fmt.Errorf("%s: %s is not a version 1 uuid", t, id)
	}
	return id, nil
}

func toTime(t Type, v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC().Truncate(time.Millisecond), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", t, err)
		}
		return parsed.UTC().Truncate(time.Millisecond), nil
	}
	ms, err := toInt64(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", t, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

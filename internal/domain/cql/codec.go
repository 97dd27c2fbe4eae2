package cql

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/netip"
	"sort"
	"time"

	"github.com/google/uuid"
)

var errShortBuffer = errors.New("short buffer")

// Marshal encodes a canonical value (see Coerce) into its binary cell form.
// Collections are length-prefixed sequences; map entries are written in key order.
func Marshal(t Type, v any) ([]byte, error) {
	c, err := Coerce(t, v)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}

	switch t.Kind {
	case Ascii, Text, Varchar:
		return []byte(c.(string)), nil
	case Int:
		return binary.BigEndian.AppendUint32(nil, uint32(c.(int32))), nil
	case Bigint, Counter:
		return binary.BigEndian.AppendUint64(nil, uint64(c.(int64))), nil
	case Varint:
		return []byte(c.(*big.Int).String()), nil
	case Float:
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(c.(float32))), nil
	case Double:
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(c.(float64))), nil
	case Decimal:
		return []byte(c.(*big.Rat).RatString()), nil
	case Boolean:
		if c.(bool) {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case UUID, TimeUUID:
		id := c.(uuid.UUID)
		return id[:], nil
	case Timestamp:
		return binary.BigEndian.AppendUint64(nil, uint64(c.(time.Time).UnixMilli())), nil
	case Blob:
		return c.([]byte), nil
	case Inet:
		return c.(netip.Addr).AsSlice(), nil
	case List, Set:
		items := c.([]any)
		buf := binary.BigEndian.AppendUint32(nil, uint32(len(items)))
		for _, item := range items {
			b, err := Marshal(*t.Elem, item)
			if err != nil {
				return nil, err
			}
			buf = appendChunk(buf, b)
		}
		return buf, nil
	case Map:
		entries := c.(map[string]any)
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := binary.BigEndian.AppendUint32(nil, uint32(len(keys)))
		for _, k := range keys {
			b, err := Marshal(*t.Elem, entries[k])
			if err != nil {
				return nil, err
			}
			buf = appendChunk(buf, []byte(k))
			buf = appendChunk(buf, b)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("unknown type %s", t)
}

// Unmarshal decodes a binary cell produced by Marshal. An empty non-text cell decodes to nil.
func Unmarshal(t Type, b []byte) (any, error) {
	if len(b) == 0 && !t.Kind.IsText() && t.Kind != Blob {
		return nil, nil
	}

	switch t.Kind {
	case Ascii, Text, Varchar:
		return string(b), nil
	case Int:
		if len(b) != 4 {
			return nil, fmt.Errorf("%s: %w", t, errShortBuffer)
		}
		return int32(binary.BigEndian.Uint32(b)), nil
	case Bigint, Counter:
		if len(b) != 8 {
			return nil, fmt.Errorf("%s: %w", t, errShortBuffer)
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	case Varint:
		return toBigInt(t, string(b))
	case Float:
		if len(b) != 4 {
			return nil, fmt.Errorf("%s: %w", t, errShortBuffer)
		}
		return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
	case Double:
		if len(b) != 8 {
			return nil, fmt.Errorf("%s: %w", t, errShortBuffer)
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case Decimal:
		return toRat(t, string(b))
	case Boolean:
		return b[0] != 0, nil
	case UUID, TimeUUID:
		id, err := uuid.FromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return id, nil
	case Timestamp:
		if len(b) != 8 {
			return nil, fmt.Errorf("%s: %w", t, errShortBuffer)
		}
		return time.UnixMilli(int64(binary.BigEndian.Uint64(b))).UTC(), nil
	case Blob:
		return append([]byte(nil), b...), nil
	case Inet:
		addr, ok := netip.AddrFromSlice(b)
		if !ok {
			return nil, fmt.Errorf("%s: invalid address length %d", t, len(b))
		}
		return addr, nil
	case List, Set:
		n, rest, err := readCount(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		items := make([]any, 0, n)
		for range n {
			var chunk []byte
			if chunk, rest, err = readChunk(rest); err != nil {
				return nil, fmt.Errorf("%s: %w", t, err)
			}
			item, err := Unmarshal(*t.Elem, chunk)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case Map:
		n, rest, err := readCount(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		entries := make(map[string]any, n)
		for range n {
			var key, chunk []byte
			if key, rest, err = readChunk(rest); err != nil {
				return nil, fmt.Errorf("%s: %w", t, err)
			}
			if chunk, rest, err = readChunk(rest); err != nil {
				return nil, fmt.Errorf("%s: %w", t, err)
			}
			item, err := Unmarshal(*t.Elem, chunk)
			if err != nil {
				return nil, err
			}
			entries[string(key)] = item
		}
		return entries, nil
	}
	return nil, fmt.Errorf("unknown type %s", t)
}

func appendChunk(buf, chunk []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(chunk)))
	return append(buf, chunk...)
}

func readCount(b []byte) (int, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errShortBuffer
	}
	return int(binary.BigEndian.Uint32(b)), b[4:], nil
}

func readChunk(b []byte) (chunk, rest []byte, err error) {
	n, rest, err := readCount(b)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) < n {
		return nil, nil, errShortBuffer
	}
	return rest[:n], rest[n:], nil
}

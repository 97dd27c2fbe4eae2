package schema

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

func toFloat(v any) (float64, error) {
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
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, nil
	case *big.Rat:
		f, _ := n.Float64()
		return f, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unexpected value of type %T", v)
}

func toRat(v any) (*big.Rat, error) {
	switch n := v.(type) {
	case *big.Rat:
		return n, nil
	case *big.Int:
		return new(big.Rat).SetInt(n), nil
	case int:
		return new(big.Rat).SetInt64(int64(n)), nil
	case int32:
		return new(big.Rat).SetInt64(int64(n)), nil
	case int64:
		return new(big.Rat).SetInt64(n), nil
	case string, json.Number:
		s := fmt.Sprint(n)
		r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
		if !ok {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return r, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	r := new(big.Rat)
	if r.SetFloat64(f) == nil {
		return nil, fmt.Errorf("%v is not finite", f)
	}
	return r, nil
}

func asUUID(v any) (uuid.UUID, bool) {
	id, ok := v.(uuid.UUID)
	return id, ok
}

// textForm renders any stored value as the string a keyword mapping indexes.
func textForm(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return hex.EncodeToString(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case *big.Int:
		return t.String(), nil
	case *big.Rat:
		return t.RatString(), nil
	case uuid.UUID:
		return t.String(), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case netip.Addr:
		return inetForm(t), nil
	case json.Number:
		return t.String(), nil
	}
	return "", fmt.Errorf("unexpected value of type %T", v)
}

func uuidToken(v any) (string, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return t.String(), nil
	case string:
		id, err := uuid.Parse(t)
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}
	return "", fmt.Errorf("unexpected value of type %T", v)
}

func inetToken(v any) (string, error) {
	switch t := v.(type) {
	case netip.Addr:
		return inetForm(t), nil
	case string:
		addr, err := netip.ParseAddr(strings.TrimSpace(t))
		if err != nil {
			return "", err
		}
		return inetForm(addr), nil
	}
	return "", fmt.Errorf("unexpected value of type %T", v)
}

// inetForm renders IPv4 (including IPv4-mapped IPv6) in dotted form and IPv6
// as eight uncompressed groups without leading zeros, e.g. 2001:db8:2de:0:0:0:0:e.
// The uncompressed form keeps prefix queries aligned to group boundaries.
func inetForm(addr netip.Addr) string {
	addr = addr.Unmap().WithZone("")
	if addr.Is4() {
		return addr.String()
	}
	b := addr.As16()
	groups := make([]string, 8)
	for i := range groups {
		groups[i] = strconv.FormatUint(uint64(b[2*i])<<8|uint64(b[2*i+1]), 16)
	}
	return strings.Join(groups, ":")
}

func bytesToken(v any) (string, error) {
	switch t := v.(type) {
	case []byte:
		return hex.EncodeToString(t), nil
	case string:
		s := strings.TrimPrefix(strings.ToLower(t), "0x")
		if _, err := hex.DecodeString(s); err != nil {
			return "", fmt.Errorf("%q is not hex", t)
		}
		return s, nil
	}
	return "", fmt.Errorf("unexpected value of type %T", v)
}

func boolToken(v any) (string, error) {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t), nil
	case string:
		switch strings.ToLower(t) {
		case "true":
			return "true", nil
		case "false":
			return "false", nil
		}
		return "", fmt.Errorf("%q is not a boolean", t)
	}
	return "", fmt.Errorf("unexpected value of type %T", v)
}

package d1

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"time"
)

// NamedParam carries an ordered named parameter. The wire protocol is
// positional only, so named parameters are flattened to positional by their
// order in the argument list.
type NamedParam struct {
	Name  string
	Value any
}

// prepareParams converts caller arguments into wire-ready positional values.
// Booleans become 0/1 integers and time values are encoded as RFC3339Nano
// text; the backend has neither a boolean nor a datetime storage class.
func prepareParams(args []any) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]any, 0, len(args))
	for i, arg := range args {
		if named, ok := arg.(NamedParam); ok {
			arg = named.Value
		}
		v, err := convertParam(arg)
		if err != nil {
			return nil, programmingError("parameter %d: %v", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func convertParam(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > uint64(math.MaxInt64) {
			return int64(math.MaxInt64), nil
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return x, nil
	case []byte:
		return x, nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case map[string]any:
		return nil, fmt.Errorf("map parameters are not supported; use ordered NamedParam values")
	default:
		return fmt.Sprint(v), nil
	}
}

// DecodeBool interprets a stored value as a boolean. The backend stores
// booleans as 0/1 integers.
func DecodeBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	default:
		return false, newError(ErrData, "cannot decode %T as bool", v)
	}
}

// DecodeBlob interprets a stored value as raw bytes. BLOB columns travel over
// the JSON wire as base64 text.
func DecodeBlob(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(x)
		if err != nil {
			return nil, wrapAs(ErrData, err, "cannot decode blob")
		}
		return b, nil
	case nil:
		return nil, nil
	default:
		return nil, newError(ErrData, "cannot decode %T as blob", v)
	}
}

// timestampFormats are the textual timestamp layouts accepted by SQLite-style
// stores, most precise first.
var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses a stored timestamp string into a time.Time.
func ParseTimestamp(s string) (time.Time, error) {
	trimmed := strings.TrimSuffix(s, "Z")
	for _, format := range timestampFormats {
		if t, err := time.ParseInLocation(format, trimmed, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, newError(ErrData, "cannot parse %q as time", s)
}

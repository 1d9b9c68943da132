package rules

import (
	"strings"
	"time"
)

// ResolvePath walks a dotted field path (e.g. "driver.age") through nested
// maps. The boolean is false when any segment is missing or a non-leaf
// segment is not a map; callers fail closed on that.
func ResolvePath(data map[string]interface{}, path string) (interface{}, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current interface{} = data
	for _, segment := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ResolveNumeric resolves a path and coerces the value to float64
func ResolveNumeric(data map[string]interface{}, path string) (float64, error) {
	v, ok := ResolvePath(data, path)
	if !ok {
		return 0, ErrFieldNotFound
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, ErrValueNotNumeric
	}
	return f, nil
}

// ResolveDate resolves a path to a calendar date. Accepts time.Time values
// and RFC 3339 or YYYY-MM-DD strings, the formats the subject-data provider
// emits.
func ResolveDate(data map[string]interface{}, path string) (time.Time, bool) {
	v, ok := ResolvePath(data, path)
	if !ok {
		return time.Time{}, false
	}
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", d); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

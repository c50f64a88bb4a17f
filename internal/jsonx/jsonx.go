// Package jsonx provides permissive accessors over loosely-typed JSON values.
// The venue's responses are inconsistently shaped: fields appear under one of
// several aliases, numeric fields are sometimes strings, and list entries are
// occasionally wrapped in a single-key object. Callers read fields through
// these helpers instead of asserting shapes directly; anything unexpected
// degrades to a zero value rather than an error.
package jsonx

import (
	"encoding/json"
	"strconv"
)

// Field returns the first value found under any of the given keys. The second
// return is false when v is not an object or none of the keys are present.
func Field(v any, keys ...string) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, k := range keys {
		if val, present := m[k]; present && val != nil {
			return val, true
		}
	}
	return nil, false
}

// Num reads a numeric field trying each key alias in order, coercing the value
// with Coerce. It returns 0 when no alias is present or coercion fails.
func Num(v any, keys ...string) float64 {
	val, ok := Field(v, keys...)
	if !ok {
		return 0
	}
	return Coerce(val)
}

// Str reads a string field trying each key alias in order. Non-string values
// and absent fields yield "".
func Str(v any, keys ...string) string {
	val, ok := Field(v, keys...)
	if !ok {
		return ""
	}
	s, _ := val.(string)
	return s
}

// Coerce converts a decoded JSON value to float64 on a best-effort basis:
// numbers pass through, numeric strings are parsed, everything else is 0.
func Coerce(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Map returns v as an object, or nil when it is anything else.
func Map(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// Slice returns v as an array, or nil when it is anything else.
func Slice(v any) []any {
	s, _ := v.([]any)
	return s
}

// Unwrap tolerates single-key wrapper objects: when v is an object containing
// key with an object value, the inner object is returned, otherwise v itself
// (as an object) is. Position entries in clearinghouse state come in both
// shapes.
func Unwrap(v any, key string) map[string]any {
	m := Map(v)
	if m == nil {
		return nil
	}
	if inner := Map(m[key]); inner != nil {
		return inner
	}
	return m
}

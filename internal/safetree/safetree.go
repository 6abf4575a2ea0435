// Package safetree converts detection results and statistics into trees
// that any structured exporter can serialize: primitive scalars, lists and
// string-keyed maps only. Large pixel buffers are elided by key; they are
// needed only by the image/PDF export path, which takes them straight from
// the frame store, never through a serialized tree.
package safetree

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// UnsupportedTypeError reports a value that cannot be represented in the
// safe tree. Failing loudly beats silently stringifying and corrupting a
// downstream consumer.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("safetree: unsupported type %s", e.Type)
}

// DefaultElideKeys are the field names dropped before recursion. They
// cover the raw frame buffers carried alongside detection results.
var DefaultElideKeys = []string{
	"original", "annotated",
	"original_frame", "annotated_frame",
	"original_frames", "annotated_frames",
}

// Serializer sanitizes values into safe trees
type Serializer struct {
	elide map[string]bool
}

// New creates a serializer eliding the given keys (case-insensitive).
// With no arguments DefaultElideKeys is used.
func New(elideKeys ...string) *Serializer {
	if len(elideKeys) == 0 {
		elideKeys = DefaultElideKeys
	}
	m := make(map[string]bool, len(elideKeys))
	for _, k := range elideKeys {
		m[strings.ToLower(k)] = true
	}
	return &Serializer{elide: m}
}

// Sanitize converts v using the default elision set
func Sanitize(v any) (any, error) {
	return New().Sanitize(v)
}

// SanitizeJSON sanitizes v and marshals the result as indented JSON
func SanitizeJSON(v any) (string, error) {
	tree, err := Sanitize(v)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Sanitize converts v into a tree of nil, bool, int64, float64, string,
// []any and map[string]any. The conversion is idempotent: sanitizing an
// already-safe tree returns an equal tree.
func (s *Serializer) Sanitize(v any) (any, error) {
	return s.walk(reflect.ValueOf(v))
}

func (s *Serializer) walk(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		return s.walk(v.Elem())

	case reflect.Bool:
		return v.Bool(), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return float64(u), nil
		}
		return int64(u), nil

	case reflect.Float32, reflect.Float64:
		return v.Float(), nil

	case reflect.String:
		return v.String(), nil

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := s.walk(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Key().Kind() != reflect.String {
			return nil, &UnsupportedTypeError{Type: v.Type()}
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			if s.elide[strings.ToLower(key)] {
				continue
			}
			item, err := s.walk(iter.Value())
			if err != nil {
				return nil, err
			}
			out[key] = item
		}
		return out, nil

	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			return t.Format(time.RFC3339), nil
		}
		out := make(map[string]any)
		st := v.Type()
		for i := 0; i < st.NumField(); i++ {
			field := st.Field(i)
			if !field.IsExported() {
				continue
			}
			key := fieldKey(field)
			if key == "-" || s.elide[strings.ToLower(key)] {
				continue
			}
			item, err := s.walk(v.Field(i))
			if err != nil {
				return nil, err
			}
			out[key] = item
		}
		return out, nil

	default:
		// chan, func, complex, unsafe pointers
		return nil, &UnsupportedTypeError{Type: v.Type()}
	}
}

// fieldKey resolves the tree key for a struct field, honoring json tags
func fieldKey(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

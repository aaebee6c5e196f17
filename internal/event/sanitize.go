package event

import (
	"math"
	"reflect"
	"sort"
	"strconv"
)

// MaxDepth bounds how deep Sanitize descends into nested maps and slices.
// Anything deeper is dropped.
const MaxDepth = 32

// Sanitize converts an arbitrary payload into a strictly JSON-safe map.
// Strings, booleans, integers, finite floats and recursively sanitized
// maps (string keys) and slices are kept; everything else is dropped.
// The result never aliases the input and Sanitize(Sanitize(p)) == Sanitize(p).
func Sanitize(payload map[string]any) map[string]any {
	out, _ := SanitizeReport(payload)
	return out
}

// SanitizeReport is Sanitize that also returns the key paths it dropped,
// sorted, e.g. ["conn", "items[2]", "meta.handler"].
func SanitizeReport(payload map[string]any) (map[string]any, []string) {
	s := sanitizer{}
	out := make(map[string]any, len(payload))
	if payload == nil {
		return out, nil
	}
	root := reflect.ValueOf(payload)
	s.enter(root)
	for k, v := range payload {
		if clean, ok := s.value(v, k, 1); ok {
			out[k] = clean
		}
	}
	sort.Strings(s.dropped)
	return out, s.dropped
}

// SanitizeValue sanitizes a single value. ok is false when the value itself
// is not representable.
func SanitizeValue(v any) (any, bool) {
	s := sanitizer{}
	return s.value(v, "", 0)
}

type sanitizer struct {
	dropped []string
	// active holds the maps and slices on the current descent path.
	active map[refKey]struct{}
}

// refKey identifies a map or slice header. Sub-slices share a data pointer
// with their parent, so the length is part of the identity.
type refKey struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

func keyOf(rv reflect.Value) refKey {
	return refKey{kind: rv.Kind(), ptr: rv.Pointer(), len: rv.Len()}
}

// enter marks a reference value as being visited. It returns false when the
// value is already on the path, i.e. the input contains a cycle.
func (s *sanitizer) enter(rv reflect.Value) bool {
	if rv.Kind() == reflect.Array || rv.Len() == 0 {
		return true
	}
	key := keyOf(rv)
	if _, ok := s.active[key]; ok {
		return false
	}
	if s.active == nil {
		s.active = make(map[refKey]struct{})
	}
	s.active[key] = struct{}{}
	return true
}

func (s *sanitizer) leave(rv reflect.Value) {
	if rv.Kind() == reflect.Array || rv.Len() == 0 {
		return
	}
	delete(s.active, keyOf(rv))
}

func (s *sanitizer) drop(path string) {
	if path != "" {
		s.dropped = append(s.dropped, path)
	}
}

func (s *sanitizer) value(v any, path string, depth int) (any, bool) {
	if depth > MaxDepth {
		s.drop(path)
		return nil, false
	}

	// Fast path for the types produced by encoding/json and by Sanitize itself.
	switch x := v.(type) {
	case nil:
		s.drop(path)
		return nil, false
	case string:
		return x, true
	case bool:
		return x, true
	case int64:
		return x, true
	case uint64:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			s.drop(path)
			return nil, false
		}
		return x, true
	case map[string]any:
		if x == nil {
			s.drop(path)
			return nil, false
		}
		return s.mapValue(reflect.ValueOf(x), path, depth)
	case []any:
		if x == nil {
			s.drop(path)
			return nil, false
		}
		return s.sliceValue(reflect.ValueOf(x), path, depth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			s.drop(path)
			return nil, false
		}
		return f, true
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			s.drop(path)
			return nil, false
		}
		return s.mapValue(rv, path, depth)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			s.drop(path)
			return nil, false
		}
		return s.sliceValue(rv, path, depth)
	default:
		// Pointers, structs, funcs, channels, interfaces holding them.
		s.drop(path)
		return nil, false
	}
}

func (s *sanitizer) mapValue(rv reflect.Value, path string, depth int) (any, bool) {
	if !s.enter(rv) {
		s.drop(path)
		return nil, false
	}
	defer s.leave(rv)

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key().String()
		if clean, ok := s.value(iter.Value().Interface(), joinKey(path, key), depth+1); ok {
			out[key] = clean
		}
	}
	return out, true
}

func (s *sanitizer) sliceValue(rv reflect.Value, path string, depth int) (any, bool) {
	if !s.enter(rv) {
		s.drop(path)
		return nil, false
	}
	defer s.leave(rv)

	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if clean, ok := s.value(rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]", depth+1); ok {
			out = append(out, clean)
		}
	}
	return out, true
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Package sanitize turns attribute values read from hierarchical files into
// values that are guaranteed to encode as JSON.
package sanitize

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"unicode/utf8"

	"github.com/batchatco/go-nwb-meta/nwbmeta/api"
	"github.com/batchatco/go-nwb-meta/nwbmeta/util"
)

// NotSerializable replaces attribute values that have no JSON form.
const NotSerializable = "Not JSON serializable"

var (
	referenceType = reflect.TypeOf(api.Reference{})
	numberType    = reflect.TypeOf(json.Number(""))
)

// Attributes returns the sanitized copy of attrs, in key order. A nil map
// gives an empty one.
func Attributes(attrs api.AttributeMap) *util.OrderedMap {
	om := &util.OrderedMap{}
	if attrs == nil {
		return om
	}
	for _, key := range attrs.Keys() {
		val, _ := attrs.Get(key)
		om.Add(key, Or(val))
	}
	return om
}

// Or returns the sanitized value, or NotSerializable.
func Or(v any) any {
	s, ok := Value(v)
	if !ok {
		return NotSerializable
	}
	return s
}

// Value converts v to a JSON-encodable value. Numeric arrays become nested
// []any, sized integers become int64 or uint64, references become their
// string form. ok is false when v, or anything inside it, has no JSON form.
func Value(v any) (s any, ok bool) {
	switch x := v.(type) {
	case nil, bool, string, json.Number, int, int64, uint64:
		return x, true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case float32:
		return finite(float64(x))
	case float64:
		return finite(x)
	case api.Reference:
		return x.String(), true
	case *api.Reference:
		if x == nil {
			return nil, true
		}
		return x.String(), true
	case []byte:
		if !utf8.Valid(x) {
			return nil, false
		}
		return string(x), true
	case *util.OrderedMap:
		if x == nil {
			return nil, true
		}
		return orderedMap(x)
	}
	return reflectValue(reflect.ValueOf(v))
}

func finite(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

func orderedMap(in *util.OrderedMap) (any, bool) {
	out := &util.OrderedMap{}
	for _, key := range in.Keys() {
		val, _ := in.Get(key)
		s, ok := Value(val)
		if !ok {
			return nil, false
		}
		out.Add(key, s)
	}
	return out, true
}

// reflectValue handles the types not named in Value's switch: slices and
// arrays of any rank and element type, string-keyed maps, and named types
// over the basic kinds.
func reflectValue(rv reflect.Value) (any, bool) {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil, true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.String:
		if rv.Type() == numberType {
			return json.Number(rv.String()), true
		}
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	case reflect.Slice:
		if rv.IsNil() {
			return []any{}, true
		}
		fallthrough
	case reflect.Array:
		vals := make([]any, rv.Len())
		for i := range vals {
			s, ok := Value(rv.Index(i).Interface())
			if !ok {
				return nil, false
			}
			vals[i] = s
		}
		return vals, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		om := &util.OrderedMap{}
		for _, k := range keys {
			s, ok := Value(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if !ok {
				return nil, false
			}
			om.Add(k, s)
		}
		return om, true
	case reflect.Ptr, reflect.Interface:
		if rv.Type().Elem() == referenceType && !rv.IsNil() {
			return rv.Elem().Interface().(api.Reference).String(), true
		}
	}
	// structs, channels, functions, pointers to anything else
	return nil, false
}

package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
)

// OrderedMap is a string-keyed map that remembers insertion order. It
// encodes as a JSON object with keys in that order and decodes the same way,
// so a decode/encode cycle reproduces its input.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

var (
	ErrorKeysDontMatchValues = errors.New("keys don't match values")
	ErrorNotObject           = errors.New("JSON value is not an object")
)

func NewOrderedMap(keys []string, values map[string]any) (*OrderedMap, error) {
	if len(keys) != len(values) {
		return nil, ErrorKeysDontMatchValues
	}
	mapKeys := []string{}
	for k := range values {
		mapKeys = append(mapKeys, k)
	}
	sort.Strings(mapKeys)

	sortedKeys := make([]string, len(keys))
	copy(sortedKeys, keys)
	sort.Strings(sortedKeys)

	for i := range sortedKeys {
		if mapKeys[i] != sortedKeys[i] {
			return nil, ErrorKeysDontMatchValues
		}
	}
	if values == nil {
		values = map[string]any{}
	}

	return &OrderedMap{
		keys:   append([]string{}, keys...),
		values: values}, nil
}

// Add sets name to val. A new name goes to the end; an existing one keeps
// its position.
func (om *OrderedMap) Add(name string, val any) {
	if om.values == nil {
		om.values = map[string]any{}
	}
	if _, has := om.values[name]; !has {
		om.keys = append(om.keys, name)
	}
	om.values[name] = val
}

func (om *OrderedMap) Get(key string) (val any, has bool) {
	val, has = om.values[key]
	return
}

func (om *OrderedMap) Keys() []string {
	return om.keys
}

func (om *OrderedMap) Len() int {
	return len(om.keys)
}

func (om OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	buf.WriteByte('{')
	for i, k := range om.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
		buf.WriteByte(':')
		if err := enc.Encode(om.values[k]); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the contents of om. Numbers decode as json.Number
// and nested objects as *OrderedMap.
func (om *OrderedMap) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return ErrorNotObject
	}
	decoded, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*om = *decoded
	return nil
}

// decodeObject reads the members of an object whose opening brace has
// already been consumed.
func decodeObject(dec *json.Decoder) (*OrderedMap, error) {
	om := &OrderedMap{values: map[string]any{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, ErrorNotObject
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		om.Add(key, val)
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, err
	}
	return om, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch tok {
	case json.Delim('{'):
		return decodeObject(dec)
	case json.Delim('['):
		vals := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			vals = append(vals, val)
		}
		if _, err := dec.Token(); err != nil { // closing bracket
			return nil, err
		}
		return vals, nil
	}
	return tok, nil
}

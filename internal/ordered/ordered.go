// Package ordered provides a minimal insertion-ordered string-keyed map,
// used wherever the core must preserve an original ordering: database
// rows (column order as reported by the engine), a table's columns in
// catalogue order, and the before/after cell maps recorded in history
// rows.
package ordered

import (
	"bytes"
	"encoding/json"
)

// Map is an insertion-ordered map from string keys to values of type V.
// It is not safe for concurrent use.
type Map[V any] struct {
	keys   []string
	values map[string]V
}

// New creates an empty ordered Map.
func New[V any]() *Map[V] {
	return &Map[V]{values: map[string]V{}}
}

// Set inserts or updates a key. Existing keys keep their original position.
func (m *Map[V]) Set(key string, value V) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *Map[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map[V]) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns the keys in insertion order. The slice must not be mutated.
func (m *Map[V]) Keys() []string {
	return m.keys
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return len(m.keys)
}

// Range calls fn for every entry in insertion order, stopping early if fn returns false.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// MarshalJSON renders the map as a JSON object, keys in insertion
// order. Before/after cell maps recorded in history rows rely on this
// to stay human-readable and stable across writes.
func (m *Map[V]) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the map, preserving the key
// order as encountered in the input.
func (m *Map[V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &json.UnmarshalTypeError{Value: "non-object", Type: nil}
	}

	m.keys = nil
	m.values = map[string]V{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var value V
		if err := dec.Decode(&value); err != nil {
			return err
		}
		m.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	// ErrMissingField indicates a required document field is absent.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidField indicates a document field has the wrong shape.
	ErrInvalidField = errors.New("invalid field")
)

// ParseJSON decodes a single JSON object. Numbers are kept as json.Number so
// that re-rendering does not alter them.
func ParseJSON(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrInvalidField)
	}
	return doc, nil
}

// AsDocument converts a nested JSON value into a Document.
func AsDocument(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return Document(m), true
	default:
		return nil, false
	}
}

// Has reports whether key is present and not null.
func (d Document) Has(key string) bool {
	v, ok := d[key]
	return ok && v != nil
}

// String returns a required string field.
func (d Document) String(key string) (string, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidField, key)
	}
	return s, nil
}

// OptString returns an optional string field, "" when absent.
func (d Document) OptString(key string) (string, error) {
	if !d.Has(key) {
		return "", nil
	}
	return d.String(key)
}

// Time returns a required timestamp field.
func (d Document) Time(key string) (time.Time, error) {
	s, err := d.String(key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidField, key, err)
	}
	return t, nil
}

// OptTime returns an optional timestamp field, nil when absent.
func (d Document) OptTime(key string) (*time.Time, error) {
	if !d.Has(key) {
		return nil, nil
	}
	t, err := d.Time(key)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Object returns a required nested object.
func (d Document) Object(key string) (Document, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	obj, ok := AsDocument(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidField, key)
	}
	return obj, nil
}

// Objects returns an optional array of objects, nil when absent.
func (d Document) Objects(key string) ([]Document, error) {
	items, err := d.array(key)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]Document, 0, len(items))
	for i, item := range items {
		obj, ok := AsDocument(item)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be an object", ErrInvalidField, key, i)
		}
		out = append(out, obj)
	}
	return out, nil
}

// Strings returns an optional array of strings, nil when absent.
func (d Document) Strings(key string) ([]string, error) {
	items, err := d.array(key)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be a string", ErrInvalidField, key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// OptInt returns an optional integer field, nil when absent.
func (d Document) OptInt(key string) (*int, error) {
	if !d.Has(key) {
		return nil, nil
	}
	n, ok := toInt(d[key])
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidField, key)
	}
	return &n, nil
}

func (d Document) array(key string) ([]any, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch items := v.(type) {
	case []any:
		return items, nil
	case []Document:
		out := make([]any, len(items))
		for i := range items {
			out[i] = items[i]
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(items))
		for i := range items {
			out[i] = items[i]
		}
		return out, nil
	case []string:
		out := make([]any, len(items))
		for i := range items {
			out[i] = items[i]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be an array", ErrInvalidField, key)
	}
}

// toInt accepts the numeric representations produced by the JSON and CBOR
// decoders and by documents built in memory.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

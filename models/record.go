package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is a single key/value pair of a record.
type Field struct {
	Key   string
	Value string
}

// Record is an ordered set of string fields. Key order is the order the
// fields were produced in, which drives CSV column order.
type Record []Field

// Keys returns the record keys in order.
func (r Record) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the value stored under key.
func (r Record) Get(key string) (string, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Value returns the value stored under key, or "" when absent.
func (r Record) Value(key string) string {
	v, _ := r.Get(key)
	return v
}

// Set stores value under key. An existing key keeps its position.
func (r Record) Set(key, value string) Record {
	for i := range r {
		if r[i].Key == key {
			r[i].Value = value
			return r
		}
	}
	return append(r, Field{Key: key, Value: value})
}

// ResultSet is the ordered output of one extraction pass.
type ResultSet []Record

// FromTemplates converts typed template records into a result set.
func FromTemplates(templates []TemplateRecord) ResultSet {
	set := make(ResultSet, 0, len(templates))
	for _, t := range templates {
		set = append(set, t.Record())
	}
	return set
}

// DecodeRecords decodes the JSON array returned across the injection
// boundary. Object key order is preserved. A null or empty payload decodes
// to an empty set.
func DecodeRecords(raw []byte) (ResultSet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("decode records: expected array, got %v", tok)
	}

	set := ResultSet{}
	for dec.More() {
		rec, err := decodeRecord(dec)
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(set), err)
		}
		set = append(set, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return set, nil
}

func decodeRecord(dec *json.Decoder) (Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return Record{}, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	rec := Record{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value for %q: %w", key, err)
		}
		value, err := valueText(raw)
		if err != nil {
			return nil, fmt.Errorf("value for %q: %w", key, err)
		}
		rec = rec.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return rec, nil
}

// valueText renders a JSON value as the string written to the export.
func valueText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case 'n':
		return "", nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return string(raw), nil
	}
}

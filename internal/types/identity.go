// Package types provides type definitions for the records moved through a batch run.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field names used by the source, processed and invalid artifacts.
const (
	FieldID       = "NIK"
	FieldCategory = "KATEGORI"
)

// Identity is one unit of work loaded from the source file. Every attribute
// besides the identifier and the category is carried through untouched so the
// processed file mirrors the source record.
type Identity struct {
	ID       string
	Category string
	Extra    map[string]json.RawMessage
}

// HasID reports whether the record carries a usable identifier.
func (i Identity) HasID() bool {
	return strings.TrimSpace(i.ID) != ""
}

// HasCategory reports whether the record carries a category label.
func (i Identity) HasCategory() bool {
	return strings.TrimSpace(i.Category) != ""
}

// UnmarshalJSON decodes a record, accepting numeric identifiers as their literal text.
func (i *Identity) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("identity record must be a JSON object")
	}

	*i = Identity{}
	for key, raw := range fields {
		switch key {
		case FieldID:
			i.ID = scalarText(raw)
		case FieldCategory:
			i.Category = scalarText(raw)
		default:
			if i.Extra == nil {
				i.Extra = make(map[string]json.RawMessage)
			}
			var compact bytes.Buffer
			if err := json.Compact(&compact, raw); err != nil {
				return fmt.Errorf("attribute %s: %w", key, err)
			}
			i.Extra[key] = json.RawMessage(compact.Bytes())
		}
	}
	return nil
}

// MarshalJSON writes the identifier and category first, then the passthrough
// attributes in key order, so rewritten files diff cleanly.
func (i Identity) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	writeField := func(key string, value []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}

	id, err := json.Marshal(i.ID)
	if err != nil {
		return nil, err
	}
	writeField(FieldID, id)

	if i.Category != "" {
		category, err := json.Marshal(i.Category)
		if err != nil {
			return nil, err
		}
		writeField(FieldCategory, category)
	}

	keys := make([]string, 0, len(i.Extra))
	for k := range i.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw := i.Extra[k]
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		writeField(k, raw)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// scalarText returns the text form of a JSON string or number. Other kinds
// (null, objects, arrays) yield "".
func scalarText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String()
	}
	return ""
}

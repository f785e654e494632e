// Package record implements an order-preserving JSON object.
//
// Task instance records have no fixed schema: the merge engine reads a
// couple of well-known fields and passes everything else through untouched.
// A Go map would scramble field order on re-encode, so Record keeps fields
// as an ordered slice of raw jsontext values with a name index on the side.
package record

import (
	"fmt"

	"encoding/json/jsontext"
	json "encoding/json/v2"
)

// Field is a single name/value pair. Value holds the raw JSON encoding
type Field struct {
	Name  string
	Value jsontext.Value
}

// Record is a JSON object whose field order survives a decode/encode round trip.
// Duplicate names in the input collapse to the last occurrence
type Record struct {
	fields []Field
	index  map[string]int
}

// New returns an empty Record
func New() *Record {
	return &Record{index: map[string]int{}}
}

// Parse decodes one JSON object
func Parse(data []byte) (*Record, error) {
	r := New()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Len returns the number of fields
func (r *Record) Len() int { return len(r.fields) }

// Fields returns the fields in order. The slice is shared; callers must not mutate it
func (r *Record) Fields() []Field { return r.fields }

// Get returns the raw value for name
func (r *Record) Get(name string) (jsontext.Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

// String returns the value for name when it is a JSON string
func (r *Record) String(name string) (string, bool) {
	v, ok := r.Get(name)
	if !ok || v.Kind() != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// Set stores v under name. An existing field keeps its position; a new
// field is appended at the end
func (r *Record) Set(name string, v jsontext.Value) {
	if r.index == nil {
		r.index = map[string]int{}
	}
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = v
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// SetAny marshals v and stores it under name
func (r *Record) SetAny(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Set(name, jsontext.Value(data))
	return nil
}

// Delete removes name, preserving the order of the remaining fields.
// Deleting an absent name is a no-op
func (r *Record) Delete(name string) bool {
	i, ok := r.index[name]
	if !ok {
		return false
	}
	r.fields = append(r.fields[:i], r.fields[i+1:]...)
	delete(r.index, name)
	for j := i; j < len(r.fields); j++ {
		r.index[r.fields[j].Name] = j
	}
	return true
}

// Clone returns a copy that can be mutated without affecting r.
// Values are shared (they are treated as immutable once parsed)
func (r *Record) Clone() *Record {
	c := &Record{
		fields: make([]Field, len(r.fields)),
		index:  make(map[string]int, len(r.index)),
	}
	copy(c.fields, r.fields)
	for k, v := range r.index {
		c.index[k] = v
	}
	return c
}

// Encode returns the compact JSON encoding with original field order
func (r *Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// IsNull reports whether v is the JSON null literal. Absent values are not null
func IsNull(v jsontext.Value) bool {
	return len(v) > 0 && v.Kind() == 'n'
}

// UnmarshalJSONFrom implements json.UnmarshalerFrom, reading one object
// token-by-token so field order is observed rather than lost to a map
func (r *Record) UnmarshalJSONFrom(dec *jsontext.Decoder) error {
	tok, err := dec.ReadToken()
	if err != nil {
		return err
	}
	if tok.Kind() != '{' {
		return fmt.Errorf("record: expected object, got %v", tok.Kind())
	}
	r.fields = r.fields[:0]
	r.index = map[string]int{}
	for dec.PeekKind() != '}' {
		nameTok, err := dec.ReadToken()
		if err != nil {
			return err
		}
		// the token is voided by the next decoder call; take the name now
		name := nameTok.String()
		val, err := dec.ReadValue()
		if err != nil {
			return err
		}
		// ReadValue's buffer is reused; keep our own copy
		r.Set(name, append(jsontext.Value(nil), val...))
	}
	if _, err := dec.ReadToken(); err != nil {
		return err
	}
	return nil
}

// MarshalJSONTo implements json.MarshalerTo
func (r *Record) MarshalJSONTo(enc *jsontext.Encoder) error {
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return err
	}
	for _, f := range r.fields {
		if err := enc.WriteToken(jsontext.String(f.Name)); err != nil {
			return err
		}
		if err := enc.WriteValue(f.Value); err != nil {
			return err
		}
	}
	return enc.WriteToken(jsontext.EndObject)
}

// Package optional distinguishes an omitted JSON field from one that was
// sent, including one sent as an explicit null.
package optional

import (
	"bytes"
	"encoding/json"
)

// Field holds a value together with whether the caller supplied it.
// The zero Field is "omitted".
type Field[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Of returns a present, non-null field.
func Of[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// Null returns a present field explicitly cleared by the caller.
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// Get returns the value and whether a non-null value was supplied.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Set && !f.Null
}

// Ptr returns nil for omitted or null fields.
func (f Field[T]) Ptr() *T {
	if !f.Set || f.Null {
		return nil
	}
	v := f.Value
	return &v
}

// UnmarshalJSON is only invoked by encoding/json when the key is present.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		f.Value = zero
		f.Null = true
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

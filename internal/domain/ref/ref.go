// Package ref models API fields that arrive either as a bare identifier or as
// an embedded object carrying that identifier.
package ref

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Identifiable is implemented by embedded summaries that carry their own id.
type Identifiable interface {
	RefID() string
}

// ErrInvalidRef is returned when a reference is neither a string nor an object.
var ErrInvalidRef = errors.New("reference must be an id string or an object")

// Ref is either Id(string) or Embedded(T).
type Ref[T Identifiable] struct {
	id       string
	embedded *T
}

// ByID returns an id-only reference.
func ByID[T Identifiable](id string) Ref[T] {
	return Ref[T]{id: id}
}

// Embed returns a reference holding the full value.
func Embed[T Identifiable](v T) Ref[T] {
	return Ref[T]{id: v.RefID(), embedded: &v}
}

// ID returns the identifier regardless of which variant r holds.
func (r Ref[T]) ID() string {
	return r.id
}

// Embedded returns the embedded value when present.
func (r Ref[T]) Embedded() (T, bool) {
	if r.embedded == nil {
		var zero T
		return zero, false
	}
	return *r.embedded, true
}

// IsZero reports whether r refers to nothing.
func (r Ref[T]) IsZero() bool {
	return r.id == "" && r.embedded == nil
}

// MarshalJSON writes the embedded object when present, otherwise the id string.
func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.embedded != nil {
		return json.Marshal(*r.embedded)
	}
	if r.id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.id)
}

// UnmarshalJSON accepts null, a string id, or an object.
func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref[T]{}
		return nil
	}
	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = ByID[T](id)
		return nil
	case '{':
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*r = Embed(v)
		return nil
	}
	return ErrInvalidRef
}

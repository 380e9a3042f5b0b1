package domain

import (
	"encoding/json"
	"slices"
)

// Seq is an ordered, append-only sequence. Append never mutates the
// receiver, so earlier values stay valid after a record is rebuilt.
type Seq[T any] struct {
	items []T
}

func SeqOf[T any](items ...T) Seq[T] {
	return Seq[T]{items: slices.Clone(items)}
}

// Append returns a new sequence holding the receiver's items followed by items.
func (s Seq[T]) Append(items ...T) Seq[T] {
	out := make([]T, 0, len(s.items)+len(items))
	out = append(out, s.items...)
	out = append(out, items...)
	return Seq[T]{items: out}
}

func (s Seq[T]) Len() int {
	return len(s.items)
}

// Items returns a copy of the sequence contents.
func (s Seq[T]) Items() []T {
	return slices.Clone(s.items)
}

func (s Seq[T]) At(i int) T {
	return s.items[i]
}

func (s Seq[T]) Last() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

func (s Seq[T]) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

func (s *Seq[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	s.items = items
	return nil
}

// Package ringbuf provides a fixed-capacity bounded log. Appending beyond
// capacity silently drops the oldest entries. It is the shared backing for
// session chat logs and code-change history.
package ringbuf

import "encoding/json"

// Log is a bounded append-only log retaining the most recent Capacity entries.
// The zero value is not usable; construct with New.
type Log[T any] struct {
	capacity int
	entries  []T
}

// New creates a bounded log with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Log[T] {
	if capacity < 1 {
		panic("ringbuf: capacity must be positive")
	}
	return &Log[T]{capacity: capacity}
}

// FromSlice creates a bounded log seeded with entries, trimming to the most
// recent capacity entries if needed.
func FromSlice[T any](capacity int, entries []T) *Log[T] {
	l := New[T](capacity)
	if len(entries) > capacity {
		entries = entries[len(entries)-capacity:]
	}
	l.entries = append(l.entries, entries...)
	return l
}

// Append adds an entry, evicting the oldest if the log is at capacity.
func (l *Log[T]) Append(entry T) {
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = entry
		return
	}
	l.entries = append(l.entries, entry)
}

// Len returns the number of retained entries.
func (l *Log[T]) Len() int {
	return len(l.entries)
}

// Capacity returns the maximum number of retained entries.
func (l *Log[T]) Capacity() int {
	return l.capacity
}

// Entries returns the retained entries oldest-first. The returned slice is a
// copy and safe to hold across later appends.
func (l *Log[T]) Entries() []T {
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Tail returns up to n of the most recent entries, oldest-first.
func (l *Log[T]) Tail(n int) []T {
	if n >= len(l.entries) {
		return l.Entries()
	}
	out := make([]T, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// MarshalJSON encodes the log as a plain JSON array, oldest-first.
func (l *Log[T]) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.entries)
}

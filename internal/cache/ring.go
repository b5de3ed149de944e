// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package cache

// Ring is a fixed-capacity circular buffer. When full, pushing a new value
// overwrites the oldest one. The zero value is not usable; use NewRing.
//
// Ring is not safe for concurrent use; callers synchronize access.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int
}

// NewRing creates a ring buffer with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends a value, evicting the oldest when at capacity.
func (r *Ring[T]) Push(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of stored values.
func (r *Ring[T]) Len() int {
	return r.count
}

// Values returns the stored values, oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Last returns up to n of the most recent values, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]T, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}

// Clear discards all stored values.
func (r *Ring[T]) Clear() {
	r.head = 0
	r.count = 0
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
}

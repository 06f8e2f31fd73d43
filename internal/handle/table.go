// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package handle provides the integer-indexed resource tables that back every
// kind of object a device owns (modules, programs, geometries, groups, buffers).
//
// A handle is a plain index into a table. It is valid if and only if it lies
// within the table's current size and the slot it names is occupied. Tables are
// pre-sized by the caller with Allocate; Set fills or replaces a slot.
package handle

import (
	"errors"
	"fmt"
)

// Table errors.
var (
	// ErrInvalidHandle is returned when an index is out of range or names an
	// empty slot.
	ErrInvalidHandle = errors.New("handle: invalid handle")

	// ErrResourceInUse is returned when shrinking a table would drop an
	// occupied slot.
	ErrResourceInUse = errors.New("handle: resource in use")
)

// DestroyFunc releases a resource that is leaving its slot.
type DestroyFunc[T any] func(index int, r T)

type slot[T any] struct {
	occupied bool
	value    T
}

// Table is a resizable array of optional resources addressed by index.
//
// Table is not safe for concurrent use. Each device owns its tables and the
// device group serializes access to them.
type Table[T any] struct {
	name    string
	slots   []slot[T]
	destroy DestroyFunc[T]
}

// New creates an empty table. The name appears in error messages. destroy is
// called for every resource that is replaced, cleared or torn down; it may be nil.
func New[T any](name string, destroy DestroyFunc[T]) *Table[T] {
	return &Table[T]{name: name, destroy: destroy}
}

// Name returns the table's name.
func (t *Table[T]) Name() string { return t.name }

// Allocate resizes the table to n slots. Surviving slots keep their contents,
// new slots are empty. Shrinking fails with ErrResourceInUse when any slot at
// or beyond n is occupied, and the table is left unchanged.
func (t *Table[T]) Allocate(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %s: negative size %d", ErrInvalidHandle, t.name, n)
	}
	if n < len(t.slots) {
		for i := n; i < len(t.slots); i++ {
			if t.slots[i].occupied {
				return fmt.Errorf("%w: %s: cannot shrink to %d, slot %d is occupied",
					ErrResourceInUse, t.name, n, i)
			}
		}
		clear(t.slots[n:])
		t.slots = t.slots[:n]
		return nil
	}
	if n > cap(t.slots) {
		grown := make([]slot[T], n)
		copy(grown, t.slots)
		t.slots = grown
		return nil
	}
	t.slots = t.slots[:n]
	return nil
}

// Set stores r at index i, destroying any prior occupant first.
func (t *Table[T]) Set(i int, r T) error {
	if err := t.checkRange(i); err != nil {
		return err
	}
	t.release(i)
	t.slots[i] = slot[T]{occupied: true, value: r}
	return nil
}

// Get returns the resource at index i.
func (t *Table[T]) Get(i int) (T, error) {
	if err := t.checkRange(i); err != nil {
		var zero T
		return zero, err
	}
	s := t.slots[i]
	if !s.occupied {
		var zero T
		return zero, fmt.Errorf("%w: %s: slot %d is empty", ErrInvalidHandle, t.name, i)
	}
	return s.value, nil
}

// Has reports whether index i is in range and occupied.
func (t *Table[T]) Has(i int) bool {
	return i >= 0 && i < len(t.slots) && t.slots[i].occupied
}

// Clear destroys the occupant of slot i and leaves it empty.
// Clearing an empty slot fails with ErrInvalidHandle.
func (t *Table[T]) Clear(i int) error {
	if !t.Has(i) {
		return fmt.Errorf("%w: %s: slot %d is not occupied", ErrInvalidHandle, t.name, i)
	}
	t.release(i)
	return nil
}

// Len returns the number of slots, occupied or not.
func (t *Table[T]) Len() int { return len(t.slots) }

// Count returns the number of occupied slots.
func (t *Table[T]) Count() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].occupied {
			n++
		}
	}
	return n
}

// Each calls fn for every occupied slot in index order. Iteration stops at the
// first error, which is returned.
func (t *Table[T]) Each(fn func(i int, r T) error) error {
	for i := range t.slots {
		if !t.slots[i].occupied {
			continue
		}
		if err := fn(i, t.slots[i].value); err != nil {
			return err
		}
	}
	return nil
}

// Destroy releases every occupant in reverse index order and empties the table.
func (t *Table[T]) Destroy() {
	for i := len(t.slots) - 1; i >= 0; i-- {
		t.release(i)
	}
	t.slots = nil
}

func (t *Table[T]) checkRange(i int) error {
	if i < 0 || i >= len(t.slots) {
		return fmt.Errorf("%w: %s: index %d out of range [0,%d)", ErrInvalidHandle, t.name, i, len(t.slots))
	}
	return nil
}

func (t *Table[T]) release(i int) {
	s := t.slots[i]
	if !s.occupied {
		return
	}
	t.slots[i] = slot[T]{}
	if t.destroy != nil {
		t.destroy(i, s.value)
	}
}

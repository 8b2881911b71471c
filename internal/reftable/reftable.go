// Package reftable maps reference keys to the labels assigned while
// scanning block directives ("Figure 2.1", "2.3") or loading a
// bibliography ("4").
package reftable

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrDuplicateReference is returned when a key is registered twice with
// different labels in one build.
var ErrDuplicateReference = errors.New("reference key defined twice")

// Entry is a single key/label pair.
type Entry struct {
	Key   string
	Label string
}

// Table is the reference table of one build. It has a single writer (the
// block pass, run sequentially) and is read only by the inline pass, so
// it carries no lock.
type Table struct {
	labels map[string]string
}

// New returns an empty table.
func New() *Table {
	return &Table{labels: make(map[string]string)}
}

// Insert registers key with label. Registering the same key with the same
// label again is a no-op, so reprocessing a document is idempotent.
// A different label for an existing key fails with ErrDuplicateReference.
func (t *Table) Insert(key, label string) error {
	if prev, ok := t.labels[key]; ok {
		if prev == label {
			return nil
		}
		return fmt.Errorf("%w: %q is %q, redefined as %q", ErrDuplicateReference, key, prev, label)
	}
	t.labels[key] = label
	return nil
}

// Merge inserts entries in order and stops at the first conflict.
// Entries before the conflict stay inserted.
func (t *Table) Merge(entries []Entry) error {
	for _, e := range entries {
		if err := t.Insert(e.Key, e.Label); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the label registered for key.
func (t *Table) Lookup(key string) (string, bool) {
	label, ok := t.labels[key]
	return label, ok
}

// Len returns the number of keys.
func (t *Table) Len() int {
	return len(t.labels)
}

// Keys returns all keys in sorted order.
func (t *Table) Keys() []string {
	return slices.Sorted(maps.Keys(t.labels))
}

// Snapshot returns a copy of the table contents.
func (t *Table) Snapshot() map[string]string {
	return maps.Clone(t.labels)
}

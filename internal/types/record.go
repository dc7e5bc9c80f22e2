// Package types provides shared types used across the dupehound codebase.
package types

import (
	"cmp"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Tree ranks for merged two-tree runs. Target records always order ahead
// of reference records so target files win master selection.
const (
	TreeTarget    = 0
	TreeReference = 1
)

// ExtNone is the extension sentinel for files without an extension.
// It is distinct from "" (a base name ending in a bare dot).
const ExtNone = "none"

// FileRecord holds metadata for one indexed regular file.
//
// All fields except Path, HeadTail and Checksum are fixed at creation.
// HeadTail and Checksum are filled lazily by the prober, only for records
// that survive metadata narrowing. Path changes once, when a move
// operation relocates the file.
type FileRecord struct {
	Path    string
	Size    int64
	ModTime time.Time
	Dev     uint64
	Ino     uint64
	Nlink   uint32
	Name    string // base name up to the last dot
	Ext     string // lower-cased extension, ExtNone if absent
	Tree    int    // TreeTarget or TreeReference
	Seq     int    // position in deterministic input order, set by Finalize

	HeadTail string // head/tail probe digest, "" until probed
	Checksum string // full-content digest, "" until probed
}

// SplitName splits a file's base name at the last dot into name and
// extension. The extension is lower-cased. A name with no dot (or only a
// leading dot, as in ".profile") has no extension and yields ExtNone; a
// name ending in a bare dot yields the empty extension, which is a
// distinct value.
func SplitName(path string) (name, ext string) {
	base := filepath.Base(path)
	i := strings.LastIndex(base, ".")
	if i <= 0 {
		return base, ExtNone
	}
	return base[:i], strings.ToLower(base[i+1:])
}

// Finalize fixes the deterministic input order of a record set after a
// parallel walk: records are sorted by (tree, path) and numbered. Master
// selection depends on this order, never on walker completion order.
func Finalize(records []*FileRecord) []*FileRecord {
	slices.SortFunc(records, func(a, b *FileRecord) int {
		if c := cmp.Compare(a.Tree, b.Tree); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	for i, r := range records {
		r.Seq = i
	}
	return records
}

// Group is a set of records agreeing on every active match criterion.
// Records are kept in input (Seq) order; a group always has 2+ members
// once the matcher has run, and its first member is the group's master.
type Group []*FileRecord

// Records returns all members of all groups, flattened in group order.
func Records(groups []Group) []*FileRecord {
	var out []*FileRecord
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Sorted is an ordered collection that maintains sort order by a key function.
// T is the element type, K is the comparable key type.
// Once constructed, items are guaranteed to be sorted by key.
type Sorted[T any, K cmp.Ordered] struct {
	items   []T
	keyFunc func(T) K
}

// NewSorted creates a sorted collection from items using keyFunc for ordering.
// Items are copied and sorted at construction time.
func NewSorted[T any, K cmp.Ordered](items []T, keyFunc func(T) K) Sorted[T, K] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	slices.SortFunc(sorted, func(a, b T) int {
		return cmp.Compare(keyFunc(a), keyFunc(b))
	})
	return Sorted[T, K]{items: sorted, keyFunc: keyFunc}
}

// Items returns the sorted items.
func (s Sorted[T, K]) Items() []T { return s.items }

// First returns the first item (smallest key), or zero value if empty.
func (s Sorted[T, K]) First() T {
	if len(s.items) == 0 {
		var zero T
		return zero
	}
	return s.items[0]
}

// Len returns the number of items.
func (s Sorted[T, K]) Len() int { return len(s.items) }

// Groups is a collection of groups ordered by each group's master Seq.
type Groups = Sorted[Group, int]

// NewGroups creates Groups ordered by master position in input order.
func NewGroups(groups []Group) Groups {
	return NewSorted(groups, func(g Group) int { return g[0].Seq })
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }

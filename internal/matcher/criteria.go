package matcher

import "slices"

// Criterion is one match criterion. Two records belong to the same
// duplicate group only if they agree on every selected criterion.
type Criterion int

const (
	CritInode Criterion = iota
	CritSize
	CritName
	CritExt
	CritTime
	CritHeadTail
	CritChecksum
)

// costOrder lists the non-inode criteria from cheapest to most
// expensive. Metadata comparisons come first so that probes only ever
// run on records that survived every cheaper pass.
var costOrder = []Criterion{CritSize, CritName, CritExt, CritTime, CritHeadTail, CritChecksum}

func (c Criterion) String() string {
	switch c {
	case CritInode:
		return "inode"
	case CritSize:
		return "size"
	case CritName:
		return "name"
	case CritExt:
		return "extension"
	case CritTime:
		return "time"
	case CritHeadTail:
		return "headtail"
	case CritChecksum:
		return "checksum"
	}
	return "unknown"
}

// Normalize deduplicates the criteria and orders them cheapest first.
// Inode, when present, sorts ahead of everything else: it short-circuits
// the whole pipeline (same inode already implies same content).
func Normalize(criteria []Criterion) []Criterion {
	var out []Criterion
	if slices.Contains(criteria, CritInode) {
		out = append(out, CritInode)
	}
	for _, c := range costOrder {
		if slices.Contains(criteria, c) {
			out = append(out, c)
		}
	}
	return out
}

// EnsureChecksum returns the criteria with checksum matching appended if
// absent. Destructive extras operations call this so they never act on
// probabilistic-only matches.
func EnsureChecksum(criteria []Criterion) []Criterion {
	if slices.Contains(criteria, CritChecksum) {
		return criteria
	}
	return append(slices.Clone(criteria), CritChecksum)
}

// Package matcher narrows a record set into duplicate groups.
//
// # Processing Pipeline
//
//	Input: []*types.FileRecord (finalized, deterministic order)
//	    │
//	    ├──► Inode pass: either hard-link discovery (inode criterion
//	    │    selected) or collapse to one representative per inode
//	    │
//	    ├──► For each remaining criterion, cheapest first:
//	    │        ├──► probe survivors (headtail/checksum passes only)
//	    │        ├──► re-partition every group by the criterion's value
//	    │        └──► discard singleton partitions
//	    │
//	    └──► Output: []types.Group (each 2+ members, input order)
//
// Partition keys are the typed field values themselves, never
// string-concatenated composites, so delimiter collisions cannot create
// false groups. An empty result is the normal "no duplicates found"
// outcome, not an error.
package matcher

import (
	"github.com/dupehound/dupehound/internal/logging"
	"github.com/dupehound/dupehound/internal/prober"
	"github.com/dupehound/dupehound/internal/types"
)

var log = logging.GetLogger("matcher")

// Matcher runs the narrowing pipeline. Probes are delegated to the
// prober only for records that reach the headtail/checksum passes.
type Matcher struct {
	prober *prober.Prober
}

// New creates a Matcher using the given prober for content passes.
func New(p *prober.Prober) *Matcher {
	return &Matcher{prober: p}
}

// devIno uniquely identifies on-disk data by device and inode.
// Records sharing it are hard links to the same bytes.
type devIno struct {
	dev, ino uint64
}

// Run narrows records into duplicate groups under the combination of all
// selected criteria. Each pass partitions the survivors of the previous
// one and drops singletons; a zero-candidate pass halts the pipeline.
func (m *Matcher) Run(records []*types.FileRecord, criteria []Criterion) []types.Group {
	criteria = Normalize(criteria)
	if len(records) == 0 || len(criteria) == 0 {
		return nil
	}

	// Inode pass always runs first. Explicit inode matching means
	// hard-link discovery: group by inode and stop, since identical
	// inode already implies identical content. Otherwise collapse hard
	// links to one representative so the same data is never
	// double-counted as a duplicate of itself.
	if criteria[0] == CritInode {
		groups := refineBy([]types.Group{records}, func(r *types.FileRecord) devIno {
			return devIno{r.Dev, r.Ino}
		})
		log.Debug().Int("groups", len(groups)).Msg("Hard-link discovery complete")
		return ordered(groups)
	}

	groups := []types.Group{CollapseHardlinks(records)}

	for _, crit := range criteria {
		if crit == CritHeadTail || crit == CritChecksum {
			groups = m.probe(groups, crit)
		}
		groups = refine(groups, crit)
		log.Debug().Stringer("criterion", crit).Int("groups", len(groups)).Msg("Narrowing pass done")
		if len(groups) == 0 {
			return nil
		}
	}

	return ordered(groups)
}

// CollapseHardlinks keeps exactly one record per (dev, ino) pair,
// preserving input order. Multiple links to the same data must not be
// reported as duplicates of each other.
func CollapseHardlinks(records []*types.FileRecord) []*types.FileRecord {
	seen := make(map[devIno]bool, len(records))
	out := make([]*types.FileRecord, 0, len(records))
	for _, r := range records {
		key := devIno{r.Dev, r.Ino}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// probe computes the digests the next pass partitions on, for every
// record still in play. Unreadable records are dropped from their
// groups; groups reduced below two members are dropped entirely.
func (m *Matcher) probe(groups []types.Group, crit Criterion) []types.Group {
	all := types.Records(groups)

	var survivors []*types.FileRecord
	if crit == CritHeadTail {
		survivors = m.prober.EnsureHeadTail(all)
	} else {
		survivors = m.prober.EnsureChecksum(all)
	}
	if len(survivors) == len(all) {
		return groups
	}

	alive := make(map[*types.FileRecord]bool, len(survivors))
	for _, r := range survivors {
		alive[r] = true
	}

	var out []types.Group
	for _, g := range groups {
		kept := make(types.Group, 0, len(g))
		for _, r := range g {
			if alive[r] {
				kept = append(kept, r)
			}
		}
		if len(kept) >= 2 {
			out = append(out, kept)
		}
	}
	return out
}

// refine re-partitions every group by one criterion's typed value.
func refine(groups []types.Group, crit Criterion) []types.Group {
	switch crit {
	case CritSize:
		return refineBy(groups, func(r *types.FileRecord) int64 { return r.Size })
	case CritName:
		return refineBy(groups, func(r *types.FileRecord) string { return r.Name })
	case CritExt:
		return refineBy(groups, func(r *types.FileRecord) string { return r.Ext })
	case CritTime:
		// Exact match only: bit-identical timestamps, no tolerance.
		return refineBy(groups, func(r *types.FileRecord) int64 { return r.ModTime.UnixNano() })
	case CritHeadTail:
		return refineBy(groups, func(r *types.FileRecord) string { return r.HeadTail })
	case CritChecksum:
		return refineBy(groups, func(r *types.FileRecord) string { return r.Checksum })
	}
	return groups
}

// refineBy partitions each group by key and keeps parts with 2+ members.
// Partitions preserve record order; parts emerge in first-seen key order.
func refineBy[K comparable](groups []types.Group, key func(*types.FileRecord) K) []types.Group {
	var out []types.Group
	for _, g := range groups {
		parts := make(map[K]types.Group)
		var order []K
		for _, r := range g {
			k := key(r)
			if _, ok := parts[k]; !ok {
				order = append(order, k)
			}
			parts[k] = append(parts[k], r)
		}
		for _, k := range order {
			if part := parts[k]; len(part) >= 2 {
				out = append(out, part)
			}
		}
	}
	return out
}

// ordered returns groups sorted by their master's position in input
// order, keeping run output repeatable on an unchanged filesystem.
func ordered(groups []types.Group) []types.Group {
	return types.NewGroups(groups).Items()
}

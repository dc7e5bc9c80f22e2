// Package refdiff diffs a reference tree against a target tree by content.
//
// The engine merges the indexed records of both trees (target first, so
// master selection prefers target copies), runs the matcher over the
// merged set, and splits the reference records in two:
//
//   - extras: reference records whose content is already present in the
//     target tree under the matched criteria, plus non-master members of
//     reference-only groups (duplicated within the reference itself)
//   - uniques: everything else - the files worth copying in
//
// Only uniques are eligible for the copy operation; each distinct
// content is copied at most once.
package refdiff

import (
	"github.com/dupehound/dupehound/internal/logging"
	"github.com/dupehound/dupehound/internal/matcher"
	"github.com/dupehound/dupehound/internal/types"
)

var log = logging.GetLogger("refdiff")

// Diff splits the reference records of a merged, finalized record set
// into uniques and extras. The merged set must already be stamped with
// tree ranks and passed through types.Finalize.
func Diff(merged []*types.FileRecord, m *matcher.Matcher, criteria []matcher.Criterion) (uniques, extras []*types.FileRecord) {
	// Hard-link siblings inside the reference tree carry the same
	// content as their representative; only representatives can be
	// uniques.
	reps := matcher.CollapseHardlinks(merged)

	groups := m.Run(reps, criteria)

	// A reference record is an extra when it sits in any group behind
	// its master: either the group has a target member (which, ordering
	// target-first, is the master) or the group is reference-only and
	// the record is a duplicate of the reference master.
	isExtra := make(map[*types.FileRecord]bool)
	for _, g := range groups {
		for _, r := range g[1:] {
			if r.Tree == types.TreeReference {
				isExtra[r] = true
			}
		}
	}

	for _, r := range reps {
		if r.Tree != types.TreeReference {
			continue
		}
		if isExtra[r] {
			extras = append(extras, r)
		} else {
			uniques = append(uniques, r)
		}
	}

	log.Debug().Int("uniques", len(uniques)).Int("extras", len(extras)).Msg("Reference diff complete")
	return uniques, extras
}

// Package master designates one kept record per duplicate group.
//
// The rule is fixed and deterministic: the master is the first record of
// the group in input order (the order types.Finalize assigned after
// indexing), never re-sorted by any other attribute. Repeated runs on an
// unchanged filesystem therefore always pick the same master. In merged
// two-tree runs, target records order ahead of reference records, so a
// target copy is always preferred over a reference copy.
package master

import "github.com/dupehound/dupehound/internal/types"

// Split returns the group's master and the remaining extras.
// Groups produced by the matcher are never empty and keep input order,
// so the master is simply the first member.
func Split(g types.Group) (m *types.FileRecord, extras []*types.FileRecord) {
	return g[0], g[1:]
}

// SplitAll partitions every group into the overall master and extra
// sets, preserving group order.
func SplitAll(groups []types.Group) (masters, extras []*types.FileRecord) {
	for _, g := range groups {
		m, ex := Split(g)
		masters = append(masters, m)
		extras = append(extras, ex...)
	}
	return masters, extras
}

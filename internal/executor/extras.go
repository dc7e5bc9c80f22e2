package executor

import (
	"fmt"
	"os"
	"time"

	"github.com/dupehound/dupehound/internal/master"
	"github.com/dupehound/dupehound/internal/progress"
	"github.com/dupehound/dupehound/internal/report"
	"github.com/dupehound/dupehound/internal/types"
)

// HardlinkExtras replaces every extra with a hard link to its group's
// master. The master's inode is never altered; extras end up sharing it.
// Callers must have matched with the checksum criterion in effect - the
// CLI auto-enables it for this operation.
func (e *Executor) HardlinkExtras(groups []types.Group) error {
	_, extras, err := e.prepareExtras(groups)
	if err != nil {
		return err
	}
	if !e.confirm(fmt.Sprintf("Replace %d extras with hard links to their masters?", len(extras))) {
		return ErrDeclined
	}

	st := &opStats{verb: "Hardlinked", startTime: time.Now()}
	bar := progress.New(e.showProgress, int64(len(extras)))

	for _, g := range groups {
		m, ex := master.Split(g)
		for _, x := range ex {
			if x.Dev == m.Dev && x.Ino == m.Ino {
				// Already a link to the master's data
				bar.Add(1)
				continue
			}
			if !e.dryRun {
				if err := ReplaceWithHardlink(m.Path, x.Path); err != nil {
					st.skipped++
					e.sendError(fmt.Errorf("%s: %w", x.Path, err))
					bar.Add(1)
					continue
				}
			}
			st.files++
			st.bytes += x.Size
			bar.Add(1)
		}
	}

	bar.Finish(st)
	return nil
}

// RemoveExtras deletes every extra, leaving each group's master in
// place. Callers must have matched with the checksum criterion in
// effect - the CLI auto-enables it for this operation.
func (e *Executor) RemoveExtras(groups []types.Group) error {
	_, extras, err := e.prepareExtras(groups)
	if err != nil {
		return err
	}
	if !e.confirm(fmt.Sprintf("Permanently remove %d extra files?", len(extras))) {
		return ErrDeclined
	}

	st := &opStats{verb: "Removed", startTime: time.Now()}
	bar := progress.New(e.showProgress, int64(len(extras)))

	for _, x := range extras {
		if !e.dryRun {
			if err := os.Remove(x.Path); err != nil {
				st.skipped++
				e.sendError(fmt.Errorf("%s: %w", x.Path, err))
				bar.Add(1)
				continue
			}
		}
		st.files++
		st.bytes += x.Size
		bar.Add(1)
	}

	bar.Finish(st)
	return nil
}

// prepareExtras writes the duplicate, master and extra reports and
// prints the listing, returning the master/extra split.
func (e *Executor) prepareExtras(groups []types.Group) (masters, extras []*types.FileRecord, err error) {
	if err := report.WriteGroups(e.target, report.DuplicatesFile, groups); err != nil {
		return nil, nil, err
	}
	masters, extras = master.SplitAll(groups)
	if err := report.Write(e.target, report.MastersFile, masters); err != nil {
		return nil, nil, err
	}
	if err := report.Write(e.target, report.ExtrasFile, extras); err != nil {
		return nil, nil, err
	}
	e.printListing(groups)
	return masters, extras, nil
}

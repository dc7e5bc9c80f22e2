// Package executor performs file operations over duplicate groups.
//
// # Overview
//
// Exactly one operation runs per invocation: list, softlink, move,
// move-back, hardlink-extras, remove-extras or copy-uniques. Every
// destructive operation prints the affected listing and gates on an
// explicit confirmation before the first mutation; once a batch starts,
// per-file failures (permissions, vanished files) are reported through
// the error channel and the batch continues. There is no partial-batch
// rollback.
//
// # Directory layout
//
//	<target>/DUPLICATES           relocated files (move / move-back)
//	<target>/LINKS_TO_DUPLICATES  symbolic links (softlink)
//
// Reports (tab-separated, see the report package) are written under the
// target root before the confirmation prompt, so a declined run still
// leaves the listing behind.
package executor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dupehound/dupehound/internal/logging"
	"github.com/dupehound/dupehound/internal/master"
	"github.com/dupehound/dupehound/internal/pathcodec"
	"github.com/dupehound/dupehound/internal/progress"
	"github.com/dupehound/dupehound/internal/report"
	"github.com/dupehound/dupehound/internal/types"
)

var log = logging.GetLogger("executor")

// Subdirectories created under the target root.
const (
	DuplicatesDir = "DUPLICATES"
	LinksDir      = "LINKS_TO_DUPLICATES"
)

// confirmAttempts bounds the confirmation prompt retry loop.
const confirmAttempts = 3

// ErrDeclined is returned when the user aborts at the confirmation
// prompt. It is a normal termination: nothing has been mutated.
var ErrDeclined = errors.New("operation declined")

// ErrRelocationSkipped marks a file whose path could not be encoded
// reversibly; the file stays in place and the batch continues.
var ErrRelocationSkipped = errors.New("relocation skipped")

// Executor runs one file operation over a duplicate group set.
//
// The executor is designed for single-use: create with New(), call one
// operation method once.
type Executor struct {
	target       string
	dryRun       bool       // Preview mode (don't modify files)
	assumeYes    bool       // Skip the confirmation prompt
	showProgress bool       // Whether to display progress bar
	errCh        chan error // Non-fatal per-file errors

	in  io.Reader // Confirmation input, os.Stdin outside tests
	out io.Writer // Listing/prompt output, os.Stdout outside tests
}

// New creates an Executor rooted at target.
func New(target string, dryRun, assumeYes, showProgress bool, errCh chan error) *Executor {
	return &Executor{
		target:       target,
		dryRun:       dryRun,
		assumeYes:    assumeYes,
		showProgress: showProgress,
		errCh:        errCh,
		in:           os.Stdin,
		out:          os.Stdout,
	}
}

// opStats tracks one operation batch.
type opStats struct {
	verb      string
	files     int
	bytes     int64
	skipped   int
	startTime time.Time
}

func (s *opStats) String() string {
	return fmt.Sprintf("%s %d files (%s), skipped %d in %.1fs",
		s.verb, s.files, humanize.IBytes(uint64(s.bytes)), s.skipped,
		time.Since(s.startTime).Seconds())
}

// List writes the duplicates report and prints the grouped listing.
// No mutation.
func (e *Executor) List(groups []types.Group) error {
	if err := report.WriteGroups(e.target, report.DuplicatesFile, groups); err != nil {
		return err
	}
	e.printListing(groups)
	return nil
}

// SoftLink creates, for every record in the full duplicate set, a
// symbolic link under LINKS_TO_DUPLICATES pointing at the original.
// Originals are never altered, so no confirmation is required.
func (e *Executor) SoftLink(groups []types.Group) error {
	if err := report.WriteGroups(e.target, report.DuplicatesFile, groups); err != nil {
		return err
	}

	linksDir := filepath.Join(e.target, LinksDir)
	if !e.dryRun {
		if err := os.MkdirAll(linksDir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", LinksDir, err)
		}
	}

	st := &opStats{verb: "Linked", startTime: time.Now()}
	bar := progress.New(e.showProgress, int64(countRecords(groups)))

	seq := 0
	for _, g := range groups {
		for _, r := range g {
			seq++
			name := fmt.Sprintf("%06d %s", seq, filepath.Base(r.Path))
			if !e.dryRun {
				if err := os.Symlink(r.Path, filepath.Join(linksDir, name)); err != nil {
					st.skipped++
					e.sendError(fmt.Errorf("%s: %w", r.Path, err))
					bar.Add(1)
					continue
				}
			}
			st.files++
			st.bytes += r.Size
			bar.Add(1)
		}
	}

	bar.Finish(st)
	return nil
}

// Move relocates every record in the full duplicate set into DUPLICATES
// under its encoded name. Files whose paths cannot be encoded reversibly
// are skipped and reported; the batch never aborts mid-way.
func (e *Executor) Move(groups []types.Group) error {
	if err := report.WriteGroups(e.target, report.DuplicatesFile, groups); err != nil {
		return err
	}
	e.printListing(groups)

	total := countRecords(groups)
	if !e.confirm(fmt.Sprintf("Move %d files into %s/?", total, DuplicatesDir)) {
		return ErrDeclined
	}

	dupDir := filepath.Join(e.target, DuplicatesDir)
	if !e.dryRun {
		if err := os.MkdirAll(dupDir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", DuplicatesDir, err)
		}
	}

	st := &opStats{verb: "Moved", startTime: time.Now()}
	bar := progress.New(e.showProgress, int64(total))

	var moved []*types.FileRecord
	for groupSeq, g := range groups {
		for _, r := range g {
			token, err := pathcodec.Encode(e.target, r.Path, groupSeq+1)
			if err != nil {
				st.skipped++
				e.sendError(fmt.Errorf("%w: %s: %v", ErrRelocationSkipped, r.Path, err))
				bar.Add(1)
				continue
			}
			dest := filepath.Join(dupDir, token)
			if !e.dryRun {
				if err := os.Rename(r.Path, dest); err != nil {
					st.skipped++
					e.sendError(fmt.Errorf("%s: %w", r.Path, err))
					bar.Add(1)
					continue
				}
			}
			r.Path = dest // keep downstream views of the record consistent
			moved = append(moved, r)
			st.files++
			st.bytes += r.Size
			bar.Add(1)
		}
	}
	bar.Finish(st)

	return report.Write(e.target, report.MovedFile, moved)
}

// MoveBack decodes every encoded name found inside DUPLICATES and moves
// the file back to its original location, recreating intermediate
// directories. It is the designed inverse of Move and only meaningful on
// that directory's unmodified contents.
func (e *Executor) MoveBack() error {
	dupDir := filepath.Join(e.target, DuplicatesDir)
	entries, err := os.ReadDir(dupDir)
	if err != nil {
		return fmt.Errorf("read %s: %w", DuplicatesDir, err)
	}

	type plan struct{ from, to string }
	var plans []plan
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !pathcodec.IsEncoded(entry.Name()) {
			e.sendError(fmt.Errorf("%s: not an encoded name, left in place", entry.Name()))
			continue
		}
		dest, err := pathcodec.Decode(entry.Name(), e.target)
		if err != nil {
			e.sendError(fmt.Errorf("%s: %w", entry.Name(), err))
			continue
		}
		plans = append(plans, plan{filepath.Join(dupDir, entry.Name()), dest})
	}

	for _, p := range plans {
		fmt.Fprintf(e.out, "%s -> %s\n", filepath.Base(p.from), p.to)
	}
	if !e.confirm(fmt.Sprintf("Move %d files back to their original locations?", len(plans))) {
		return ErrDeclined
	}

	st := &opStats{verb: "Restored", startTime: time.Now()}
	bar := progress.New(e.showProgress, int64(len(plans)))

	for _, p := range plans {
		if e.dryRun {
			st.files++
			bar.Add(1)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p.to), 0o755); err != nil {
			st.skipped++
			e.sendError(fmt.Errorf("%s: %w", p.to, err))
			bar.Add(1)
			continue
		}
		if _, err := os.Lstat(p.to); err == nil {
			st.skipped++
			e.sendError(fmt.Errorf("%s: destination already exists", p.to))
			bar.Add(1)
			continue
		}
		if err := os.Rename(p.from, p.to); err != nil {
			st.skipped++
			e.sendError(fmt.Errorf("%s: %w", p.from, err))
			bar.Add(1)
			continue
		}
		st.files++
		bar.Add(1)
	}

	bar.Finish(st)
	return nil
}

// printListing prints each group with its master first and extras
// indented beneath it.
func (e *Executor) printListing(groups []types.Group) {
	for _, g := range groups {
		m, extras := master.Split(g)
		fmt.Fprintf(e.out, "%s (%s)\n", m.Path, humanize.IBytes(uint64(m.Size)))
		for _, x := range extras {
			fmt.Fprintf(e.out, "  = %s\n", x.Path)
		}
	}
}

// confirm asks for an explicit y/N answer, retrying a bounded number of
// times on invalid input. Anything but an affirmative answer declines.
// Dry runs mutate nothing, so they skip the prompt.
func (e *Executor) confirm(question string) bool {
	if e.assumeYes || e.dryRun {
		return true
	}

	scanner := bufio.NewScanner(e.in)
	for attempt := 0; attempt < confirmAttempts; attempt++ {
		fmt.Fprintf(e.out, "%s [y/N]: ", question)
		if !scanner.Scan() {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		}
		fmt.Fprintln(e.out, `Please answer "y" or "n".`)
	}
	log.Warn().Msg("No valid confirmation received, declining")
	return false
}

// countRecords returns the number of records across all groups.
func countRecords(groups []types.Group) int {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	return n
}

// sendError sends an error to the errors channel if it's not nil.
func (e *Executor) sendError(err error) {
	if e.errCh != nil {
		e.errCh <- err
	}
}

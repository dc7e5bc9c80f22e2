package executor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dupehound/dupehound/internal/progress"
	"github.com/dupehound/dupehound/internal/report"
	"github.com/dupehound/dupehound/internal/types"
)

// CopyUniques copies every reference-tree unique into the target tree,
// preserving the reference tree's relative directory structure. A name
// collision at the destination gets a timestamp suffix rather than an
// overwrite. Records are updated to their destination paths and logged
// in the copied report.
func (e *Executor) CopyUniques(uniques []*types.FileRecord, refRoot string) error {
	for _, r := range uniques {
		fmt.Fprintf(e.out, "+ %s\n", r.Path)
	}
	if !e.confirm(fmt.Sprintf("Copy %d new files from %s into %s?", len(uniques), refRoot, e.target)) {
		return ErrDeclined
	}

	st := &opStats{verb: "Copied", startTime: time.Now()}
	bar := progress.New(e.showProgress, int64(len(uniques)))

	var copied []*types.FileRecord
	for _, r := range uniques {
		rel, err := filepath.Rel(refRoot, r.Path)
		if err != nil {
			st.skipped++
			e.sendError(fmt.Errorf("%s: %w", r.Path, err))
			bar.Add(1)
			continue
		}
		dest := filepath.Join(e.target, rel)
		if _, err := os.Lstat(dest); err == nil {
			dest = timestampSuffix(dest, time.Now())
		}

		if !e.dryRun {
			if err := copyFile(r.Path, dest, r.ModTime); err != nil {
				st.skipped++
				e.sendError(fmt.Errorf("%s: %w", r.Path, err))
				bar.Add(1)
				continue
			}
		}
		r.Path = dest
		copied = append(copied, r)
		st.files++
		st.bytes += r.Size
		bar.Add(1)
	}
	bar.Finish(st)

	return report.Write(e.target, report.CopiedFile, copied)
}

// timestampSuffix inserts a collision suffix before the extension, so
// "cat.jpg" becomes "cat.20060102T150405.jpg".
func timestampSuffix(path string, now time.Time) string {
	dir, base := filepath.Split(path)
	stamp := now.Format("20060102T150405")
	ext := filepath.Ext(base)
	if ext != "" {
		return filepath.Join(dir, base[:len(base)-len(ext)]+"."+stamp+ext)
	}
	return filepath.Join(dir, base+"."+stamp)
}

// copyFile copies src to dest, creating parent directories and
// preserving the modification time.
func copyFile(src, dest string, modTime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest) // don't leave partial copies behind
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dest, time.Now(), modTime)
}

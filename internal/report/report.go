// Package report writes tab-separated record listings under the target root.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dupehound/dupehound/internal/types"
)

// Report file names, all written directly under the target root.
const (
	DuplicatesFile = "duplicates.tsv"
	MastersFile    = "masters.tsv"
	ExtrasFile     = "extras.tsv"
	MovedFile      = "moved.tsv"
	CopiedFile     = "copied.tsv"
)

// header is the fixed column order. The layout is part of the external
// interface; do not reorder.
var header = []string{"Size", "Headtail", "Checksum", "Time", "Inode", "Name", "Extension", "Path"}

// Write writes one row per record to name under root.
func Write(root, name string, records []*types.FileRecord) error {
	f, err := os.Create(filepath.Join(root, name))
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	w.Comma = '\t'

	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(row(r)); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// WriteGroups flattens groups in group order and writes them as one report.
func WriteGroups(root, name string, groups []types.Group) error {
	return Write(root, name, types.Records(groups))
}

func row(r *types.FileRecord) []string {
	return []string{
		strconv.FormatInt(r.Size, 10),
		r.HeadTail,
		r.Checksum,
		r.ModTime.Format(time.RFC3339Nano),
		strconv.FormatUint(r.Ino, 10),
		r.Name,
		r.Ext,
		r.Path,
	}
}

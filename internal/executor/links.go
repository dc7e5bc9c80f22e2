//go:build unix

package executor

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

const (
	// orphanedTmpMaxAge is the minimum age for a .dupehound.tmp file to be
	// considered orphaned. Files younger than this are assumed to be from
	// an active operation.
	orphanedTmpMaxAge = 1 * time.Minute

	tmpSuffix = ".dupehound.tmp"
)

// ReplaceWithHardlink atomically replaces target with a hard link to
// source, by linking to a temp file and renaming over the target. The
// target file's data is only unreferenced at the rename, so a crash
// never leaves the target missing. If the temp file exists and is
// orphaned (old + safe to delete), it is cleaned up and the link retried.
func ReplaceWithHardlink(source, target string) error {
	tmp := target + tmpSuffix

	err := os.Link(source, tmp)
	if errors.Is(err, syscall.EEXIST) {
		if cleanupErr := tryCleanupOrphanedTmp(tmp, orphanedTmpMaxAge); cleanupErr != nil {
			return fmt.Errorf("tmp file exists and cannot be cleaned: %w", cleanupErr)
		}
		// Retry after cleanup
		err = os.Link(source, tmp)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // cleanup on failure
		return err
	}
	return nil
}

// tryCleanupOrphanedTmp attempts to clean up an orphaned temp file.
// Returns nil if successfully removed, or an error explaining why
// cleanup was skipped/failed.
//
// Safety criteria (ALL must be met):
//  1. File is older than maxAge (protects against race with active operations)
//  2. File has nlink > 1 (protects against data loss)
//
// If nlink == 1, the file is NOT deleted as it may be the only copy of data.
func tryCleanupOrphanedTmp(path string, maxAge time.Duration) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	if info.ModTime().After(cutoff) {
		return fmt.Errorf("file too recent (mtime %v, cutoff %v)", info.ModTime(), cutoff)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file (mode %v)", info.Mode())
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("cannot get syscall.Stat_t")
	}

	// Only delete if other hard links exist (nlink > 1).
	// If nlink == 1, this IS the only copy - do not delete.
	if stat.Nlink <= 1 {
		return fmt.Errorf("nlink=%d, may be only copy of data", stat.Nlink)
	}

	return os.Remove(path)
}

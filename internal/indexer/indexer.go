// Package indexer provides parallel filesystem indexing for duplicate detection.
//
// The indexer walks a single root tree (optionally depth-bounded) and
// emits one FileRecord per regular, non-empty file. Symlinks and other
// non-regular entries are never indexed.
//
// # Concurrency Model
//
// One walker goroutine is spawned per directory discovered, limited by a
// semaphore; a single collector goroutine drains the result channel into
// a slice. The walk order is therefore nondeterministic - callers must
// pass the result through types.Finalize before master selection.
package indexer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dupehound/dupehound/internal/progress"
	"github.com/dupehound/dupehound/internal/types"
)

// ErrInvalidDirectory is returned when the root does not exist or is not
// a directory. This is a pre-flight error: no walk is started.
var ErrInvalidDirectory = errors.New("not a valid directory")

// Indexer discovers files under a root using parallel directory traversal.
//
// The indexer is designed for single-use: create with New(), call Run() once.
type Indexer struct {
	// Config (immutable, set by New)
	root         string     // Root path to index
	tree         int        // Tree rank stamped on records (target/reference)
	maxDepth     int        // Maximum depth (files in root = depth 1), 0 = unbounded
	minSize      int64      // Minimum file size filter (bytes), floor 1
	excludes     []string   // Glob patterns for filename exclusion
	workers      int        // Max concurrent directory reads
	showProgress bool       // Whether to display progress bar
	errCh        chan error // Non-fatal errors (permission denied, etc.)

	// Runtime (initialized in Run)
	walkerWg  sync.WaitGroup         // Tracks in-flight walker goroutines
	walkerSem types.Semaphore        // Limits concurrent directory reads
	resultCh  chan *types.FileRecord // Fan-in channel: walkers → collector
	stats     *stats                 // Atomic counters for progress tracking
	bar       *progress.Bar          // Progress display (thread-safe)
}

// New creates an Indexer for one tree.
// minSize below 1 is raised to 1: zero-byte files are never indexed.
func New(root string, tree, maxDepth int, minSize int64, excludes []string, workers int, showProgress bool, errCh chan error) *Indexer {
	if minSize < 1 {
		minSize = 1
	}
	return &Indexer{
		root:         root,
		tree:         tree,
		maxDepth:     maxDepth,
		minSize:      minSize,
		excludes:     excludes,
		workers:      workers,
		showProgress: showProgress,
		errCh:        errCh,
	}
}

// stats tracks indexing progress using atomic counters for lock-free updates.
type stats struct {
	scannedFiles atomic.Int64 // Total files discovered (all walkers)
	matchedFiles atomic.Int64 // Files passing size/exclude filters
	scannedBytes atomic.Int64 // Total bytes across all scanned files
	matchedBytes atomic.Int64 // Bytes of matched files only
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Indexed %d (%s), kept %d files (%s) in %.1fs",
		s.scannedFiles.Load(), humanize.IBytes(uint64(s.scannedBytes.Load())),
		s.matchedFiles.Load(), humanize.IBytes(uint64(s.matchedBytes.Load())),
		time.Since(s.startTime).Seconds())
}

// Run executes the walk and returns the records, in nondeterministic order.
//
// Fails with ErrInvalidDirectory before any traversal if the root is not
// an existing directory.
func (ix *Indexer) Run() ([]*types.FileRecord, error) {
	root, err := filepath.Abs(ix.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDirectory, ix.root, err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDirectory, ix.root)
	}

	// Initialize runtime fields
	ix.walkerSem = types.NewSemaphore(ix.workers)
	ix.bar = progress.New(ix.showProgress, -1)
	ix.stats = &stats{startTime: time.Now()}
	ix.bar.Describe(ix.stats)
	ix.resultCh = make(chan *types.FileRecord, 1000) // Buffer smooths producer/consumer rates

	// Collector goroutine: single consumer aggregates all walker outputs.
	var results []*types.FileRecord
	collectorWg := sync.WaitGroup{}

	collectorWg.Add(1)
	go func() {
		for r := range ix.resultCh {
			results = append(results, r)
		}
		collectorWg.Done()
	}()

	ix.walkDirectory(root, 0)

	// Shutdown sequence: wait for producers, then signal consumer, then wait for consumer
	ix.walkerWg.Wait()
	close(ix.resultCh)
	collectorWg.Wait()

	ix.bar.Finish(ix.stats)
	return results, nil
}

// walkDirectory spawns a goroutine to process one directory and recursively
// spawn children. depth is the directory's depth below the root (root = 0);
// files inside a directory sit at depth+1.
func (ix *Indexer) walkDirectory(dir string, depth int) {
	ix.walkerWg.Add(1) // Increment BEFORE spawn to prevent race with Wait()
	go func() {
		defer ix.walkerWg.Done()

		// Semaphore limits concurrent directory reads
		ix.walkerSem.Acquire()
		defer ix.walkerSem.Release()

		files, subdirs, err := ix.listDirectory(dir)
		if err != nil {
			ix.sendError(err)
			return
		}

		for _, f := range files {
			ix.stats.scannedFiles.Add(1)
			ix.stats.scannedBytes.Add(f.Size)
			if f.Size >= ix.minSize && !ix.shouldExclude(f.Path) {
				ix.resultCh <- f
				ix.stats.matchedFiles.Add(1)
				ix.stats.matchedBytes.Add(f.Size)
			}
		}
		ix.bar.Describe(ix.stats)

		// Subdirectory contents sit at depth+2 relative to the root;
		// descend only while that stays within the bound.
		if ix.maxDepth > 0 && depth+2 > ix.maxDepth {
			return
		}
		for _, sub := range subdirs {
			ix.walkDirectory(sub, depth+1)
		}
	}()
}

// listDirectory reads a single directory, returning files and subdirectories.
//
// Uses batched ReadDir (1000 entries per batch) to handle large directories
// efficiently. This is the only place where directory I/O occurs -
// protected by walkerSem.
func (ix *Indexer) listDirectory(dirPath string) (files []*types.FileRecord, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			f, sub := ix.processEntry(dirPath, entry)
			if f != nil {
				files = append(files, f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return files, subdirs, nil
}

// processEntry processes a single directory entry, returning a record or
// subdirectory path. Returns (nil, "") for entries that should be skipped
// (symlinks, devices, excluded items).
func (ix *Indexer) processEntry(dirPath string, entry os.DirEntry) (file *types.FileRecord, subdir string) {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.IsDir() {
		if ix.shouldExclude(fullPath) {
			return nil, ""
		}
		return nil, fullPath
	}

	// Skip non-regular files (symlinks, devices, sockets, etc.)
	if !entry.Type().IsRegular() {
		return nil, ""
	}

	// Info() may trigger additional stat call (platform-dependent)
	info, err := entry.Info()
	if err != nil {
		return nil, "" // Skip files we can't stat (race condition, permissions)
	}

	return newFileRecord(fullPath, info, ix.tree), ""
}

// sendError sends an error to the errors channel if it's not nil.
func (ix *Indexer) sendError(err error) {
	if ix.errCh != nil {
		ix.errCh <- err
	}
}

// shouldExclude checks if a path matches any glob exclude pattern.
func (ix *Indexer) shouldExclude(path string) bool {
	if len(ix.excludes) == 0 {
		return false
	}
	base := filepath.Base(path)
	for _, pattern := range ix.excludes {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// Package prober computes content probes for candidate records.
//
// # Overview
//
// Probes are the expensive half of duplicate matching and run only on
// records that survived metadata narrowing. Two probes exist:
//
//   - headtail: digest of the first and last N bytes (default 10), a
//     cheap proxy for content equality (xxhash, not cryptographic)
//   - checksum: SHA-256 over the whole content, the final arbiter
//
// # Concurrency Model
//
// Records are probed by a fixed worker pool; a semaphore bounds
// concurrent open files. Results land in a per-index slice, so output
// order never depends on worker completion order. A record whose file
// cannot be read (permissions, vanished since indexing) is dropped from
// the survivor set and reported through the error channel - an expected
// outcome under concurrent filesystem mutation, never fatal.
package prober

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"

	"github.com/dupehound/dupehound/internal/probecache"
	"github.com/dupehound/dupehound/internal/progress"
	"github.com/dupehound/dupehound/internal/types"
)

// DefaultWindow is the default headtail probe window in bytes.
const DefaultWindow = 10

// blockSize is the read buffer size for full-content checksums (64KB).
const blockSize = 64 * 1024

// Prober computes headtail and checksum digests for record sets.
type Prober struct {
	workers      int
	window       int64      // headtail window (bytes at each end)
	showProgress bool       // Whether to display progress bar
	errCh        chan error // Non-fatal errors (unreadable files)
	cache        *probecache.Cache
}

// New creates a Prober. Pass a disabled cache (probecache.Open("")) to
// skip caching.
func New(workers, window int, showProgress bool, errCh chan error, cache *probecache.Cache) *Prober {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Prober{
		workers:      workers,
		window:       int64(window),
		showProgress: showProgress,
		errCh:        errCh,
		cache:        cache,
	}
}

// stats tracks probing progress.
type stats struct {
	what        string
	probedFiles atomic.Int64
	probedBytes atomic.Int64
	cachedFiles atomic.Int64
	failedFiles atomic.Int64
	startTime   time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("%s probed %d files (%s), %d cached, %d unreadable in %.1fs",
		s.what, s.probedFiles.Load(), humanize.IBytes(uint64(s.probedBytes.Load())),
		s.cachedFiles.Load(), s.failedFiles.Load(),
		time.Since(s.startTime).Seconds())
}

// EnsureHeadTail fills the HeadTail digest on every record that lacks
// one and returns the surviving records in input order. Unreadable
// records are dropped and reported.
func (p *Prober) EnsureHeadTail(records []*types.FileRecord) []*types.FileRecord {
	return p.run(records, "Headtail", probecache.KindHeadTail, p.window,
		func(r *types.FileRecord) string { return r.HeadTail },
		func(r *types.FileRecord, d string) { r.HeadTail = d },
		func(r *types.FileRecord) (string, int64, error) { return headTailDigest(r.Path, r.Size, p.window) },
	)
}

// EnsureChecksum fills the Checksum digest on every record that lacks
// one and returns the surviving records in input order. Unreadable
// records are dropped and reported.
func (p *Prober) EnsureChecksum(records []*types.FileRecord) []*types.FileRecord {
	return p.run(records, "Checksum", probecache.KindChecksum, 0,
		func(r *types.FileRecord) string { return r.Checksum },
		func(r *types.FileRecord, d string) { r.Checksum = d },
		func(r *types.FileRecord) (string, int64, error) { return checksumDigest(r.Path) },
	)
}

// run probes all records lacking a digest with a bounded worker pool.
// The failed slice is indexed, not appended, so survivor order matches
// input order regardless of completion order.
func (p *Prober) run(records []*types.FileRecord, what string, kind probecache.Kind, window int64,
	get func(*types.FileRecord) string,
	set func(*types.FileRecord, string),
	compute func(*types.FileRecord) (string, int64, error),
) []*types.FileRecord {
	bar := progress.New(p.showProgress, -1)
	st := &stats{what: what, startTime: time.Now()}
	bar.Describe(st)

	failed := make([]bool, len(records))
	sem := types.NewSemaphore(p.workers)
	var wg sync.WaitGroup

	for i, r := range records {
		if get(r) != "" {
			continue // already probed on an earlier pass
		}
		wg.Add(1)
		go func(i int, r *types.FileRecord) {
			defer wg.Done()
			sem.Acquire()
			defer sem.Release()

			if cached, err := p.cache.Lookup(r, kind, window); err == nil && cached != "" {
				set(r, cached)
				st.cachedFiles.Add(1)
				bar.Describe(st)
				return
			}

			digest, bytesRead, err := compute(r)
			if err != nil {
				failed[i] = true
				st.failedFiles.Add(1)
				p.sendError(fmt.Errorf("%s: %w", r.Path, err))
				return
			}
			set(r, digest)
			_ = p.cache.Store(r, kind, window, digest)

			st.probedFiles.Add(1)
			st.probedBytes.Add(bytesRead)
			bar.Describe(st)
		}(i, r)
	}
	wg.Wait()

	survivors := make([]*types.FileRecord, 0, len(records))
	for i, r := range records {
		if !failed[i] {
			survivors = append(survivors, r)
		}
	}

	bar.Finish(st)
	return survivors
}

// sendError sends an error to the errors channel if it's not nil.
func (p *Prober) sendError(err error) {
	if p.errCh != nil {
		p.errCh <- err
	}
}

// headTailDigest reads the first and last window bytes of the file and
// returns an xxhash digest over head then tail. For files shorter than
// two windows the reads overlap; the digest is still well-defined as the
// bytes that exist at each end.
func headTailDigest(path string, size, window int64) (digest string, bytesRead int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	n := min(window, size)
	head := make([]byte, n)
	if _, err := io.ReadFull(f, head); err != nil {
		return "", 0, err
	}

	tail := make([]byte, n)
	if _, err := f.ReadAt(tail, size-n); err != nil {
		return "", n, err
	}

	h := xxhash.New()
	_, _ = h.Write(head)
	_, _ = h.Write(tail)
	return strconv.FormatUint(h.Sum64(), 16), 2 * n, nil
}

// checksumDigest hashes the file's full content with SHA-256.
func checksumDigest(path string) (digest string, bytesRead int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	hasher := sha256.New()
	buf := make([]byte, blockSize)
	n, err := io.CopyBuffer(hasher, f, buf)
	if err != nil {
		return "", n, err
	}

	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

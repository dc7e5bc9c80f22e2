package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dupehound/dupehound/internal/config"
	"github.com/dupehound/dupehound/internal/executor"
	"github.com/dupehound/dupehound/internal/indexer"
	"github.com/dupehound/dupehound/internal/logging"
	"github.com/dupehound/dupehound/internal/matcher"
	"github.com/dupehound/dupehound/internal/probecache"
	"github.com/dupehound/dupehound/internal/prober"
	"github.com/dupehound/dupehound/internal/refdiff"
	"github.com/dupehound/dupehound/internal/types"
)

// options holds all CLI flags.
type options struct {
	// Match criteria (any combination; default size+headtail+checksum)
	bySize     bool
	byName     bool
	byExt      bool
	byTime     bool
	byHeadTail bool
	byChecksum bool
	byInode    bool

	// File operations (mutually exclusive; default --list)
	opList        bool
	opLink        bool
	opMove        bool
	opMoveBack    bool
	opHardlink    bool
	opRemove      bool
	opCopyUniques bool

	reference  string
	maxDepth   int
	minSizeStr string
	excludes   []string
	workers    int
	probeBytes int
	cacheFile  string
	configFile string
	noProgress bool
	dryRun     bool
	assumeYes  bool
	verbosity  int
}

// newRootCmd creates the dupehound command.
func newRootCmd() *cobra.Command {
	defaults := config.Default()
	opts := &options{
		minSizeStr: defaults.MinSize,
		workers:    defaults.Workers,
		probeBytes: defaults.ProbeBytes,
	}

	cmd := &cobra.Command{
		Use:     "dupehound [flags] TARGET",
		Short:   "Find duplicate files and act on them",
		Version: version + " (" + commit + ")",
		Long: `Finds probable duplicate files under TARGET using progressively more
expensive comparisons (metadata first, content probes last), then runs
exactly one operation over the duplicate groups found.

Operations that mutate the filesystem print the full listing and ask
for confirmation first; declining aborts before any change. Finding no
duplicates is a normal, successful outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runRoot(args[0], opts, cmd)
		},
	}

	f := cmd.Flags()

	f.BoolVar(&opts.bySize, "size", false, "Match files by size")
	f.BoolVar(&opts.byName, "name", false, "Match files by name (without extension)")
	f.BoolVar(&opts.byExt, "ext", false, "Match files by extension")
	f.BoolVar(&opts.byTime, "time", false, "Match files by modification time (exact)")
	f.BoolVar(&opts.byHeadTail, "headtail", false, "Match files by a digest of their first and last bytes")
	f.BoolVar(&opts.byChecksum, "checksum", false, "Match files by full-content checksum")
	f.BoolVar(&opts.byInode, "inode", false, "Discover hard links (group by inode) instead of content matching")

	f.BoolVar(&opts.opList, "list", false, "List duplicate groups (default)")
	f.BoolVar(&opts.opLink, "link", false, "Create symbolic links to all duplicates under LINKS_TO_DUPLICATES/")
	f.BoolVar(&opts.opMove, "move", false, "Move all duplicates into DUPLICATES/ under reversible names")
	f.BoolVar(&opts.opMoveBack, "move-back", false, "Move files in DUPLICATES/ back to their original locations")
	f.BoolVar(&opts.opHardlink, "hardlink", false, "Replace extras with hard links to their group master (implies --checksum)")
	f.BoolVar(&opts.opRemove, "remove", false, "Remove extras, keeping each group master (implies --checksum)")
	f.BoolVar(&opts.opCopyUniques, "copy-uniques", false, "Copy files from --reference that are not present in TARGET")
	cmd.MarkFlagsMutuallyExclusive("list", "link", "move", "move-back", "hardlink", "remove", "copy-uniques")

	f.StringVar(&opts.reference, "reference", "", "Reference directory for --copy-uniques")
	f.IntVarP(&opts.maxDepth, "max-depth", "d", 0, "Maximum search depth, 0 for unbounded (files in TARGET are depth 1)")
	f.StringVarP(&opts.minSizeStr, "min-size", "m", opts.minSizeStr, "Minimum file size (e.g., 100, 1K, 10M)")
	f.StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Glob patterns to exclude")
	f.IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel workers")
	f.IntVar(&opts.probeBytes, "probe-bytes", opts.probeBytes, "Bytes read at each end for the headtail probe")
	f.StringVar(&opts.cacheFile, "cache-file", "", "Path to probe digest cache file (enables caching)")
	f.StringVar(&opts.configFile, "config", "", "Config file (default: XDG config dir)")
	f.BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	f.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Preview changes without executing")
	f.BoolVarP(&opts.assumeYes, "yes", "y", false, "Assume yes at the confirmation prompt")
	f.CountVarP(&opts.verbosity, "verbose", "v", "Increase log verbosity (repeatable)")

	return cmd
}

// drainErrors consumes errors from a channel and writes them to stderr.
// Clears progress bar line before printing to avoid visual collision.
func drainErrors(errs <-chan error) {
	for err := range errs {
		fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", err)
	}
}

// runRoot executes the pipeline: index → match → select → execute.
func runRoot(target string, opts *options, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	applyConfig(cmd, opts, cfg)

	// Records carry absolute paths, so the roots must be absolute too
	// for relative-path computations in the executor.
	if target, err = filepath.Abs(target); err != nil {
		return err
	}
	if opts.reference != "" {
		if opts.reference, err = filepath.Abs(opts.reference); err != nil {
			return err
		}
	}

	logging.Setup(opts.verbosity)
	log := logging.GetLogger("main")

	minSize, err := parseSize(opts.minSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --min-size: %w", err)
	}
	if err := validateGlobPatterns(opts.excludes); err != nil {
		return fmt.Errorf("invalid --exclude: %w", err)
	}
	if opts.probeBytes < 1 {
		return fmt.Errorf("invalid --probe-bytes: must be at least 1")
	}
	if opts.maxDepth < 0 {
		return fmt.Errorf("invalid --max-depth: must be 0 or positive")
	}
	if opts.opCopyUniques && opts.reference == "" {
		return fmt.Errorf("--copy-uniques requires --reference")
	}
	if !opts.opCopyUniques && opts.reference != "" {
		return fmt.Errorf("--reference is only valid with --copy-uniques")
	}

	showProgress := !opts.noProgress

	// Shared error channel for non-fatal per-file errors
	errCh := make(chan error, 100)
	go drainErrors(errCh)
	defer close(errCh)

	exec := executor.New(target, opts.dryRun, opts.assumeYes, showProgress, errCh)

	// MoveBack needs no scan: its input is the DUPLICATES directory.
	if opts.opMoveBack {
		if info, err := os.Stat(target); err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s", indexer.ErrInvalidDirectory, target)
		}
		return finish(exec.MoveBack(), log)
	}

	criteria := buildCriteria(opts)
	if opts.opHardlink || opts.opRemove {
		// Never act destructively on probabilistic-only matches
		criteria = matcher.EnsureChecksum(criteria)
	}

	cache, err := probecache.Open(opts.cacheFile)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	p := prober.New(opts.workers, opts.probeBytes, showProgress, errCh, cache)
	m := matcher.New(p)

	// Phase 1: index
	records, err := indexer.New(target, types.TreeTarget, opts.maxDepth, minSize,
		opts.excludes, opts.workers, showProgress, errCh).Run()
	if err != nil {
		return err
	}

	if opts.opCopyUniques {
		refRecords, err := indexer.New(opts.reference, types.TreeReference, opts.maxDepth,
			minSize, opts.excludes, opts.workers, showProgress, errCh).Run()
		if err != nil {
			return err
		}
		merged := types.Finalize(append(records, refRecords...))
		uniques, _ := refdiff.Diff(merged, m, criteria)
		if len(uniques) == 0 {
			log.Info().Msg("No new files in reference tree")
			return nil
		}
		return finish(exec.CopyUniques(uniques, opts.reference), log)
	}

	types.Finalize(records)

	// Phase 2+3: narrow candidates, probing survivors as needed
	groups := m.Run(records, criteria)
	if len(groups) == 0 {
		log.Info().Msg("No duplicates found")
		return nil
	}

	// Phase 4: execute the selected operation
	switch {
	case opts.opLink:
		err = exec.SoftLink(groups)
	case opts.opMove:
		err = exec.Move(groups)
	case opts.opHardlink:
		err = exec.HardlinkExtras(groups)
	case opts.opRemove:
		err = exec.RemoveExtras(groups)
	default:
		err = exec.List(groups)
	}
	return finish(err, log)
}

// applyConfig fills in config-file values for flags the user didn't set.
func applyConfig(cmd *cobra.Command, opts *options, cfg config.Config) {
	f := cmd.Flags()
	if !f.Changed("workers") && cfg.Workers > 0 {
		opts.workers = cfg.Workers
	}
	if !f.Changed("min-size") && cfg.MinSize != "" {
		opts.minSizeStr = cfg.MinSize
	}
	if !f.Changed("probe-bytes") && cfg.ProbeBytes > 0 {
		opts.probeBytes = cfg.ProbeBytes
	}
	if !f.Changed("exclude") && len(cfg.Exclude) > 0 {
		opts.excludes = cfg.Exclude
	}
	if !f.Changed("cache-file") && cfg.CacheFile != "" {
		opts.cacheFile = cfg.CacheFile
	}
	if !f.Changed("no-progress") && cfg.NoProgress {
		opts.noProgress = true
	}
}

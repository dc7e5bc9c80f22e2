package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/dupehound/dupehound/internal/executor"
	"github.com/dupehound/dupehound/internal/matcher"
)

// parseSize parses a human-readable size string into bytes.
// Supports formats: "100", "1K", "1MB", "1GiB", etc.
func parseSize(s string) (int64, error) {
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(bytes), nil
}

// validateGlobPatterns checks that all patterns are valid filepath.Match patterns.
func validateGlobPatterns(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// buildCriteria translates criterion flags into the matcher's criteria
// list. With no criterion flags set, the default ladder is
// size → headtail → checksum.
func buildCriteria(opts *options) []matcher.Criterion {
	var criteria []matcher.Criterion
	if opts.byInode {
		criteria = append(criteria, matcher.CritInode)
	}
	if opts.bySize {
		criteria = append(criteria, matcher.CritSize)
	}
	if opts.byName {
		criteria = append(criteria, matcher.CritName)
	}
	if opts.byExt {
		criteria = append(criteria, matcher.CritExt)
	}
	if opts.byTime {
		criteria = append(criteria, matcher.CritTime)
	}
	if opts.byHeadTail {
		criteria = append(criteria, matcher.CritHeadTail)
	}
	if opts.byChecksum {
		criteria = append(criteria, matcher.CritChecksum)
	}
	if len(criteria) == 0 {
		criteria = []matcher.Criterion{matcher.CritSize, matcher.CritHeadTail, matcher.CritChecksum}
	}
	return criteria
}

// finish maps a declined confirmation to a normal, successful exit.
func finish(err error, log zerolog.Logger) error {
	if errors.Is(err, executor.ErrDeclined) {
		log.Info().Msg("Aborted by user, nothing changed")
		return nil
	}
	return err
}

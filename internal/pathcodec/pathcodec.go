// Package pathcodec reversibly encodes tree-relative paths as flat names.
//
// A relocated file keeps its original location in its own name:
//
//	photos/2019/cat.jpg  →  000042 =DUP=photos;2019;cat.jpg
//
// The zero-padded counter keeps relocated names unique and ordered; the
// marker separates the counter from the encoded path; the delimiter
// substitutes the path separator. Decode reverses the transformation
// exactly, which is what makes move/move-back a lossless round trip.
//
// Names that cannot be encoded reversibly are refused, never truncated:
// paths containing the delimiter, tokens exceeding the filesystem name
// limit, and names that already carry the marker (re-encoding would
// compound prefixes).
package pathcodec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// Marker unambiguously separates the counter prefix from the
	// encoded path.
	Marker = "=DUP="
	// Delimiter substitutes the path separator inside the token.
	Delimiter = ";"
	// maxNameLen is the usual filesystem limit for one name component.
	maxNameLen = 255
)

var (
	// ErrTooLong means the encoded token would exceed the filesystem
	// name limit; the file is skipped, since truncation would break
	// reversibility.
	ErrTooLong = errors.New("encoded name exceeds filesystem limit")
	// ErrDelimiterInPath means the relative path itself contains the
	// reserved delimiter and could not be decoded unambiguously.
	ErrDelimiterInPath = errors.New("path contains reserved delimiter")
	// ErrAlreadyEncoded means the name already carries the marker;
	// encoding again would compound prefixes.
	ErrAlreadyEncoded = errors.New("name is already encoded")
	// ErrNotEncoded means a token without the marker was passed to
	// Decode.
	ErrNotEncoded = errors.New("name is not an encoded path")
)

// Encode converts path, which must live under root, into a flat name
// carrying seq as its counter prefix.
func Encode(root, path string, seq int) (string, error) {
	if IsEncoded(filepath.Base(path)) {
		return "", fmt.Errorf("%w: %s", ErrAlreadyEncoded, path)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is not under %s", path, root)
	}
	if strings.Contains(rel, Delimiter) {
		return "", fmt.Errorf("%w: %s", ErrDelimiterInPath, rel)
	}

	token := fmt.Sprintf("%06d %s%s", seq, Marker, strings.ReplaceAll(rel, string(filepath.Separator), Delimiter))
	if len(token) > maxNameLen {
		return "", fmt.Errorf("%w: %s", ErrTooLong, rel)
	}
	return token, nil
}

// Decode reverses Encode, resolving the original path under root.
func Decode(token, root string) (string, error) {
	i := strings.Index(token, Marker)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrNotEncoded, token)
	}

	rel := strings.ReplaceAll(token[i+len(Marker):], Delimiter, string(filepath.Separator))
	if rel == "" {
		return "", fmt.Errorf("%w: empty path in %s", ErrNotEncoded, token)
	}
	return filepath.Join(root, rel), nil
}

// IsEncoded reports whether name carries the marker.
func IsEncoded(name string) bool {
	return strings.Contains(name, Marker)
}

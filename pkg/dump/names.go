package dump

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// queryMarker starts the query-tag suffix the collector appends to re-collected dumps.
const queryMarker = "_q="

var followName = regexp.MustCompile(`^(.+) \(([^()]*)\)\.txt$`)

// IsDumpName reports whether a directory entry name looks like a dump file.
func IsDumpName(name string) bool {
	return strings.HasPrefix(name, "@") && strings.HasSuffix(name, ".txt") && !strings.HasPrefix(name, "--")
}

// CanonicalName strips a query-tag suffix: "@a-1_q=xyz.txt" becomes "@a-1.txt".
func CanonicalName(name string) string {
	base := baseName(name)
	i := strings.Index(base, queryMarker)
	if i < 0 {
		return name
	}
	return name[:len(name)-len(base)] + base[:i] + ".txt"
}

// Classify derives the dump kind and the owning account from a file name.
// "<account> (Followers).txt" and "<account> (Following).txt" are follow lists; any other
// parenthesized tag is ErrInvalidKind. Everything else is a comments dump whose creator is
// the part of the name before the first "-".
func Classify(name string) (Kind, string, error) {
	base := baseName(name)
	if !IsDumpName(base) {
		return "", "", fmt.Errorf("%s: %w", base, ErrNotDump)
	}
	if m := followName.FindStringSubmatch(base); m != nil {
		switch kind := Kind(m[2]); kind {
		case KindFollowers, KindFollowing:
			return kind, m[1], nil
		default:
			return "", "", fmt.Errorf("%s: %q: %w", base, m[2], ErrInvalidKind)
		}
	}
	creator, _, _ := strings.Cut(strings.TrimSuffix(base, ".txt"), "-")
	return KindComments, creator, nil
}

// Canonicalize renames the file at path to its canonical name and returns the new path.
// If a file with the canonical name already exists, the duplicate is left untouched and the
// canonical path is still returned so the caller can consult the ledger with it.
func Canonicalize(path string, logger *slog.Logger) (string, error) {
	canonical := CanonicalName(path)
	if canonical == path {
		return path, nil
	}
	if _, err := os.Stat(canonical); err == nil {
		if logger != nil {
			logger.Debug("canonical dump already present", "duplicate", path, "canonical", canonical)
		}
		return canonical, nil
	}

	err := retry.Do(
		func() error { return os.Rename(path, canonical) },
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			if logger != nil {
				logger.Debug("retrying rename", "attempt", n+1, "path", path, "error", err)
			}
		}),
	)
	if err != nil {
		return "", fmt.Errorf("rename %s: %w", path, err)
	}
	if logger != nil {
		logger.Info("canonicalized dump", "from", filepath.Base(path), "to", filepath.Base(canonical))
	}
	return canonical, nil
}

// isTransient reports whether a filesystem error may clear up on its own
// (for example a virus scanner briefly holding the file open).
func isTransient(err error) bool {
	return !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission)
}

func baseName(name string) string {
	return filepath.Base(filepath.ToSlash(name))
}

// Package ledger records which dump files have already been merged into the store.
//
// The ledger is an append-only text file with one canonical source path per line.
// It is read at most once per process; afterwards lookups are served from memory
// and new entries are appended to both.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Ledger is the registry of merged dumps. It is not safe for concurrent use.
type Ledger struct {
	logger *slog.Logger
	seen   map[string]struct{}
	path   string
	loaded bool
}

// New returns a Ledger backed by the file at path. The file is not read until first use.
func New(path string, opts ...Option) *Ledger {
	l := &Ledger{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key normalizes a source path into the form stored in the ledger.
func Key(source string) string {
	return filepath.ToSlash(filepath.Clean(source))
}

// WasMerged reports whether source has been recorded.
func (l *Ledger) WasMerged(source string) (bool, error) {
	if err := l.load(); err != nil {
		return false, err
	}
	_, ok := l.seen[Key(source)]
	return ok, nil
}

// Record appends source to the ledger. Recording a known source is a no-op.
func (l *Ledger) Record(source string) error {
	if err := l.load(); err != nil {
		return err
	}
	key := Key(source)
	if _, ok := l.seen[key]; ok {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if _, err := f.WriteString(key + "\n"); err != nil {
		_ = f.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close() //nolint:errcheck // sync error takes precedence
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}

	l.seen[key] = struct{}{}
	l.logger.Debug("recorded dump", "source", key)
	return nil
}

// Len returns the number of distinct recorded sources.
func (l *Ledger) Len() (int, error) {
	if err := l.load(); err != nil {
		return 0, err
	}
	return len(l.seen), nil
}

func (l *Ledger) load() error {
	if l.loaded {
		return nil
	}
	l.seen = map[string]struct{}{}

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			l.seen[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	l.loaded = true
	l.logger.Debug("ledger loaded", "path", l.path, "entries", len(l.seen))
	return nil
}

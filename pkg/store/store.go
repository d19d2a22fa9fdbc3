// Package store persists whole JSON documents (the profile store, hashtag statistics,
// community summaries) with load-entire / write-entire semantics.
//
// Writes go through a Writer. The default AtomicWriter writes a temporary file in the
// target directory, syncs it and renames it over the target, so a failed save never
// leaves a partially written document behind. Several documents that must change
// together are staged first and committed with Commit.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Writer replaces the file at path with data.
type Writer interface {
	WriteFile(path string, data []byte) error
}

// Option configures a Document.
type Option func(*config)

type config struct {
	writer Writer
	logger *slog.Logger
}

// WithWriter sets the write strategy.
func WithWriter(w Writer) Option {
	return func(c *config) { c.writer = w }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Document is a JSON document of type T stored at a fixed path.
type Document[T any] struct {
	writer Writer
	logger *slog.Logger
	empty  func() T
	path   string
}

// Open returns a Document at path. empty produces the value Load returns when the
// file does not exist yet or cannot be decoded.
func Open[T any](path string, empty func() T, opts ...Option) *Document[T] {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.writer == nil {
		cfg.writer = &AtomicWriter{Logger: cfg.logger}
	}
	return &Document[T]{path: path, empty: empty, writer: cfg.writer, logger: cfg.logger}
}

// Path returns the document location.
func (d *Document[T]) Path() string {
	return d.path
}

// Load reads the whole document. A missing or corrupt file yields an empty value;
// any other read failure is returned.
func (d *Document[T]) Load() (T, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return d.empty(), nil
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("read %s: %w", d.path, err)
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return d.empty(), nil
	}
	v := d.empty()
	if err := json.Unmarshal(data, &v); err != nil {
		d.logger.Warn("document is corrupt, starting empty", "path", d.path, "error", err)
		return d.empty(), nil
	}
	return v, nil
}

// Save pretty-prints v and replaces the document.
func (d *Document[T]) Save(v T) error {
	data, err := d.encode(v)
	if err != nil {
		return err
	}
	if err := d.writer.WriteFile(d.path, data); err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	return nil
}

func (d *Document[T]) encode(v T) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", d.path, err)
	}
	return append(data, '\n'), nil
}

// AtomicWriter writes to a temporary sibling file and renames it into place.
type AtomicWriter struct {
	Logger *slog.Logger
	Perm   fs.FileMode
}

// WriteFile implements Writer.
func (w *AtomicWriter) WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error takes precedence
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	perm := w.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	return rename(w.Logger, tmp.Name(), path)
}

func rename(logger *slog.Logger, from, to string) error {
	return retry.Do(
		func() error { return os.Rename(from, to) },
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.MaxJitter(25*time.Millisecond),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, fs.ErrPermission) }),
		retry.OnRetry(func(n uint, err error) {
			if logger != nil {
				logger.Debug("retrying rename", "attempt", n+1, "path", to, "error", err)
			}
		}),
	)
}

// Pending is an encoded document written beside its target but not yet visible.
type Pending struct {
	logger *slog.Logger
	path   string
	tmp    string
}

// Stage encodes v and writes it to a hidden sibling of the document through the
// configured Writer. The document itself is untouched until Commit.
func (d *Document[T]) Stage(v T) (*Pending, error) {
	data, err := d.encode(v)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(d.path)+".*.pending")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", d.path, err)
	}
	tmp := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("stage %s: %w", d.path, err)
	}
	if err := d.writer.WriteFile(tmp, data); err != nil {
		_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("write %s: %w", d.path, err)
	}
	return &Pending{logger: d.logger, path: d.path, tmp: tmp}, nil
}

// Commit renames every staged document into place. Each rename is atomic; a failure
// stops the commit and removes the documents not yet renamed.
func Commit(pending ...*Pending) error {
	for i, p := range pending {
		if err := rename(p.logger, p.tmp, p.path); err != nil {
			Discard(pending[i:]...)
			return fmt.Errorf("commit %s: %w", p.path, err)
		}
	}
	return nil
}

// Discard removes staged documents without touching their targets.
func Discard(pending ...*Pending) {
	for _, p := range pending {
		if err := os.Remove(p.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("failed to remove staged document", "path", p.tmp, "error", err)
		}
	}
}

var _ Writer = (*AtomicWriter)(nil)

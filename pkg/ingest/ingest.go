// Package ingest merges dump files into the profile store, one file at a time.
//
// Every file goes through the same transaction: canonicalize the name, consult the
// ledger, parse, load both store documents, merge in memory, stage both documents,
// rename them into place and finally record the dump. A failure at any step leaves
// the dump unrecorded so the next run retries it; merging is idempotent, so a retry
// after a crash between the rename and the ledger append changes nothing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/codeGROOVE-dev/sociograph/pkg/dump"
	"github.com/codeGROOVE-dev/sociograph/pkg/ledger"
	"github.com/codeGROOVE-dev/sociograph/pkg/merge"
	"github.com/codeGROOVE-dev/sociograph/pkg/parsecache"
	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
	"github.com/codeGROOVE-dev/sociograph/pkg/store"
)

// Default file names inside the data directory.
const (
	ProfilesFile = "profiles.json"
	HashtagsFile = "hashtags.json"
	LedgerFile   = "ledger.txt"
)

// Outcome describes what happened to one dump file.
type Outcome int

// Outcomes of File.
const (
	Merged Outcome = iota
	Skipped
)

func (o Outcome) String() string {
	if o == Skipped {
		return "skipped"
	}
	return "merged"
}

// Report summarizes a directory run.
type Report struct {
	Merged  int
	Skipped int
	Failed  int
}

// Option configures an Ingester.
type Option func(*config)

type config struct {
	logger *slog.Logger
	cache  parsecache.Cacher
	writer store.Writer
	policy merge.CountPolicy
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithParseCache sets the cache consulted before parsing a dump.
func WithParseCache(cache parsecache.Cacher) Option {
	return func(c *config) { c.cache = cache }
}

// WithCountPolicy sets how follow-list counts are updated.
func WithCountPolicy(p merge.CountPolicy) Option {
	return func(c *config) { c.policy = p }
}

// WithWriter overrides the write strategy of both store documents.
func WithWriter(w store.Writer) Option {
	return func(c *config) { c.writer = w }
}

// Ingester owns the store documents and ledger of one data directory.
type Ingester struct {
	logger   *slog.Logger
	cache    parsecache.Cacher
	profiles *store.Document[profile.Profiles]
	hashtags *store.Document[profile.HashtagStats]
	ledger   *ledger.Ledger
	policy   merge.CountPolicy
}

// New returns an Ingester persisting into dataDir.
func New(dataDir string, opts ...Option) *Ingester {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	storeOpts := []store.Option{store.WithLogger(cfg.logger)}
	if cfg.writer != nil {
		storeOpts = append(storeOpts, store.WithWriter(cfg.writer))
	}
	return &Ingester{
		logger:   cfg.logger,
		cache:    cfg.cache,
		policy:   cfg.policy,
		profiles: store.Open(filepath.Join(dataDir, ProfilesFile), func() profile.Profiles { return profile.Profiles{} }, storeOpts...),
		hashtags: store.Open(filepath.Join(dataDir, HashtagsFile), func() profile.HashtagStats { return profile.HashtagStats{} }, storeOpts...),
		ledger:   ledger.New(filepath.Join(dataDir, LedgerFile), ledger.WithLogger(cfg.logger)),
	}
}

// Ledger exposes the merged-dump registry.
func (in *Ingester) Ledger() *ledger.Ledger {
	return in.ledger
}

// Profiles loads the current profile store.
func (in *Ingester) Profiles() (profile.Profiles, error) {
	return in.profiles.Load()
}

// Hashtags loads the current hashtag statistics.
func (in *Ingester) Hashtags() (profile.HashtagStats, error) {
	return in.hashtags.Load()
}

// File merges one dump file.
func (in *Ingester) File(ctx context.Context, path string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Skipped, err
	}

	canonical, err := dump.Canonicalize(path, in.logger)
	if err != nil {
		return Skipped, fmt.Errorf("canonicalize %s: %w", path, err)
	}
	merged, err := in.ledger.WasMerged(canonical)
	if err != nil {
		return Skipped, err
	}
	if merged {
		in.logger.Debug("already merged", "source", canonical)
		return Skipped, nil
	}

	content, err := os.ReadFile(canonical)
	if err != nil {
		return Skipped, fmt.Errorf("read dump: %w", err)
	}
	d, err := parsecache.Parse(ctx, in.cache, canonical, content, in.logger)
	if err != nil {
		return Skipped, fmt.Errorf("parse %s: %w", canonical, err)
	}

	p, err := in.profiles.Load()
	if err != nil {
		return Skipped, fmt.Errorf("load profiles: %w", err)
	}
	stats, err := in.hashtags.Load()
	if err != nil {
		return Skipped, fmt.Errorf("load hashtags: %w", err)
	}
	if err := merge.Apply(p, stats, d, merge.Options{CountPolicy: in.policy}); err != nil {
		return Skipped, err
	}
	if err := in.save(p, stats, d.Kind == dump.KindComments); err != nil {
		return Skipped, err
	}
	if err := in.ledger.Record(canonical); err != nil {
		return Skipped, fmt.Errorf("record %s: %w", canonical, err)
	}

	in.logger.Info("merged dump", "source", d.Source, "kind", d.Kind, "account", d.Account,
		"comments", len(d.Comments), "users", len(d.Users))
	return Merged, nil
}

// save stages both documents before renaming either, so a failed write leaves the
// previous store in place.
func (in *Ingester) save(p profile.Profiles, stats profile.HashtagStats, withHashtags bool) error {
	pending, err := in.profiles.Stage(p)
	if err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	staged := []*store.Pending{pending}
	if withHashtags {
		tags, err := in.hashtags.Stage(stats)
		if err != nil {
			store.Discard(staged...)
			return fmt.Errorf("save hashtags: %w", err)
		}
		staged = append(staged, tags)
	}
	if err := store.Commit(staged...); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

// Directory merges every dump file in dir in name order. A file that fails is logged,
// counted and left for the next run; the remaining files are still processed.
// An unreadable directory or a cancelled context aborts the run.
func (in *Ingester) Directory(ctx context.Context, dir string) (Report, error) {
	var r Report
	entries, err := os.ReadDir(dir)
	if err != nil {
		return r, fmt.Errorf("read directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !dump.IsDumpName(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return r, err
		}

		path := filepath.Join(dir, e.Name())
		outcome, err := in.File(ctx, path)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return r, err
		case err != nil:
			r.Failed++
			in.logger.Warn("dump not merged", "path", path, "error", err)
		case outcome == Skipped:
			r.Skipped++
		default:
			r.Merged++
		}
	}

	in.logger.Info("directory ingested", "dir", dir, "merged", r.Merged, "skipped", r.Skipped, "failed", r.Failed)
	return r, nil
}

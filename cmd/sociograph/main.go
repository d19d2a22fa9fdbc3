// Command sociograph builds a social graph from scraped interaction dumps.
//
// Usage:
//
//	sociograph ingest [options] <dump-dir>...   # merge dumps into the profile store
//	sociograph communities [options]            # partition the graph, write communities.json
//	sociograph export [options]                 # Cytoscape CSVs and optional Neo4j export
//	sociograph status [options]                 # store statistics
//
// Flag defaults come from SOCIOGRAPH_* environment variables, which may be set in a .env file.
package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/codeGROOVE-dev/sociograph/pkg/community"
	"github.com/codeGROOVE-dev/sociograph/pkg/cytoscape"
	"github.com/codeGROOVE-dev/sociograph/pkg/ingest"
	"github.com/codeGROOVE-dev/sociograph/pkg/merge"
	"github.com/codeGROOVE-dev/sociograph/pkg/neo4jsink"
	"github.com/codeGROOVE-dev/sociograph/pkg/parsecache"
)

const communitiesFile = "communities.json"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "ingest":
		err = runIngest(ctx, cfg, args)
	case "communities":
		err = runCommunities(ctx, cfg, args)
	case "export":
		err = runExport(ctx, cfg, args)
	case "status":
		err = runStatus(cfg, args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		usage()
		os.Exit(2) //nolint:gocritic // exitAfterDefer is acceptable in main
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: sociograph <command> [options]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	fmt.Fprintln(os.Stderr, "  ingest <dir>...  merge dump files (@creator-post.txt, @account (Followers|Following).txt)")
	fmt.Fprintln(os.Stderr, "  communities      detect communities and write communities.json")
	fmt.Fprintln(os.Stderr, "  export           write Cytoscape CSV tables, optionally push to Neo4j")
	fmt.Fprintln(os.Stderr, "  status           show store statistics")
	fmt.Fprintln(os.Stderr, "\nRun 'sociograph <command> -h' for command options.")
}

// common holds the flags every subcommand accepts.
type common struct {
	dataDir *string
	debug   *bool
	verbose *bool
}

func newFlagSet(name string, cfg *config) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs, &common{
		dataDir: fs.String("data", cfg.DataDir, "directory holding profiles.json, hashtags.json and ledger.txt"),
		debug:   fs.Bool("debug", false, "enable debug logging"),
		verbose: fs.Bool("v", false, "verbose logging (same as -debug)"),
	}
}

func (c *common) logger() *slog.Logger {
	logLevel := slog.LevelInfo
	if *c.debug || *c.verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func weightFlags(fs *flag.FlagSet) *community.Weights {
	d := community.DefaultWeights()
	w := &community.Weights{}
	fs.Float64Var(&w.Follow, "w-follow", d.Follow, "edge weight per follow")
	fs.Float64Var(&w.Comment, "w-comment", d.Comment, "edge weight per commented-on relation")
	fs.Float64Var(&w.Hashtag, "w-hashtag", d.Hashtag, "edge weight per shared hashtag, per direction")
	return w
}

func runIngest(ctx context.Context, cfg *config, args []string) error {
	fs, c := newFlagSet("ingest", cfg)
	noCache := fs.Bool("no-cache", false, "disable the parsed dump cache")
	cacheTTL := fs.Duration("cache-ttl", cfg.CacheTTL, "parsed dump cache time-to-live")
	policy := fs.String("count-policy", "max", "follow count update policy: max or latest")
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	logger := c.logger()

	if fs.NArg() < 1 {
		return errors.New("ingest requires at least one dump directory")
	}
	countPolicy := merge.CountMax
	switch *policy {
	case "max":
	case "latest":
		countPolicy = merge.CountLatest
	default:
		return fmt.Errorf("unknown count policy %q", *policy)
	}

	opts := []ingest.Option{ingest.WithLogger(logger), ingest.WithCountPolicy(countPolicy)}
	var cache *parsecache.Cache
	if !*noCache {
		var err error
		cache, err = parsecache.Open(cfg.CacheDir, parsecache.WithTTL(*cacheTTL))
		if err != nil {
			logger.Warn("failed to initialize parse cache, continuing without cache", "error", err)
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Warn("failed to close cache", "error", err)
				}
			}()
			opts = append(opts, ingest.WithParseCache(cache))
			logger.Debug("parse cache initialized", "dir", cfg.CacheDir, "ttl", cacheTTL.String())
		}
	}

	in := ingest.New(*c.dataDir, opts...)
	var total ingest.Report
	for _, dir := range fs.Args() {
		r, err := in.Directory(ctx, dir)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			logger.Error("skipping directory", "dir", dir, "error", err)
			continue
		}
		total.Merged += r.Merged
		total.Skipped += r.Skipped
		total.Failed += r.Failed
	}

	if cache != nil {
		st := cache.Stats()
		logger.Debug("parse cache", "hits", st.Hits, "misses", st.Misses)
	}
	fmt.Printf("merged %s dumps, skipped %s already merged, %s failed\n",
		humanize.Comma(int64(total.Merged)), humanize.Comma(int64(total.Skipped)), humanize.Comma(int64(total.Failed)))
	return nil
}

func runCommunities(ctx context.Context, cfg *config, args []string) error {
	fs, c := newFlagSet("communities", cfg)
	weights := weightFlags(fs)
	mode := fs.String("mode", "undirected", "graph mode: undirected or directed")
	resolution := fs.Float64("resolution", 1, "modularity resolution")
	seed := fs.Uint64("seed", cfg.Seed, "random seed for the Louvain method (0 = nondeterministic)")
	out := fs.String("out", "", "summary output path (default <data>/communities.json)")
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	logger := c.logger()

	m, err := community.ParseMode(*mode)
	if err != nil {
		return err
	}
	p, err := ingest.New(*c.dataDir, ingest.WithLogger(logger)).Profiles()
	if err != nil {
		return err
	}

	e, err := community.New(community.Config{
		Weights:     *weights,
		Mode:        m,
		Partitioner: community.Louvain{Resolution: *resolution, Seed: *seed},
	}, community.WithLogger(logger))
	if err != nil {
		return err
	}
	start := time.Now()
	part, err := e.Extract(ctx, p)
	if err != nil {
		return fmt.Errorf("extract communities: %w", err)
	}
	logger.Debug("partitioned", "took", time.Since(start).String())

	path := cmp.Or(*out, filepath.Join(*c.dataDir, communitiesFile))
	if err := community.SaveSummaries(path, community.Summarize(p, part)); err != nil {
		return err
	}

	fmt.Printf("%s users in %s communities (modularity %.4f), written to %s\n",
		humanize.Comma(int64(len(part.Membership))), humanize.Comma(int64(len(part.Communities))), part.Modularity, path)
	for id, members := range part.Communities[:min(10, len(part.Communities))] {
		fmt.Printf("  community %d: %s members\n", id, humanize.Comma(int64(len(members))))
	}
	return nil
}

func runExport(ctx context.Context, cfg *config, args []string) error {
	fs, c := newFlagSet("export", cfg)
	weights := weightFlags(fs)
	summaries := fs.String("communities", "", "community summary path (default <data>/communities.json)")
	csvDir := fs.String("csv", "", "CSV output directory (default <data>/cytoscape)")
	only := fs.Int("community", -1, "restrict interaction and label tables to one community id")
	anchorsPath := fs.String("anchors", "", "anchor label definitions (JSON) for labels.csv")
	damping := fs.Float64("damping", 0.85, "PageRank damping factor")
	toNeo4j := fs.Bool("neo4j", false, "also write the graph to Neo4j (SOCIOGRAPH_NEO4J_*)")
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	logger := c.logger()

	if err := weights.Validate(); err != nil {
		return err
	}
	p, err := ingest.New(*c.dataDir, ingest.WithLogger(logger)).Profiles()
	if err != nil {
		return err
	}
	s, err := community.LoadSummaries(cmp.Or(*summaries, filepath.Join(*c.dataDir, communitiesFile)))
	if err != nil {
		return err
	}
	if len(s) == 0 {
		return errors.New("no communities found; run 'sociograph communities' first")
	}
	part := s.Partition(community.Weigh(p, *weights))
	ranks := community.PageRank(part, *damping, 1e-6)

	var members []string
	communityColor := ""
	if *only >= 0 {
		if *only >= len(part.Communities) {
			return fmt.Errorf("community %d does not exist", *only)
		}
		members = part.Communities[*only]
		communityColor = cytoscape.Color(*only)
	}

	dir := cmp.Or(*csvDir, filepath.Join(*c.dataDir, "cytoscape"))
	if err := cytoscape.WriteFile(filepath.Join(dir, "interactions.csv"), cytoscape.Interactions(p, members)); err != nil {
		return err
	}
	if err := cytoscape.WriteFile(filepath.Join(dir, "communities.csv"), cytoscape.CommunityNodes(part, ranks)); err != nil {
		return err
	}
	if *anchorsPath != "" {
		anchors, err := cytoscape.LoadAnchors(*anchorsPath)
		if err != nil {
			return err
		}
		scope := members
		if scope == nil {
			scope = p.Names()
		}
		if err := cytoscape.WriteFile(filepath.Join(dir, "labels.csv"), cytoscape.Classify(p, scope, anchors, communityColor)); err != nil {
			return err
		}
	}
	logger.Info("wrote cytoscape tables", "dir", dir)

	if *toNeo4j {
		driver, err := neo4jsink.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return err
		}
		defer driver.Close(ctx) //nolint:errcheck // process exits right after
		exp := neo4jsink.New(driver, neo4jsink.WithLogger(logger), neo4jsink.WithDatabase(cfg.Neo4jDatabase))
		if err := exp.Export(ctx, p, part, ranks); err != nil {
			return fmt.Errorf("neo4j export: %w", err)
		}
	}
	return nil
}

// status is the machine-readable form of the status report.
type status struct {
	Dumps       int      `json:"dumps"`
	Users       int      `json:"users"`
	Hashtags    int      `json:"hashtags"`
	Comments    int      `json:"comments"`
	TopHashtags []string `json:"topHashtags"`
}

func runStatus(cfg *config, args []string) error {
	fs, c := newFlagSet("status", cfg)
	asJSON := fs.Bool("json", false, "print JSON instead of text")
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	logger := c.logger()

	in := ingest.New(*c.dataDir, ingest.WithLogger(logger))
	dumps, err := in.Ledger().Len()
	if err != nil {
		return err
	}
	p, err := in.Profiles()
	if err != nil {
		return err
	}
	tags, err := in.Hashtags()
	if err != nil {
		return err
	}

	st := status{Dumps: dumps, Users: len(p), Hashtags: len(tags), TopHashtags: []string{}}
	for _, u := range p {
		st.Comments += len(u.CommentsPosted)
	}
	names := make([]string, 0, len(tags))
	for tag, ts := range tags {
		if ts != nil {
			names = append(names, tag)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Or(cmp.Compare(tags[b].Count, tags[a].Count), cmp.Compare(a, b))
	})
	st.TopHashtags = append(st.TopHashtags, names[:min(5, len(names))]...)

	if *asJSON {
		return outputJSON(st)
	}
	fmt.Printf("dumps merged:     %s\n", humanize.Comma(int64(st.Dumps)))
	fmt.Printf("users:            %s\n", humanize.Comma(int64(st.Users)))
	fmt.Printf("hashtags:         %s\n", humanize.Comma(int64(st.Hashtags)))
	fmt.Printf("comments stored:  %s\n", humanize.Comma(int64(st.Comments)))
	for _, tag := range st.TopHashtags {
		fmt.Printf("  %-20s %s dumps\n", tag, humanize.Comma(int64(tags[tag].Count)))
	}
	return nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

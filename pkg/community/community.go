// Package community builds the weighted social graph from the profile store and
// partitions it into communities.
//
// Partitioning is delegated to a Partitioner; the default is gonum's Louvain
// modularization. The package prepares the weighted input, maps gonum nodes back to
// usernames and aggregates the per-community summary.
package community

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/graph"
	gcommunity "gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
)

// ErrEmptyGraph is returned when the store yields no vertices or no edges.
var ErrEmptyGraph = errors.New("graph has no vertices or no edges")

// Mode selects how the directed edge list is presented to the partitioner.
type Mode int

const (
	// Undirected sums the weights of (a,b) and (b,a) into one undirected edge.
	Undirected Mode = iota
	// Directed partitions the directed weighted graph as is.
	Directed
)

func (m Mode) String() string {
	if m == Directed {
		return "directed"
	}
	return "undirected"
}

// ParseMode parses "directed" or "undirected".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "directed":
		return Directed, nil
	case "undirected", "":
		return Undirected, nil
	default:
		return 0, fmt.Errorf("unknown graph mode %q", s)
	}
}

// Partitioner splits a weighted graph into disjoint node sets.
type Partitioner interface {
	Partition(g graph.Graph) [][]graph.Node
}

// Louvain is the modularity-maximizing Louvain method from gonum.
type Louvain struct {
	Resolution float64 // 0 means 1
	Seed       uint64  // 0 uses gonum's global source
}

// Partition implements Partitioner.
func (l Louvain) Partition(g graph.Graph) [][]graph.Node {
	var src rand.Source
	if l.Seed != 0 {
		src = rand.NewPCG(l.Seed, l.Seed)
	}
	return gcommunity.Modularize(g, l.resolution(), src).Communities()
}

func (l Louvain) resolution() float64 {
	if l.Resolution == 0 {
		return 1
	}
	return l.Resolution
}

// Config configures an Extractor.
type Config struct {
	Partitioner Partitioner
	Weights     Weights
	Mode        Mode
}

// Partition is the result of community extraction.
type Partition struct {
	Membership  map[string]int `json:"membership"`
	Communities [][]string     `json:"communities"` // indexed by community id, members sorted
	Edges       []Edge         `json:"edges"`       // the weighted edges the partition was computed on
	Modularity  float64        `json:"modularity"`
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// Extractor turns a profile store into a Partition.
type Extractor struct {
	logger *slog.Logger
	cfg    Config
}

// New returns an Extractor. A nil Partitioner defaults to Louvain at resolution 1.
func New(cfg Config, opts ...Option) (*Extractor, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.Partitioner == nil {
		cfg.Partitioner = Louvain{Resolution: 1}
	}
	e := &Extractor{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract weighs p, materializes the graph and partitions it.
func (e *Extractor) Extract(ctx context.Context, p profile.Profiles) (*Partition, error) {
	edges := Weigh(p, e.cfg.Weights)

	names := profile.NewSet()
	for name := range p {
		names.Add(name)
	}
	for _, ed := range edges {
		names.Add(ed.From)
		names.Add(ed.To)
	}
	if len(names) == 0 || len(edges) == 0 {
		return nil, ErrEmptyGraph
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := newIndex(names.Sorted())
	var g graph.Graph
	if e.cfg.Mode == Directed {
		g = idx.directed(edges)
	} else {
		g = idx.undirected(edges)
	}
	e.logger.Debug("partitioning graph", "mode", e.cfg.Mode, "nodes", len(idx.names), "edges", len(edges))

	groups := e.cfg.Partitioner.Partition(g)
	part := &Partition{Membership: make(map[string]int, len(idx.names)), Edges: edges}
	for _, group := range groups {
		members := make([]string, 0, len(group))
		for _, n := range group {
			members = append(members, idx.names[n.ID()])
		}
		if len(members) == 0 {
			continue
		}
		slices.Sort(members)
		part.Communities = append(part.Communities, members)
	}
	// Largest community first, ties broken by smallest member name.
	slices.SortFunc(part.Communities, func(a, b []string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), cmp.Compare(a[0], b[0]))
	})
	for id, members := range part.Communities {
		for _, m := range members {
			part.Membership[m] = id
		}
	}
	for _, name := range idx.names {
		if _, ok := part.Membership[name]; !ok {
			return nil, fmt.Errorf("partitioner did not assign %q", name)
		}
	}

	resolution := 1.0
	if l, ok := e.cfg.Partitioner.(Louvain); ok {
		resolution = l.resolution()
	}
	part.Modularity = gcommunity.Q(g, idx.groups(part.Communities), resolution)
	e.logger.Info("communities extracted", "communities", len(part.Communities),
		"users", len(part.Membership), "modularity", part.Modularity)
	return part, nil
}

// PageRank ranks every user of part on the directed edge set.
func PageRank(part *Partition, damping, tolerance float64) map[string]float64 {
	names := make([]string, 0, len(part.Membership))
	for name := range part.Membership {
		names = append(names, name)
	}
	slices.Sort(names)
	idx := newIndex(names)

	g := simple.NewDirectedGraph()
	for id := range idx.names {
		g.AddNode(simple.Node(int64(id)))
	}
	for _, ed := range part.Edges {
		from, okf := idx.ids[ed.From]
		to, okt := idx.ids[ed.To]
		if !okf || !okt || from == to {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
	}

	ranks := make(map[string]float64, len(names))
	for id, score := range network.PageRank(g, damping, tolerance) {
		ranks[idx.names[id]] = score
	}
	return ranks
}

// index maps usernames to dense gonum node ids.
type index struct {
	ids   map[string]int64
	names []string
}

func newIndex(names []string) *index {
	idx := &index{names: names, ids: make(map[string]int64, len(names))}
	for i, n := range names {
		idx.ids[n] = int64(i)
	}
	return idx
}

func (idx *index) directed(edges []Edge) *simple.WeightedDirectedGraph {
	g := simple.NewWeightedDirectedGraph(0, 0)
	for id := range idx.names {
		g.AddNode(simple.Node(int64(id)))
	}
	for _, ed := range edges {
		from, to := idx.ids[ed.From], idx.ids[ed.To]
		if from == to {
			continue
		}
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(from), simple.Node(to), ed.Weight))
	}
	return g
}

func (idx *index) undirected(edges []Edge) *simple.WeightedUndirectedGraph {
	sum := map[[2]int64]float64{}
	for _, ed := range edges {
		a, b := idx.ids[ed.From], idx.ids[ed.To]
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		sum[[2]int64{a, b}] += ed.Weight
	}

	g := simple.NewWeightedUndirectedGraph(0, 0)
	for id := range idx.names {
		g.AddNode(simple.Node(int64(id)))
	}
	for k, w := range sum {
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(k[0]), simple.Node(k[1]), w))
	}
	return g
}

func (idx *index) groups(communities [][]string) [][]graph.Node {
	out := make([][]graph.Node, len(communities))
	for i, members := range communities {
		for _, m := range members {
			out[i] = append(out[i], simple.Node(idx.ids[m]))
		}
	}
	return out
}

package community

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
)

func TestWeighSharedHashtags(t *testing.T) {
	p := profile.Profiles{}
	p.Ensure("@a").Hashtags.Union(profile.NewSet("#1", "#2", "#3", "#only-a"), "")
	p.Ensure("@b").Hashtags.Union(profile.NewSet("#1", "#2", "#3"), "")

	got := Weigh(p, DefaultWeights())
	want := []Edge{{From: "@a", To: "@b", Weight: 1.5}, {From: "@b", To: "@a", Weight: 1.5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Weigh mismatch (-want +got):\n%s", diff)
	}
}

func TestWeighAccumulatesSources(t *testing.T) {
	p := profile.Profiles{}
	a := p.Ensure("@a")
	a.Following.Add("@b")
	a.CommentedOn.Add("@b")
	a.Hashtags.Add("#x")
	p.Ensure("@b").Hashtags.Add("#x")
	p.Ensure("@c").Followers.Add("@a") // reciprocal side alone contributes nothing

	tests := []struct {
		name string
		w    Weights
		want []Edge
	}{
		{
			name: "defaults",
			w:    DefaultWeights(),
			want: []Edge{{From: "@a", To: "@b", Weight: 3.5}, {From: "@b", To: "@a", Weight: 0.5}},
		},
		{
			name: "hashtags disabled",
			w:    Weights{Follow: 1, Comment: 2},
			want: []Edge{{From: "@a", To: "@b", Weight: 3}},
		},
		{
			name: "everything disabled",
			w:    Weights{},
			want: []Edge{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Weigh(p, tt.w)); diff != "" {
				t.Errorf("Weigh mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWeighDropsSelfPairs(t *testing.T) {
	p := profile.Profiles{}
	p.Ensure("@a").Following.Add("@a")
	p.Ensure("@a").CommentedOn.Add("@a")
	require.Empty(t, Weigh(p, DefaultWeights()))
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"zeros", Weights{}, false},
		{"negative", Weights{Follow: -1}, true},
		{"nan", Weights{Comment: math.NaN()}, true},
		{"inf", Weights{Hashtag: math.Inf(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if got := errors.Is(err, ErrInvalidWeights); got != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// cliques returns two 4-cliques of mutual follows joined by one follow edge.
func cliques() profile.Profiles {
	p := profile.Profiles{}
	link := func(a, b string) {
		p.Ensure(a).Following.Add(b)
		p.Ensure(b).Followers.Add(a)
	}
	for _, group := range [][]string{{"@a1", "@a2", "@a3", "@a4"}, {"@b1", "@b2", "@b3", "@b4"}} {
		for _, x := range group {
			for _, y := range group {
				if x != y {
					link(x, y)
				}
			}
		}
	}
	link("@a1", "@b1")
	p["@a2"].Hashtags.Add("#sea")
	p["@a2"].AddComment(profile.Comment{Text: "hello", Likes: 1})
	return p
}

func TestExtractSeparatesCliques(t *testing.T) {
	for _, mode := range []Mode{Undirected, Directed} {
		t.Run(mode.String(), func(t *testing.T) {
			e, err := New(Config{Weights: DefaultWeights(), Mode: mode, Partitioner: Louvain{Seed: 1}})
			require.NoError(t, err)
			part, err := e.Extract(context.Background(), cliques())
			require.NoError(t, err)

			want := [][]string{{"@a1", "@a2", "@a3", "@a4"}, {"@b1", "@b2", "@b3", "@b4"}}
			if diff := cmp.Diff(want, part.Communities); diff != "" {
				t.Fatalf("communities (-want +got):\n%s", diff)
			}
			require.Equal(t, 0, part.Membership["@a3"])
			require.Equal(t, 1, part.Membership["@b3"])
			require.Greater(t, part.Modularity, 0.0)

			s := Summarize(cliques(), part)
			require.Equal(t, map[string]int{"1": 1}, s["0"].Connections)
			require.Equal(t, map[string]int{"0": 1}, s["1"].Connections)
			require.Equal(t, []string{"#sea"}, s["0"].Hashtags.Sorted())
			require.Equal(t, []string{"hello"}, s["0"].Comments.Sorted())
			require.Equal(t, []string{"@b1", "@b2", "@b3", "@b4"}, s["1"].Members.Sorted())
		})
	}
}

func TestExtractEmptyGraph(t *testing.T) {
	e, err := New(Config{Weights: DefaultWeights()})
	require.NoError(t, err)

	isolated := profile.Profiles{}
	isolated.Ensure("@lonely")

	for name, p := range map[string]profile.Profiles{"no users": {}, "no edges": isolated} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), p)
			require.ErrorIs(t, err, ErrEmptyGraph)
		})
	}
}

func TestNewRejectsInvalidWeights(t *testing.T) {
	_, err := New(Config{Weights: Weights{Follow: -2}})
	require.ErrorIs(t, err, ErrInvalidWeights)
}

func TestSummarizeCountsBothSides(t *testing.T) {
	p := profile.Profiles{}
	p.Ensure("@x").Hashtags.Add("#h")
	part := &Partition{
		Membership: map[string]int{"@x": 0, "@y": 0, "@z": 1, "": 1},
		Edges: []Edge{
			{From: "@x", To: "@z", Weight: 1},
			{From: "@y", To: "@z", Weight: 1},
			{From: "@z", To: "@x", Weight: 2},
			{From: "@x", To: "@y", Weight: 1},
		},
	}

	want := Summaries{
		"0": {Members: profile.NewSet("@x", "@y"), Connections: map[string]int{"1": 3}, Hashtags: profile.NewSet("#h"), Comments: profile.Set{}},
		"1": {Members: profile.NewSet("@z"), Connections: map[string]int{"0": 3}, Hashtags: profile.Set{}, Comments: profile.Set{}},
	}
	if diff := cmp.Diff(want, Summarize(p, part)); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}
}

func TestSummariesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "communities.json")
	s := Summaries{"0": {
		Members:     profile.NewSet("@a"),
		Connections: map[string]int{"2": 4},
		Hashtags:    profile.NewSet("#t"),
		Comments:    profile.NewSet("hey"),
	}}
	require.NoError(t, SaveSummaries(path, s))
	got, err := LoadSummaries(path)
	require.NoError(t, err)
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPageRank(t *testing.T) {
	part := &Partition{
		Membership: map[string]int{"@hub": 0, "@a": 0, "@b": 0, "@c": 0},
		Edges: []Edge{
			{From: "@a", To: "@hub", Weight: 1},
			{From: "@b", To: "@hub", Weight: 1},
			{From: "@c", To: "@hub", Weight: 1},
			{From: "@hub", To: "@a", Weight: 1},
		},
	}
	ranks := PageRank(part, 0.85, 1e-8)
	require.Len(t, ranks, 4)
	for _, name := range []string{"@a", "@b", "@c"} {
		require.Greater(t, ranks["@hub"], ranks[name])
	}
	require.Greater(t, ranks["@a"], ranks["@b"])
}

func TestSummariesPartition(t *testing.T) {
	s := Summaries{
		"1":   {Members: profile.NewSet("@c")},
		"0":   {Members: profile.NewSet("@b", "@a")},
		"bad": {Members: profile.NewSet("@z")},
	}
	edges := []Edge{{From: "@a", To: "@c", Weight: 1}}
	want := &Partition{
		Membership:  map[string]int{"@a": 0, "@b": 0, "@c": 1},
		Communities: [][]string{{"@a", "@b"}, {"@c"}},
		Edges:       edges,
	}
	if diff := cmp.Diff(want, s.Partition(edges)); diff != "" {
		t.Errorf("Partition mismatch (-want +got):\n%s", diff)
	}
}

func TestSummariesPartitionRenumbers(t *testing.T) {
	s := Summaries{
		"2000000000": {Members: profile.NewSet("@far")},
		"-1":         {Members: profile.NewSet("@neg")},
		"3":          {Members: profile.NewSet("@x", "@y")},
	}
	got := s.Partition(nil)
	want := [][]string{{"@neg"}, {"@x", "@y"}, {"@far"}}
	if diff := cmp.Diff(want, got.Communities); diff != "" {
		t.Errorf("communities (-want +got):\n%s", diff)
	}
	require.Equal(t, map[string]int{"@neg": 0, "@x": 1, "@y": 1, "@far": 2}, got.Membership)
}

func TestZeroWeightRelationsAreNotConnections(t *testing.T) {
	p := cliques()
	e, err := New(Config{Weights: Weights{Follow: 1, Comment: 2}, Partitioner: Louvain{Seed: 1}})
	require.NoError(t, err)
	// A shared hashtag across the cliques adds nothing when hashtags are disabled.
	p["@b4"].Hashtags.Add("#sea")

	part, err := e.Extract(context.Background(), p)
	require.NoError(t, err)
	s := Summarize(p, part)
	require.Equal(t, map[string]int{"1": 1}, s["0"].Connections)
}

package neo4jsink

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/sociograph/pkg/community"
	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
)

func samplePartition() (profile.Profiles, *community.Partition) {
	p := profile.Profiles{}
	a := p.Ensure("@a")
	a.Hashtags.Add("#t")
	a.TotalFollowersCount = 7
	a.AddComment(profile.Comment{Text: "hi"})
	part := &community.Partition{
		Membership:  map[string]int{"@a": 0, "@b": 1},
		Communities: [][]string{{"@a"}, {"@b"}},
		Edges:       []community.Edge{{From: "@a", To: "@b", Weight: 2.5}},
	}
	return p, part
}

func TestUserRows(t *testing.T) {
	p, part := samplePartition()
	got := UserRows(p, part, map[string]float64{"@a": 0.7})
	want := []map[string]any{
		{
			"name": "@a", "community": int64(0), "pagerank": 0.7, "hashtags": []string{"#t"},
			"totalFollowers": int64(7), "totalFollowing": int64(0), "comments": int64(1),
		},
		{
			"name": "@b", "community": int64(1), "pagerank": 0.0, "hashtags": []string{},
			"totalFollowers": int64(0), "totalFollowing": int64(0), "comments": int64(0),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("UserRows mismatch (-want +got):\n%s", diff)
	}
}

func TestEdgeRows(t *testing.T) {
	_, part := samplePartition()
	want := []map[string]any{{"from": "@a", "to": "@b", "weight": 2.5}}
	if diff := cmp.Diff(want, EdgeRows(part)); diff != "" {
		t.Errorf("EdgeRows mismatch (-want +got):\n%s", diff)
	}
}

// TestExport requires a running Neo4j instance configured through
// SOCIOGRAPH_NEO4J_URI, SOCIOGRAPH_NEO4J_USER and SOCIOGRAPH_NEO4J_PASSWORD.
func TestExport(t *testing.T) {
	uri := os.Getenv("SOCIOGRAPH_NEO4J_URI")
	if testing.Short() || uri == "" {
		t.Skip("skipping neo4j integration test")
	}

	ctx := context.Background()
	driver, err := Connect(ctx, uri, os.Getenv("SOCIOGRAPH_NEO4J_USER"), os.Getenv("SOCIOGRAPH_NEO4J_PASSWORD"))
	require.NoError(t, err)
	defer driver.Close(ctx) //nolint:errcheck // test cleanup

	defer func() {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx) //nolint:errcheck // test cleanup
		_, _ = session.Run(ctx, "MATCH (u:User) WHERE u.name IN ['@a', '@b'] DETACH DELETE u", nil) //nolint:errcheck // cleanup
	}()

	p, part := samplePartition()
	e := New(driver, WithBatchSize(1))
	// Exporting twice must not duplicate nodes or relationships.
	require.NoError(t, e.Export(ctx, p, part, nil))
	require.NoError(t, e.Export(ctx, p, part, nil))

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx) //nolint:errcheck // test cleanup
	result, err := session.Run(ctx,
		"MATCH (:User {name: '@a'})-[r:INTERACTS]->(:User {name: '@b'}) RETURN count(r) AS n, max(r.weight) AS w", nil)
	require.NoError(t, err)
	rec, err := result.Single(ctx)
	require.NoError(t, err)
	n, _ := rec.Get("n")
	w, _ := rec.Get("w")
	require.Equal(t, int64(1), n)
	require.InDelta(t, 2.5, w, 1e-9)
}

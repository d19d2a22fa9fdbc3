// Package neo4jsink writes the weighted interaction graph and community membership to Neo4j.
package neo4jsink

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/codeGROOVE-dev/sociograph/pkg/community"
	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
)

const defaultBatchSize = 500

const (
	constraintQuery = `CREATE CONSTRAINT sociograph_user_name IF NOT EXISTS FOR (u:User) REQUIRE u.name IS UNIQUE`

	userQuery = `
		UNWIND $rows AS row
		MERGE (u:User {name: row.name})
		SET u.community = row.community,
			u.pagerank = row.pagerank,
			u.hashtags = row.hashtags,
			u.totalFollowers = row.totalFollowers,
			u.totalFollowing = row.totalFollowing,
			u.comments = row.comments
	`

	edgeQuery = `
		UNWIND $rows AS row
		MATCH (a:User {name: row.from})
		MATCH (b:User {name: row.to})
		MERGE (a)-[r:INTERACTS]->(b)
		SET r.weight = row.weight
	`
)

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) { e.logger = logger }
}

// WithBatchSize sets how many rows go into one UNWIND statement.
func WithBatchSize(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithDatabase selects a database other than the server default.
func WithDatabase(name string) Option {
	return func(e *Exporter) { e.database = name }
}

// Exporter upserts users and INTERACTS relationships.
type Exporter struct {
	driver    neo4j.DriverWithContext
	logger    *slog.Logger
	database  string
	batchSize int
}

// New wraps an existing driver. The caller keeps ownership of the driver.
func New(driver neo4j.DriverWithContext, opts ...Option) *Exporter {
	e := &Exporter{driver: driver, logger: slog.Default(), batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Connect opens a driver with basic auth and verifies connectivity.
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx) //nolint:errcheck // connectivity error takes precedence
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return driver, nil
}

// Export writes every member of part as a User node and every edge as an INTERACTS
// relationship. Re-exporting the same partition overwrites properties in place.
func (e *Exporter) Export(ctx context.Context, p profile.Profiles, part *community.Partition, ranks map[string]float64) error {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: e.database})
	defer session.Close(ctx) //nolint:errcheck // nothing to do on close failure

	if err := run(ctx, session, constraintQuery, nil); err != nil {
		return fmt.Errorf("create constraint: %w", err)
	}

	users := UserRows(p, part, ranks)
	for batch := range slices.Chunk(users, e.batchSize) {
		if err := run(ctx, session, userQuery, map[string]any{"rows": batch}); err != nil {
			return fmt.Errorf("write users: %w", err)
		}
	}
	edges := EdgeRows(part)
	for batch := range slices.Chunk(edges, e.batchSize) {
		if err := run(ctx, session, edgeQuery, map[string]any{"rows": batch}); err != nil {
			return fmt.Errorf("write edges: %w", err)
		}
	}

	e.logger.Info("exported graph to neo4j", "users", len(users), "edges", len(edges))
	return nil
}

func run(ctx context.Context, session neo4j.SessionWithContext, query string, params map[string]any) error {
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// UserRows builds the parameter rows for User nodes, ordered by community then name.
func UserRows(p profile.Profiles, part *community.Partition, ranks map[string]float64) []map[string]any {
	rows := make([]map[string]any, 0, len(part.Membership))
	for id, members := range part.Communities {
		for _, name := range members {
			if name == "" {
				continue
			}
			row := map[string]any{
				"name":           name,
				"community":      int64(id),
				"pagerank":       ranks[name],
				"hashtags":       []string{},
				"totalFollowers": int64(0),
				"totalFollowing": int64(0),
				"comments":       int64(0),
			}
			if u := p[name]; u != nil {
				row["hashtags"] = u.Hashtags.Sorted()
				row["totalFollowers"] = int64(u.TotalFollowersCount)
				row["totalFollowing"] = int64(u.TotalFollowingCount)
				row["comments"] = int64(len(u.CommentsPosted))
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// EdgeRows builds the parameter rows for INTERACTS relationships.
func EdgeRows(part *community.Partition) []map[string]any {
	rows := make([]map[string]any, 0, len(part.Edges))
	for _, ed := range part.Edges {
		rows = append(rows, map[string]any{"from": ed.From, "to": ed.To, "weight": ed.Weight})
	}
	return rows
}

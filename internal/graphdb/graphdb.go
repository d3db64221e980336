// Package graphdb writes connectomes into Neo4j as Region nodes joined by CONNECTS edges.
package graphdb

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Query is one Cypher statement with its parameters.
type Query struct {
	Cypher string
	Params map[string]any
}

// Runner executes queries in order inside a single write transaction.
type Runner interface {
	RunTx(ctx context.Context, queries ...Query) error
}

// Neo4jExecutor is the Runner backed by the official driver.
type Neo4jExecutor struct {
	Driver neo4j.DriverWithContext
	DBName string
}

// NewNeo4jExecutor creates the driver; connectivity is not checked until Verify.
func NewNeo4jExecutor(uri, username, password, dbName string) (*Neo4jExecutor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Neo4jExecutor{Driver: driver, DBName: dbName}, nil
}

// Verify checks that the database answers.
func (e *Neo4jExecutor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

// Close releases the driver.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

// RunTx runs queries in one managed write transaction; any failure rolls all of them back.
func (e *Neo4jExecutor) RunTx(ctx context.Context, queries ...Query) error {
	session := e.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: e.DBName,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, q := range queries {
			result, err := tx.Run(ctx, q.Cypher, q.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("error executing neo4j transaction: %w", err)
	}

	return nil
}

// Connectome is one run's matrices keyed by region label. Normalized may be nil.
type Connectome struct {
	RunID      string
	Subject    string
	Run        string
	Labels     []int32
	Counts     *mat64.Dense
	Lengths    *mat64.Dense
	Normalized *mat64.Dense
}

const deleteEdges = `MATCH (:Region)-[c:CONNECTS {subject: $subject, run: $run}]->(:Region)
DELETE c`

const mergeRegions = `UNWIND $labels AS label
MERGE (:Region {label: label})`

const mergeEdges = `UNWIND $edges AS e
MATCH (a:Region {label: e.from}), (b:Region {label: e.to})
MERGE (a)-[c:CONNECTS {subject: $subject, run: $run}]->(b)
SET c.run_id = $run_id, c.count = e.count, c.mean_length = e.mean_length, c.weight = e.weight`

// Sink writes connectomes through a Runner.
type Sink struct {
	runner Runner
	log    *slog.Logger
}

// NewSink wraps runner.
func NewSink(runner Runner, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{runner: runner, log: logger.With(slog.String("component", "graphdb"))}
}

// Edges lists the non-zero upper-triangle cells (diagonal included) as query parameters.
// Non-finite weights are stored as null.
func Edges(c *Connectome) []map[string]any {
	n := len(c.Labels)
	var edges []map[string]any

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			count := c.Counts.At(i, j)
			if count == 0 {
				continue
			}

			var weight any
			if c.Normalized != nil {
				if w := c.Normalized.At(i, j); !math.IsNaN(w) && !math.IsInf(w, 0) {
					weight = w
				}
			}

			edges = append(edges, map[string]any{
				"from":        int64(c.Labels[i]),
				"to":          int64(c.Labels[j]),
				"count":       int64(count),
				"mean_length": c.Lengths.At(i, j),
				"weight":      weight,
			})
		}
	}

	return edges
}

// Write replaces the run's edges: earlier CONNECTS edges of the same subject and
// run are deleted, the region nodes merged and the current edges created, all in
// one transaction.
func (s *Sink) Write(ctx context.Context, c *Connectome) error {
	labels := make([]int64, len(c.Labels))
	for i, l := range c.Labels {
		labels[i] = int64(l)
	}

	edges := Edges(c)
	run := map[string]any{"subject": c.Subject, "run": c.Run}
	err := s.runner.RunTx(ctx,
		Query{Cypher: deleteEdges, Params: run},
		Query{Cypher: mergeRegions, Params: map[string]any{"labels": labels}},
		Query{Cypher: mergeEdges, Params: map[string]any{
			"edges":   edges,
			"subject": c.Subject,
			"run":     c.Run,
			"run_id":  c.RunID,
		}},
	)
	if err != nil {
		return fmt.Errorf("[Sink.Write] %s %s: %w", c.Subject, c.Run, err)
	}

	s.log.Info("connectome stored", slog.String("run_id", c.RunID), slog.Int("regions", len(labels)), slog.Int("edges", len(edges)))
	return nil
}

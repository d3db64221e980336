// Package app wires configuration, logging, metrics and the graph sink for the command-line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/KyungWonPark/Connectome/internal/calc"
	"github.com/KyungWonPark/Connectome/internal/config"
	"github.com/KyungWonPark/Connectome/internal/graphdb"
	"github.com/KyungWonPark/Connectome/internal/logging"
	"github.com/KyungWonPark/Connectome/internal/metrics"
	"github.com/KyungWonPark/Connectome/internal/pipeline"
)

// Env is everything a tool needs to drive subjects.
type Env struct {
	Config  *config.Config
	Log     *slog.Logger
	Metrics *metrics.Recorder
	Driver  *pipeline.Driver

	neo4j *graphdb.Neo4jExecutor
}

// Setup validates cfg and builds the environment. The Neo4j connection is
// verified up front so a bad URI fails before any run starts.
func Setup(ctx context.Context, cfg *config.Config, logOut io.Writer) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(logOut, cfg.Logging)
	if err != nil {
		return nil, err
	}

	env := &Env{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(),
	}
	env.Driver = &pipeline.Driver{
		Config:  cfg,
		PL:      calc.Init(cfg.Pipeline.Workers, cfg.Pipeline.Debug, log),
		Metrics: env.Metrics,
		Log:     log,
	}

	if cfg.Neo4j.Enabled {
		exec, err := graphdb.NewNeo4jExecutor(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			return nil, err
		}
		if err := exec.Verify(ctx); err != nil {
			exec.Close(ctx)
			return nil, fmt.Errorf("could not connect to database %q: %w", cfg.Neo4j.Database, err)
		}
		env.neo4j = exec
		env.Driver.Sink = graphdb.NewSink(exec, log)
	}

	log.Debug("environment ready",
		slog.Int("workers", env.Driver.PL.GetNP()),
		slog.Bool("neo4j", cfg.Neo4j.Enabled),
		slog.String("weighting_mode", cfg.Pipeline.WeightingMode))
	return env, nil
}

// Close writes the metrics textfile, when configured, and releases the Neo4j driver.
func (e *Env) Close(ctx context.Context) error {
	var errs []error
	if e.Config.Metrics.Textfile != "" {
		errs = append(errs, e.Metrics.WriteTextfile(e.Config.Metrics.Textfile))
	}
	if e.neo4j != nil {
		errs = append(errs, e.neo4j.Close(ctx))
	}

	return errors.Join(errs...)
}

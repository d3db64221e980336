package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/KyungWonPark/Connectome/internal/calc"
	"github.com/KyungWonPark/Connectome/internal/config"
	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/KyungWonPark/Connectome/internal/fc"
	"github.com/KyungWonPark/Connectome/internal/graphdb"
	"github.com/KyungWonPark/Connectome/internal/metrics"
	"github.com/KyungWonPark/Connectome/internal/nii"
	"github.com/KyungWonPark/Connectome/internal/parc"
	"github.com/KyungWonPark/Connectome/internal/subject"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Driver runs every run of a subject. A failed run is logged and counted; the
// remaining runs still execute and the failures come back joined.
type Driver struct {
	Config  *config.Config
	PL      *calc.PipeLine
	Metrics *metrics.Recorder
	Sink    *graphdb.Sink // nil disables the graph export
	Log     *slog.Logger
}

func (d *Driver) logger() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// StructuralSubject builds the structural connectome of every tractogram below subjectDir.
func (d *Driver) StructuralSubject(ctx context.Context, subjectDir, outDir string) error {
	runs, err := subject.Discover(subjectDir, subject.Structural(d.Config.Layout), d.Config.Pipeline.HasSessions)
	if err != nil {
		return err
	}

	name := subject.Name(subjectDir)
	return d.each(ctx, name, runs, func(ctx context.Context, run subject.Run, log *slog.Logger) error {
		return d.structuralRun(ctx, name, run, outDir, log)
	})
}

// FunctionalSubject builds the functional connectome of every BOLD run below subjectDir.
func (d *Driver) FunctionalSubject(ctx context.Context, subjectDir, outDir string) error {
	runs, err := subject.Discover(subjectDir, subject.Functional(d.Config.Layout), d.Config.Pipeline.HasSessions)
	if err != nil {
		return err
	}

	name := subject.Name(subjectDir)
	return d.each(ctx, name, runs, func(ctx context.Context, run subject.Run, log *slog.Logger) error {
		return d.functionalRun(ctx, name, run, filepath.Join(outDir, run.Session), log)
	})
}

type runFunc func(ctx context.Context, run subject.Run, log *slog.Logger) error

func (d *Driver) each(ctx context.Context, name string, runs []subject.Run, fn runFunc) error {
	log := d.logger().With(slog.String("subject", name))
	if len(runs) == 0 {
		log.Warn("no runs found")
		return nil
	}

	limit := d.Config.Pipeline.Concurrency
	if limit < 1 {
		limit = 1
	}

	errs := make([]error, len(runs))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			runLog := log.With(slog.String("run_id", uuid.NewString()), slog.String("run", run.ID()))
			runLog.Info("run started", slog.String("input", run.Path), slog.String("parcellation", run.ParcPath))

			if err := fn(ctx, run, runLog); err != nil {
				runLog.Error("run failed", slog.String("kind", string(fault.Classify(err))), slog.String("error", err.Error()))
				d.Metrics.Run(metrics.StatusFailed)
				errs[i] = fmt.Errorf("%s: %w", run.Path, err)
				return nil
			}

			d.Metrics.Run(metrics.StatusOK)
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}

func (d *Driver) structuralRun(ctx context.Context, name string, run subject.Run, outDir string, log *slog.Logger) error {
	done := d.Metrics.Stage("load")
	tg, err := LoadTractogram(run.Path)
	if err != nil {
		done()
		return err
	}
	vol, err := parc.Load(run.ParcPath)
	done()
	if err != nil {
		return err
	}

	res, err := Structural(ctx, d.PL, Options{Pipeline: d.Config.Pipeline, Metrics: d.Metrics, Log: log}, tg, vol)
	if err != nil {
		return err
	}

	var hooks []func() error
	if d.Sink != nil {
		c := &graphdb.Connectome{
			RunID:      uuid.NewString(),
			Subject:    name,
			Run:        run.ID(),
			Labels:     res.Regions.Labels(),
			Counts:     res.Counts,
			Lengths:    res.Lengths,
			Normalized: res.Normalized,
		}
		hooks = append(hooks, func() error { return d.Sink.Write(ctx, c) })
	}

	// the graph export is a precommit hook; its failure discards the staged files
	done = d.Metrics.Stage("save")
	files, err := SaveStructural(outDir, run.Prefix(name), res, d.Config.Output, hooks...)
	done()
	if err != nil {
		return err
	}

	log.Info("run finished",
		slog.Int("streamlines", tg.Len()),
		slog.Int("connected", res.Stats.Connected),
		slog.Int("regions", res.Regions.Len()),
		slog.Int("files", len(files)))
	return nil
}

func (d *Driver) functionalRun(ctx context.Context, name string, run subject.Run, outDir string, log *slog.Logger) error {
	done := d.Metrics.Stage("load")
	bold, err := nii.Open(run.Path)
	if err != nil {
		done()
		return err
	}
	vol, err := parc.Load(run.ParcPath)
	done()
	if err != nil {
		return err
	}

	if d.Config.Pipeline.FrameCheck {
		if err := AffineCheck(bold.Affine, vol, d.Config.Pipeline.FrameTolerance); err != nil {
			return err
		}
	}

	regions := vol.Regions()
	done = d.Metrics.Stage("timeseries")
	ts, err := fc.RegionTimeSeries(ctx, d.PL.GetNP(), bold, bold.Shape, vol, regions)
	done()
	if err != nil {
		return err
	}

	done = d.Metrics.Stage("correlation")
	res, err := fc.Correlate(d.PL, regions, ts, d.Config.FC.ZScore)
	done()
	if err != nil {
		return err
	}

	files, err := SaveFunctional(outDir, run.SessionPrefix(name), res, d.Config.Output)
	if err != nil {
		return err
	}

	_, timepoints := ts.Dims()
	log.Info("run finished", slog.Int("regions", regions.Len()), slog.Int("timepoints", timepoints), slog.Int("files", len(files)))
	return nil
}

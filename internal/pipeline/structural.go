// Package pipeline assembles the connectivity stages into per-run computations and drives them over a subject.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/KyungWonPark/Connectome/internal/calc"
	"github.com/KyungWonPark/Connectome/internal/config"
	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/KyungWonPark/Connectome/internal/metrics"
	"github.com/KyungWonPark/Connectome/internal/parc"
	"github.com/KyungWonPark/Connectome/internal/tract"
	"github.com/gonum/matrix/mat64"
)

// ErrAsymmetric is returned by the debug symmetry check.
var ErrAsymmetric = errors.New("matrix is not symmetric")

// Result is the structural connectome of one run. Every matrix is R by R in
// ascending label order. Normalized and Weights are nil unless normalization ran;
// Commit is always nil.
type Result struct {
	Regions    *parc.RegionSet
	Counts     *mat64.Dense
	Normalized *mat64.Dense
	Lengths    *mat64.Dense
	Weights    *mat64.Dense
	Commit     *mat64.Dense
	Stats      calc.ClassifyStats

	// Degenerate lists zero-weight cells kept under allow_degenerate_weights.
	Degenerate []fault.Cell
}

// Options carries the parameters and sinks of a structural computation.
type Options struct {
	Pipeline config.Pipeline
	Metrics  *metrics.Recorder
	Log      *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

// Structural builds counts, mean lengths and, when enabled, the seed-weight
// normalized matrix for one tractogram and parcellation.
func Structural(ctx context.Context, pl *calc.PipeLine, opts Options, tg *tract.Tractogram, vol *parc.Volume) (*Result, error) {
	cfg := opts.Pipeline
	log := opts.logger()

	if cfg.FrameCheck {
		if err := FrameCheck(tg.Frame, vol, cfg.FrameTolerance); err != nil {
			return nil, err
		}
	}

	regions := vol.Regions()

	done := opts.Metrics.Stage("connectivity")
	conn, err := pl.Connectivity(ctx, tg, vol, regions)
	done()
	if err != nil {
		return nil, err
	}
	opts.Metrics.Streamlines(conn.Stats)

	done = opts.Metrics.Stage("lengths")
	lengths, err := pl.MeanLengths(ctx, tg, conn)
	done()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Regions: regions,
		Counts:  conn.Counts,
		Lengths: lengths,
		Stats:   conn.Stats,
	}

	if cfg.Normalize {
		done = opts.Metrics.Stage("normalize")
		res.Weights = pl.SeedWeights(vol, regions, cfg.SeedsPerVoxel)
		res.Normalized, err = pl.Normalize(conn.Counts, res.Weights)
		done()

		var dwe *fault.DegenerateWeightError
		switch {
		case errors.As(err, &dwe) && cfg.AllowDegenerateWeights:
			log.Warn("zero seed weights kept as NaN/Inf", slog.Int("cells", len(dwe.Cells)))
			res.Degenerate = dwe.Cells
		case err != nil:
			return nil, err
		}
	}

	if cfg.WeightingMode == config.WeightingCommit {
		log.Info("commit weighting requested; no commit matrix is produced")
	}

	if cfg.Debug {
		for name, m := range map[string]*mat64.Dense{"counts": res.Counts, "lengths": res.Lengths, "normalized": res.Normalized} {
			if m != nil && !pl.SymCheck(m, 0) {
				return nil, fmt.Errorf("[Structural] %s: %w", name, ErrAsymmetric)
			}
		}
	}

	log.Debug("structural connectome built",
		slog.Int("regions", regions.Len()),
		slog.Int("connected", conn.Stats.Connected),
		slog.Int("background", conn.Stats.Background),
		slog.Int("out_of_bounds", conn.Stats.OutOfBounds),
		slog.Int("empty", conn.Stats.Empty))

	return res, nil
}

// FrameCheck verifies that a tractogram was reconstructed in the parcellation's
// grid. Frames the container does not carry are accepted; a frame rebuilt from
// voxel sizes only has its dims compared.
func FrameCheck(f tract.Frame, vol *parc.Volume, tol float64) error {
	if !f.Known {
		return nil
	}

	if f.Dims != vol.Dims {
		return fmt.Errorf("[FrameCheck] %w: tractogram grid %v, parcellation grid %v", fault.ErrFrameMismatch, f.Dims, vol.Dims)
	}
	if f.Derived {
		return nil
	}

	return AffineCheck(f.Affine, vol, tol)
}

// AffineCheck compares a voxel-to-world affine with the parcellation's, elementwise within tol.
func AffineCheck(a [4][4]float64, vol *parc.Volume, tol float64) error {
	want := vol.AffineArray()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			d := a[i][j] - want[i][j]
			if d > tol || d < -tol {
				return fmt.Errorf("[AffineCheck] %w: affine differs at [%d,%d]: %g vs %g", fault.ErrFrameMismatch, i, j, a[i][j], want[i][j])
			}
		}
	}

	return nil
}

// LoadTractogram reads a .trk or .tck file.
func LoadTractogram(path string) (*tract.Tractogram, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".trk":
		return tract.ReadTrk(path)
	case ".tck":
		return tract.ReadTck(path)
	}

	return nil, fmt.Errorf("[LoadTractogram] %w: %s is neither .trk nor .tck", fault.ErrUnsupported, path)
}

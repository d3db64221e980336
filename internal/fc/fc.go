// Package fc builds functional connectivity from a BOLD series and a parcellation in the same grid.
package fc

import (
	"context"
	"fmt"

	"github.com/KyungWonPark/Connectome/internal/calc"
	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/KyungWonPark/Connectome/internal/parc"
	"github.com/gonum/matrix/mat64"
	"golang.org/x/sync/errgroup"
)

// Series is a 4D image addressed by voxel and volume index.
type Series interface {
	At(x, y, z, t int) float32
}

// Result is one run's region time series (regions by time points) and their correlation.
type Result struct {
	Regions    *parc.RegionSet
	TimeSeries *mat64.Dense
	Matrix     *mat64.Dense
}

// RegionTimeSeries averages the voxels of every region at every time point.
// shape is the 4D shape of bold and must match the parcellation grid.
func RegionTimeSeries(ctx context.Context, workers int, bold Series, shape [4]int, vol *parc.Volume, regions *parc.RegionSet) (*mat64.Dense, error) {
	if shape[0] != vol.Dims[0] || shape[1] != vol.Dims[1] || shape[2] != vol.Dims[2] {
		return nil, fmt.Errorf("[RegionTimeSeries] %w: bold grid %v, parcellation grid %v", fault.ErrShapeMismatch, shape[:3], vol.Dims)
	}
	n, timepoints := regions.Len(), shape[3]
	if n == 0 {
		return nil, fmt.Errorf("[RegionTimeSeries] %w: parcellation has no labelled regions", fault.ErrFormat)
	}
	if timepoints < 2 {
		return nil, fmt.Errorf("[RegionTimeSeries] %w: %d volume(s), need a time series", fault.ErrShapeMismatch, timepoints)
	}

	members := make([][][3]int, n)
	for k := 0; k < vol.Dims[2]; k++ {
		for j := 0; j < vol.Dims[1]; j++ {
			for i := 0; i < vol.Dims[0]; i++ {
				if idx, ok := regions.Index(vol.LabelAt(i, j, k)); ok {
					members[idx] = append(members[idx], [3]int{i, j, k})
				}
			}
		}
	}

	ts := mat64.NewDense(n, timepoints, nil)
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for t := 0; t < timepoints; t++ {
		t := t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for r, voxels := range members {
				if len(voxels) == 0 {
					continue
				}
				var acc float64
				for _, v := range voxels {
					acc += float64(bold.At(v[0], v[1], v[2], t))
				}
				ts.Set(r, t, acc/float64(len(voxels)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return ts, nil
}

// Correlate computes the region by region Pearson matrix. With zscore the
// returned time series are standardised first; correlation is unaffected.
func Correlate(pl *calc.PipeLine, regions *parc.RegionSet, ts *mat64.Dense, zscore bool) (*Result, error) {
	n, timepoints := ts.Dims()

	if zscore {
		z := mat64.NewDense(n, timepoints, nil)
		if err := pl.ZScoring(ts, z); err != nil {
			return nil, err
		}
		ts = z
	}

	r := mat64.NewDense(n, n, nil)
	if err := pl.Pearson(ts, r); err != nil {
		return nil, err
	}

	return &Result{Regions: regions, TimeSeries: ts, Matrix: r}, nil
}

package pipeline_test

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/KyungWonPark/Connectome/internal/calc"
	"github.com/KyungWonPark/Connectome/internal/config"
	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/KyungWonPark/Connectome/internal/metrics"
	"github.com/KyungWonPark/Connectome/internal/parc"
	"github.com/KyungWonPark/Connectome/internal/pipeline"
	"github.com/KyungWonPark/Connectome/internal/tract"
	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/require"
)

var identity = [4][4]float64{
	{1, 0, 0, 0},
	{0, 1, 0, 0},
	{0, 0, 1, 0},
	{0, 0, 0, 1},
}

func affine(a [4][4]float64) *mat64.Dense {
	m := mat64.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, a[i][j])
		}
	}
	return m
}

// fixture is a 4x1x1 grid labelled 1 2 0 3 and five streamlines:
// 1-2, 1-1, 2-3, one ending in background and one leaving the grid.
func fixture(t *testing.T) (*tract.Tractogram, *parc.Volume) {
	t.Helper()
	vol, err := parc.NewVolume([3]int{4, 1, 1}, []int32{1, 2, 0, 3}, affine(identity))
	require.NoError(t, err)

	tg := &tract.Tractogram{
		Frame: tract.Frame{Affine: identity, Dims: [3]int{4, 1, 1}, VoxelSize: [3]float64{1, 1, 1}, Known: true},
		Streamlines: []tract.Streamline{
			{{0, 0, 0}, {0.5, 0.5, 0}, {1, 0, 0}},
			{{0, 0, 0}},
			{{1, 0, 0}, {3, 0, 0}},
			{{3, 0, 0}, {2, 0, 0}},
			{{0, 0, 0}, {9, 0, 0}},
		},
	}
	return tg, vol
}

func options() pipeline.Options {
	return pipeline.Options{Pipeline: config.DefaultConfig().Pipeline}
}

func TestStructural(t *testing.T) {
	tg, vol := fixture(t)
	pl := calc.Init(2, false, nil)
	opts := options()
	opts.Metrics = metrics.New()
	opts.Pipeline.Debug = true

	res, err := pipeline.Structural(context.Background(), pl, opts, tg, vol)
	require.NoError(t, err)

	require.Equal(t, []int32{1, 2, 3}, res.Regions.Labels())
	require.Equal(t, []float64{
		1, 1, 0,
		1, 0, 1,
		0, 1, 0,
	}, res.Counts.RawMatrix().Data)
	require.Equal(t, calc.ClassifyStats{Connected: 3, Background: 1, OutOfBounds: 1}, res.Stats)

	require.InDelta(t, math.Sqrt2, res.Lengths.At(0, 1), 1e-12)
	require.Equal(t, 0.0, res.Lengths.At(0, 0))
	require.Equal(t, 2.0, res.Lengths.At(2, 1))
	require.Equal(t, 0.0, res.Lengths.At(0, 2))

	require.Equal(t, 10.0, res.Weights.At(0, 2))
	require.Equal(t, 0.1, res.Normalized.At(1, 2))
	require.Equal(t, 0.0, res.Normalized.At(0, 2))
	require.Nil(t, res.Commit)
	require.Empty(t, res.Degenerate)
}

func TestStructuralWithoutNormalization(t *testing.T) {
	tg, vol := fixture(t)
	opts := options()
	opts.Pipeline.Normalize = false

	res, err := pipeline.Structural(context.Background(), calc.Init(1, false, nil), opts, tg, vol)
	require.NoError(t, err)
	require.Nil(t, res.Normalized)
	require.Nil(t, res.Weights)
}

func TestStructuralCommitIsInert(t *testing.T) {
	tg, vol := fixture(t)
	var buf bytes.Buffer
	opts := options()
	opts.Pipeline.WeightingMode = config.WeightingCommit
	opts.Log = slog.New(slog.NewTextHandler(&buf, nil))

	res, err := pipeline.Structural(context.Background(), calc.Init(1, false, nil), opts, tg, vol)
	require.NoError(t, err)
	require.Nil(t, res.Commit)
	require.Contains(t, buf.String(), "commit weighting")
}

func TestStructuralDegenerateWeights(t *testing.T) {
	tg, vol := fixture(t)
	opts := options()
	opts.Pipeline.SeedsPerVoxel = 0

	_, err := pipeline.Structural(context.Background(), calc.Init(1, false, nil), opts, tg, vol)
	require.ErrorIs(t, err, fault.ErrDegenerateWeight)

	opts.Pipeline.AllowDegenerateWeights = true
	res, err := pipeline.Structural(context.Background(), calc.Init(1, false, nil), opts, tg, vol)
	require.NoError(t, err)
	require.Len(t, res.Degenerate, 9)
	require.True(t, math.IsInf(res.Normalized.At(0, 1), 1))
	require.True(t, math.IsNaN(res.Normalized.At(0, 2)))
}

func TestStructuralFrameMismatch(t *testing.T) {
	tg, vol := fixture(t)
	tg.Frame.Affine[0][3] = 5

	_, err := pipeline.Structural(context.Background(), calc.Init(1, false, nil), options(), tg, vol)
	require.ErrorIs(t, err, fault.ErrFrameMismatch)

	opts := options()
	opts.Pipeline.FrameCheck = false
	_, err = pipeline.Structural(context.Background(), calc.Init(1, false, nil), opts, tg, vol)
	require.NoError(t, err)
}

func TestStructuralDeterministic(t *testing.T) {
	tg, vol := fixture(t)
	a, err := pipeline.Structural(context.Background(), calc.Init(1, false, nil), options(), tg, vol)
	require.NoError(t, err)
	b, err := pipeline.Structural(context.Background(), calc.Init(5, false, nil), options(), tg, vol)
	require.NoError(t, err)

	require.Equal(t, a.Counts.RawMatrix().Data, b.Counts.RawMatrix().Data)
	require.Equal(t, a.Lengths.RawMatrix().Data, b.Lengths.RawMatrix().Data)
	require.Equal(t, a.Normalized.RawMatrix().Data, b.Normalized.RawMatrix().Data)
}

func TestFrameCheck(t *testing.T) {
	_, vol := fixture(t)

	require.NoError(t, pipeline.FrameCheck(tract.Frame{}, vol, 0))

	f := tract.Frame{Affine: identity, Dims: [3]int{4, 1, 1}, Known: true}
	require.NoError(t, pipeline.FrameCheck(f, vol, 0))

	f.Affine[1][1] = 1.0005
	require.NoError(t, pipeline.FrameCheck(f, vol, 1e-3))
	require.ErrorIs(t, pipeline.FrameCheck(f, vol, 1e-4), fault.ErrFrameMismatch)

	f.Derived = true
	require.NoError(t, pipeline.FrameCheck(f, vol, 0))

	f.Dims = [3]int{4, 2, 1}
	require.ErrorIs(t, pipeline.FrameCheck(f, vol, 0), fault.ErrFrameMismatch)
}

func TestLoadTractogramUnsupported(t *testing.T) {
	_, err := pipeline.LoadTractogram("tracks.vtk")
	require.ErrorIs(t, err, fault.ErrUnsupported)
}

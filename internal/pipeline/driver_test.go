package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/KyungWonPark/Connectome/internal/calc"
	"github.com/KyungWonPark/Connectome/internal/config"
	"github.com/KyungWonPark/Connectome/internal/graphdb"
	cio "github.com/KyungWonPark/Connectome/internal/io"
	"github.com/KyungWonPark/Connectome/internal/metrics"
	"github.com/KyungWonPark/Connectome/internal/nii"
	"github.com/KyungWonPark/Connectome/internal/parc"
	"github.com/KyungWonPark/Connectome/internal/pipeline"
	"github.com/KyungWonPark/Connectome/internal/tract"
	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/require"
)

const trkSuffix = "_run-1__pft_tracking_prob_wm_seed_0.trk"

type countingRunner struct {
	calls int
	err   error
}

func (c *countingRunner) RunTx(context.Context, ...graphdb.Query) error {
	c.calls++
	return c.err
}

func driver(cfg *config.Config, rec *metrics.Recorder) *pipeline.Driver {
	return &pipeline.Driver{
		Config:  cfg,
		PL:      calc.Init(2, false, nil),
		Metrics: rec,
	}
}

func writeSession(t *testing.T, root, session string, withParc bool) {
	t.Helper()
	tg, vol := fixture(t)
	name := "sub-01_" + session

	require.NoError(t, os.MkdirAll(filepath.Join(root, session, "dwi"), 0o755))
	require.NoError(t, tract.WriteTrk(filepath.Join(root, session, "dwi", name+trkSuffix), tg))

	if withParc {
		require.NoError(t, os.MkdirAll(filepath.Join(root, session, "parc"), 0o755))
		require.NoError(t, parc.Save(filepath.Join(root, session, "parc", name+"_DK_DiffusionSpace.nii.gz"), vol))
	}
}

func TestStructuralSubject(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sub-01")
	writeSession(t, root, "ses-1", true)
	writeSession(t, root, "ses-2", false)

	out := t.TempDir()
	rec := metrics.New()
	runner := &countingRunner{}
	d := driver(config.DefaultConfig(), rec)
	d.Sink = graphdb.NewSink(runner, nil)

	err := d.StructuralSubject(context.Background(), root, out)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Contains(t, err.Error(), "ses-2")

	counts, err := cio.NpytoMat64(filepath.Join(out, "sub-01_ses-1_run-1_sc_matrix.npy"))
	require.NoError(t, err)
	require.True(t, mat64.Equal(mat64.NewDense(3, 3, []float64{
		1, 1, 0,
		1, 0, 1,
		0, 1, 0,
	}), counts))

	_, err = os.Stat(filepath.Join(out, "sub-01_ses-2_run-1_sc_matrix.npy"))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, 1, runner.calls)

	prom := filepath.Join(t.TempDir(), "connectome.prom")
	require.NoError(t, rec.WriteTextfile(prom))
	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	require.Contains(t, string(data), `connectome_runs_total{status="ok"} 1`)
	require.Contains(t, string(data), `connectome_runs_total{status="failed"} 1`)
	require.Contains(t, string(data), `connectome_streamlines_total{outcome="connected"} 3`)
}

func TestStructuralSubjectGraphFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sub-01")
	writeSession(t, root, "ses-1", true)

	out := t.TempDir()
	rec := metrics.New()
	boom := errors.New("neo4j unavailable")
	runner := &countingRunner{err: boom}
	d := driver(config.DefaultConfig(), rec)
	d.Sink = graphdb.NewSink(runner, nil)

	err := d.StructuralSubject(context.Background(), root, out)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, runner.calls)

	// staged files were discarded, nothing reached the output directory
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Empty(t, entries)

	prom := filepath.Join(t.TempDir(), "connectome.prom")
	require.NoError(t, rec.WriteTextfile(prom))
	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	require.Contains(t, string(data), `connectome_runs_total{status="failed"} 1`)
	require.NotContains(t, string(data), `connectome_runs_total{status="ok"}`)
}

func TestStructuralSubjectConcurrent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sub-01")
	for _, s := range []string{"ses-1", "ses-2", "ses-3"} {
		writeSession(t, root, s, true)
	}

	cfg := config.DefaultConfig()
	cfg.Pipeline.Concurrency = 3
	out := t.TempDir()
	require.NoError(t, driver(cfg, nil).StructuralSubject(context.Background(), root, out))

	for _, n := range []string{"1", "2", "3"} {
		_, err := os.Stat(filepath.Join(out, "sub-01_ses-"+n+"_run-1_sc_norm_matrix.npy"))
		require.NoError(t, err)
	}
}

func TestStructuralSubjectMissing(t *testing.T) {
	err := driver(config.DefaultConfig(), nil).StructuralSubject(context.Background(), filepath.Join(t.TempDir(), "nobody"), t.TempDir())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFunctionalSubject(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sub-02")
	_, vol := fixture(t)

	// 4x1x1 grid, 5 volumes; voxel i at time t holds (i+1)*t, except voxel 3 which is reversed
	shape := [4]int{4, 1, 1, 5}
	data := make([]float32, 20)
	for tp := 0; tp < 5; tp++ {
		for i := 0; i < 4; i++ {
			v := float32((i + 1) * tp)
			if i == 3 {
				v = float32(4 - tp)
			}
			data[i+4*tp] = v
		}
	}

	base := "sub-02_ses-1_"
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ses-1", "func"), 0o755))
	require.NoError(t, nii.Write(filepath.Join(root, "ses-1", "func", base+"task-rest_space-T1w_desc-preproc_bold.nii.gz"), nii.NewHeader(shape, identity), data))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ses-1", "parc"), 0o755))
	require.NoError(t, parc.Save(filepath.Join(root, "ses-1", "parc", base+"DK_T1space.nii.gz"), vol))

	out := t.TempDir()
	require.NoError(t, driver(config.DefaultConfig(), nil).FunctionalSubject(context.Background(), root, out))

	m, err := cio.NpytoMat64(filepath.Join(out, "ses-1", "sub-02_ses-1_run-1_fc_matrix.npy"))
	require.NoError(t, err)
	require.InDelta(t, 1.0, m.At(0, 1), 1e-9)
	require.InDelta(t, -1.0, m.At(0, 2), 1e-9)

	_, err = os.Stat(filepath.Join(out, "ses-1", "tvb", "sub-02_ses-1_run-1_FC_ts.txt"))
	require.NoError(t, err)
}

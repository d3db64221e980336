package io_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KyungWonPark/Connectome/internal/fault"
	cio "github.com/KyungWonPark/Connectome/internal/io"
	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/require"
)

func TestNpy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.npy")
	m := mat64.NewDense(2, 3, []float64{1, 2.5, 3, -4, 0, 1e-9})

	require.NoError(t, cio.Mat64toNpy(path, m))
	got, err := cio.NpytoMat64(path)
	require.NoError(t, err)
	require.True(t, mat64.Equal(m, got))
}

func TestNpyView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.npy")
	m := mat64.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	view := m.View(1, 1, 2, 2).(*mat64.Dense)

	require.NoError(t, cio.Mat64toNpy(path, view))
	got, err := cio.NpytoMat64(path)
	require.NoError(t, err)
	require.Equal(t, []float64{5, 6, 8, 9}, got.RawMatrix().Data)
}

func TestNpyMissing(t *testing.T) {
	_, err := cio.NpytoMat64(filepath.Join(t.TempDir(), "nope.npy"))
	require.Error(t, err)
}

func TestCSV(t *testing.T) {
	dir := t.TempDir()
	m := mat64.NewDense(2, 2, []float64{0.5, 1, 1, 0.25})

	plain := filepath.Join(dir, "plain.csv")
	require.NoError(t, cio.Mat64toCSV(plain, m, cio.PlainCSV))
	data, err := os.ReadFile(plain)
	require.NoError(t, err)
	require.Equal(t, "0.5, 1\n1, 0.25\n", string(data))

	got, err := cio.CSVtoMat64(plain, ',')
	require.NoError(t, err)
	require.True(t, mat64.Equal(m, got))

	tvb := filepath.Join(dir, "SC.csv")
	require.NoError(t, cio.Mat64toCSV(tvb, m, cio.TVBCSV))
	data, err = os.ReadFile(tvb)
	require.NoError(t, err)
	require.Equal(t, "0.500000,1.000000\n1.000000,0.250000\n", string(data))

	ts := filepath.Join(dir, "ts.txt")
	require.NoError(t, cio.Mat64toCSV(ts, m, cio.TVBText))
	got, err = cio.CSVtoMat64(ts, '\t')
	require.NoError(t, err)
	require.True(t, mat64.Equal(m, got))
}

func TestCSVMalformed(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("1,2\n3,x\n"), 0o644))
	_, err := cio.CSVtoMat64(bad, ',')
	require.ErrorIs(t, err, fault.ErrFormat)

	ragged := filepath.Join(dir, "ragged.csv")
	require.NoError(t, os.WriteFile(ragged, []byte("1,2\n3\n"), 0o644))
	_, err = cio.CSVtoMat64(ragged, ',')
	require.ErrorIs(t, err, fault.ErrFormat)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = cio.CSVtoMat64(empty, ',')
	require.ErrorIs(t, err, fault.ErrShapeMismatch)
}

func TestLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.json")
	require.NoError(t, cio.WriteLabels(path, []int32{2, 5, 1035}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[2,5,1035]", string(data))

	labels, err := cio.ReadLabels(path)
	require.NoError(t, err)
	require.Equal(t, []int32{2, 5, 1035}, labels)

	require.NoError(t, cio.WriteLabels(path, nil))
	labels, err = cio.ReadLabels(path)
	require.NoError(t, err)
	require.Empty(t, labels)
}

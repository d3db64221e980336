package parc_test

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/KyungWonPark/Connectome/internal/nii"
	"github.com/KyungWonPark/Connectome/internal/parc"
	"github.com/KyungWonPark/Connectome/internal/tract"
	"github.com/gonum/matrix/mat64"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func scaled(s float64, tx, ty, tz float64) *mat64.Dense {
	return mat64.NewDense(4, 4, []float64{
		s, 0, 0, tx,
		0, s, 0, ty,
		0, 0, s, tz,
		0, 0, 0, 1,
	})
}

// 4x2x1 grid: labels 0 3 3 7 / 0 7 0 3
func smallVolume(t *testing.T) *parc.Volume {
	t.Helper()
	v, err := parc.NewVolume([3]int{4, 2, 1}, []int32{0, 3, 3, 7, 0, 7, 0, 3}, scaled(2, -4, 0, 0))
	require.NoError(t, err)
	return v
}

func TestRegions(t *testing.T) {
	v := smallVolume(t)

	rs := v.Regions()
	require.Equal(t, 2, rs.Len())
	require.Equal(t, []int32{3, 7}, rs.Labels())

	i, ok := rs.Index(7)
	require.True(t, ok)
	require.Equal(t, 1, i)
	_, ok = rs.Index(0)
	require.False(t, ok)

	require.Equal(t, map[int32]int{0: 3, 3: 3, 7: 2}, v.VoxelCounts())
}

func TestRegionCountFollowsLabels(t *testing.T) {
	v, err := parc.NewVolume([3]int{2, 2, 1}, []int32{1, 2, 5, 9}, scaled(1, 0, 0, 0))
	require.NoError(t, err)
	require.Equal(t, 4, v.Regions().Len())

	v, err = parc.NewVolume([3]int{2, 2, 1}, []int32{1, 1, 0, 9}, scaled(1, 0, 0, 0))
	require.NoError(t, err)
	require.Equal(t, 2, v.Regions().Len())
}

func TestLabelAtPoint(t *testing.T) {
	v := smallVolume(t)

	// world x = 2*i - 4
	l, inside := v.LabelAtPoint(tract.Point{-2, 0, 0})
	require.True(t, inside)
	require.Equal(t, int32(3), l)

	l, inside = v.LabelAtPoint(tract.Point{2, 2, 0})
	require.True(t, inside)
	require.Equal(t, int32(3), l)

	// exactly between voxel 1 and 2 rounds up to voxel 2
	require.Equal(t, [3]int{2, 0, 0}, v.VoxelIndex(tract.Point{-1, 0, 0}))
	// between voxel -1 and 0 rounds up to 0
	require.Equal(t, [3]int{0, 0, 0}, v.VoxelIndex(tract.Point{-5, 0, 0}))

	l, inside = v.LabelAtPoint(tract.Point{10, 0, 0})
	require.False(t, inside)
	require.Equal(t, parc.Background, l)

	l, inside = v.LabelAtPoint(tract.Point{-2, 0, -3})
	require.False(t, inside)
	require.Equal(t, parc.Background, l)
}

func TestNewVolumeErrors(t *testing.T) {
	_, err := parc.NewVolume([3]int{2, 2, 2}, make([]int32, 7), scaled(1, 0, 0, 0))
	require.ErrorIs(t, err, fault.ErrShapeMismatch)

	_, err = parc.NewVolume([3]int{1, 1, 1}, []int32{1}, mat64.NewDense(3, 4, nil))
	require.ErrorIs(t, err, fault.ErrShapeMismatch)

	bad := scaled(1, 0, 0, 0)
	bad.Set(3, 0, 1)
	_, err = parc.NewVolume([3]int{1, 1, 1}, []int32{1}, bad)
	require.ErrorIs(t, err, fault.ErrShapeMismatch)

	_, err = parc.NewVolume([3]int{1, 1, 1}, []int32{1}, scaled(0, 0, 0, 0))
	require.ErrorIs(t, err, fault.ErrShapeMismatch)

	_, err = parc.NewVolume([3]int{1, 1, 1}, []int32{-4}, scaled(1, 0, 0, 0))
	require.ErrorIs(t, err, fault.ErrFormat)
}

func TestSaveLoad(t *testing.T) {
	v := smallVolume(t)

	path := filepath.Join(t.TempDir(), "parc.nii.gz")
	require.NoError(t, parc.Save(path, v))

	got, err := parc.Load(path)
	require.NoError(t, err)
	require.Equal(t, v.Dims, got.Dims)
	require.Equal(t, v.AffineArray(), got.AffineArray())
	require.Equal(t, v.VoxelCounts(), got.VoxelCounts())
	require.Equal(t, int32(7), got.LabelAt(1, 1, 0))
}

func writeLabels(t *testing.T, name string, datatype, bitpix int16, order binary.ByteOrder, data any) string {
	t.Helper()
	h := nii.NewHeader([4]int{4, 2, 1, 1}, smallVolume(t).AffineArray())
	h.Datatype, h.Bitpix = datatype, bitpix

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(name, ".gz") {
		zw := gzip.NewWriter(f)
		defer zw.Close()
		w = zw
	}
	require.NoError(t, nii.Encode(w, h, order, data))
	return path
}

func TestLoadIntegerLabels(t *testing.T) {
	want := smallVolume(t)
	labels := []int32{0, 3, 3, 7, 0, 7, 0, 3}

	int16s := make([]int16, len(labels))
	uint8s := make([]uint8, len(labels))
	for i, l := range labels {
		int16s[i] = int16(l)
		uint8s[i] = uint8(l)
	}

	for _, path := range []string{
		writeLabels(t, "int32.nii", nii.DtInt32, 32, binary.LittleEndian, labels),
		writeLabels(t, "int32.nii.gz", nii.DtInt32, 32, binary.LittleEndian, labels),
		writeLabels(t, "int32be.nii", nii.DtInt32, 32, binary.BigEndian, labels),
		writeLabels(t, "int16.nii", nii.DtInt16, 16, binary.LittleEndian, int16s),
		writeLabels(t, "int16be.nii.gz", nii.DtInt16, 16, binary.BigEndian, int16s),
		writeLabels(t, "uint8.nii", nii.DtUint8, 8, binary.LittleEndian, uint8s),
	} {
		got, err := parc.Load(path)
		require.NoError(t, err, path)
		require.Equal(t, []int32{3, 7}, got.Regions().Labels(), path)
		require.Equal(t, want.VoxelCounts(), got.VoxelCounts(), path)
		require.Equal(t, int32(7), got.LabelAt(3, 0, 0), path)
		require.Equal(t, want.AffineArray(), got.AffineArray(), path)
	}
}

func TestLoadUnsupportedDatatype(t *testing.T) {
	h := nii.NewHeader([4]int{2, 1, 1, 1}, smallVolume(t).AffineArray())
	h.Datatype, h.Bitpix = 128, 24

	path := filepath.Join(t.TempDir(), "rgb.nii")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, binary.Write(f, binary.LittleEndian, &h))
	_, err = f.Write(make([]byte, 4+6))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = parc.Load(path)
	require.ErrorIs(t, err, fault.ErrUnsupported)
}

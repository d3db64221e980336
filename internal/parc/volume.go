// Package parc holds the parcellation volume: a 3D label grid with its voxel-to-world affine.
package parc

import (
	"fmt"
	"math"
	"sort"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/KyungWonPark/Connectome/internal/tract"
	"github.com/gonum/matrix/mat64"
)

// Background is the reserved label of unlabeled tissue.
const Background int32 = 0

// Volume is an immutable label grid. Labels are stored x fastest, then y, then z.
type Volume struct {
	Dims [3]int

	labels  []int32
	affine  *mat64.Dense
	inverse *mat64.Dense
}

// NewVolume validates and wraps a label grid. affine must be a 4x4 voxel-to-world transform.
func NewVolume(dims [3]int, labels []int32, affine *mat64.Dense) (*Volume, error) {
	n := 1
	for _, d := range dims {
		if d < 1 {
			return nil, fmt.Errorf("[NewVolume] %w: grid dims %v", fault.ErrShapeMismatch, dims)
		}
		n *= d
	}
	if len(labels) != n {
		return nil, fmt.Errorf("[NewVolume] %w: %d labels for grid %v", fault.ErrShapeMismatch, len(labels), dims)
	}

	if affine == nil {
		return nil, fmt.Errorf("[NewVolume] %w: missing affine", fault.ErrShapeMismatch)
	}
	if r, c := affine.Dims(); r != 4 || c != 4 {
		return nil, fmt.Errorf("[NewVolume] %w: affine is %d by %d", fault.ErrShapeMismatch, r, c)
	}
	if affine.At(3, 0) != 0 || affine.At(3, 1) != 0 || affine.At(3, 2) != 0 || affine.At(3, 3) != 1 {
		return nil, fmt.Errorf("[NewVolume] %w: affine last row is not [0 0 0 1]", fault.ErrShapeMismatch)
	}

	inverse := mat64.NewDense(4, 4, nil)
	if err := inverse.Inverse(affine); err != nil {
		return nil, fmt.Errorf("[NewVolume] %w: affine is not invertible: %v", fault.ErrShapeMismatch, err)
	}

	for i, l := range labels {
		if l < 0 {
			return nil, fmt.Errorf("[NewVolume] %w: negative label %d at voxel %d", fault.ErrFormat, l, i)
		}
	}

	v := &Volume{
		Dims:    dims,
		labels:  append([]int32(nil), labels...),
		affine:  mat64.DenseCopyOf(affine),
		inverse: inverse,
	}

	return v, nil
}

// Affine returns a copy of the voxel-to-world transform.
func (v *Volume) Affine() *mat64.Dense {
	return mat64.DenseCopyOf(v.affine)
}

// AffineArray returns the voxel-to-world transform as an array.
func (v *Volume) AffineArray() [4][4]float64 {
	var a [4][4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[i][j] = v.affine.At(i, j)
		}
	}

	return a
}

// Contains reports whether (i, j, k) lies inside the grid.
func (v *Volume) Contains(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < v.Dims[0] && j < v.Dims[1] && k < v.Dims[2]
}

// LabelAt returns the label of voxel (i, j, k); voxels outside the grid are Background.
func (v *Volume) LabelAt(i, j, k int) int32 {
	if !v.Contains(i, j, k) {
		return Background
	}

	return v.labels[i+v.Dims[0]*(j+v.Dims[1]*k)]
}

// VoxelIndex maps a world point to the nearest voxel index. Halves round up.
func (v *Volume) VoxelIndex(p tract.Point) [3]int {
	var idx [3]int
	for r := 0; r < 3; r++ {
		c := v.inverse.At(r, 0)*p[0] + v.inverse.At(r, 1)*p[1] + v.inverse.At(r, 2)*p[2] + v.inverse.At(r, 3)
		idx[r] = int(math.Floor(c + 0.5))
	}

	return idx
}

// LabelAtPoint returns the label under a world point and whether the point fell inside the grid.
func (v *Volume) LabelAtPoint(p tract.Point) (int32, bool) {
	idx := v.VoxelIndex(p)
	if !v.Contains(idx[0], idx[1], idx[2]) {
		return Background, false
	}

	return v.LabelAt(idx[0], idx[1], idx[2]), true
}

// VoxelCounts returns the number of voxels of every label present, background included.
func (v *Volume) VoxelCounts() map[int32]int {
	counts := make(map[int32]int)
	for _, l := range v.labels {
		counts[l]++
	}

	return counts
}

// Regions returns the sorted set of non-background labels present in the volume.
func (v *Volume) Regions() *RegionSet {
	counts := v.VoxelCounts()
	labels := make([]int32, 0, len(counts))
	for l := range counts {
		if l != Background {
			labels = append(labels, l)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	return NewRegionSet(labels)
}

// RegionSet is an ascending list of region labels with a reverse index.
type RegionSet struct {
	labels []int32
	index  map[int32]int
}

// NewRegionSet builds a region set from ascending, distinct, non-background labels.
func NewRegionSet(labels []int32) *RegionSet {
	rs := &RegionSet{
		labels: append([]int32(nil), labels...),
		index:  make(map[int32]int, len(labels)),
	}
	for i, l := range rs.labels {
		rs.index[l] = i
	}

	return rs
}

// Len returns the number of regions R.
func (rs *RegionSet) Len() int {
	return len(rs.labels)
}

// Labels returns a copy of the region labels in matrix order.
func (rs *RegionSet) Labels() []int32 {
	return append([]int32(nil), rs.labels...)
}

// Label returns the label of matrix index i.
func (rs *RegionSet) Label(i int) int32 {
	return rs.labels[i]
}

// Index returns the matrix index of label l.
func (rs *RegionSet) Index(l int32) (int, bool) {
	i, ok := rs.index[l]
	return i, ok
}

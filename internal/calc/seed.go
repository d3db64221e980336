package calc

import (
	"github.com/KyungWonPark/Connectome/internal/parc"
	"github.com/gonum/matrix/mat64"
)

// DefaultSeedsPerVoxel is the tractography seed density assumed when none is configured.
const DefaultSeedsPerVoxel = 10

// SeedWeights returns the R by R seed weight matrix
//
//	W[i,j] = (voxels(i) + voxels(j)) * seedsPerVoxel / 2
//
// over the region set. Background never enters the matrix, so computing the
// full label table and dropping its row and column is the same as filling the
// region block directly.
func (p *PipeLine) SeedWeights(vol *parc.Volume, regions *parc.RegionSet, seedsPerVoxel float64) *mat64.Dense {
	counts := vol.VoxelCounts()
	n := regions.Len()

	voxels := make([]float64, n)
	for i := 0; i < n; i++ {
		voxels[i] = float64(counts[regions.Label(i)])
	}

	weights := mat64.NewDense(n, n, nil)
	p.rows(n, func(i int) {
		row := weights.RawRowView(i)
		for j := 0; j < n; j++ {
			row[j] = (voxels[i] + voxels[j]) * seedsPerVoxel / 2
		}
	})

	p.debugf("[SeedWeights] done", "regions", n, "seeds_per_voxel", seedsPerVoxel)
	return weights
}

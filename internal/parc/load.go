package parc

import (
	"fmt"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/KyungWonPark/Connectome/internal/nii"
	"github.com/gonum/matrix/mat64"
)

// Load reads a parcellation image. Voxel values are truncated to integer labels.
func Load(path string) (*Volume, error) {
	img, err := nii.Open(path)
	if err != nil {
		return nil, err
	}
	if img.Shape[3] != 1 {
		return nil, fmt.Errorf("[parc.Load] %s: %w: parcellation has %d volumes", path, fault.ErrShapeMismatch, img.Shape[3])
	}

	dims := [3]int{img.Shape[0], img.Shape[1], img.Shape[2]}
	labels := make([]int32, dims[0]*dims[1]*dims[2])
	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				labels[i+dims[0]*(j+dims[1]*k)] = int32(img.At(i, j, k, 0))
			}
		}
	}

	affine := mat64.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			affine.Set(i, j, img.Affine[i][j])
		}
	}

	v, err := NewVolume(dims, labels, affine)
	if err != nil {
		return nil, fmt.Errorf("[parc.Load] %s: %w", path, err)
	}

	return v, nil
}

// Save writes v as a float32 NIfTI-1 image.
func Save(path string, v *Volume) error {
	data := make([]float32, len(v.labels))
	for i, l := range v.labels {
		data[i] = float32(l)
	}

	hdr := nii.NewHeader([4]int{v.Dims[0], v.Dims[1], v.Dims[2], 1}, v.AffineArray())
	return nii.Write(path, hdr, data)
}

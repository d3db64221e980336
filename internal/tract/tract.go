// Package tract holds streamlines and the readers/writers of tractogram containers.
package tract

import (
	"github.com/gonum/floats"
)

// Point is a world coordinate in mm.
type Point [3]float64

// Streamline is one reconstructed fiber, an ordered sequence of points.
type Streamline []Point

// Endpoints returns the first and last point. ok is false for an empty streamline.
func (s Streamline) Endpoints() (first Point, last Point, ok bool) {
	if len(s) == 0 {
		return first, last, false
	}

	return s[0], s[len(s)-1], true
}

// Length returns the arc length of s: the sum of Euclidean distances between consecutive points.
func (s Streamline) Length() float64 {
	var acc float64
	for i := 1; i < len(s); i++ {
		acc += floats.Distance(s[i-1][:], s[i][:], 2)
	}

	return acc
}

// Frame identifies the voxel grid a tractogram was reconstructed in.
// Known is false when the container carries no such information (e.g. tck).
// Derived is set when the affine was rebuilt from the voxel size alone.
type Frame struct {
	Affine    [4][4]float64
	Dims      [3]int
	VoxelSize [3]float64
	Known     bool
	Derived   bool
}

// Tractogram is an ordered collection of streamlines sharing one reference frame.
type Tractogram struct {
	Streamlines []Streamline
	Frame       Frame
}

// Len returns the number of streamlines.
func (t *Tractogram) Len() int {
	return len(t.Streamlines)
}

package io

import (
	"fmt"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

// Mat64toNpy writes mat64 matrix to Python numpy npy binary file (float64, C order)
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("[Mat64toNpy] failed to open %s: %w", path, err)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2

	// RawMatrix shares storage with views; copy keeps the stride out of the file.
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, matrix.RawRowView(i)...)
	}

	if err := w.WriteFloat64(data); err != nil {
		return fmt.Errorf("[Mat64toNpy] failed to write %s: %w", path, err)
	}

	return nil
}

// NpytoMat64 reads Python numpy npy binary file as mat64 matrix. A 1-D array
// becomes a single row.
func NpytoMat64(path string) (*mat64.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("[NpytoMat64] failed to open %s: %w", path, err)
	}

	var rows, cols int
	switch len(r.Shape) {
	case 1:
		rows, cols = 1, r.Shape[0]
	case 2:
		rows, cols = r.Shape[0], r.Shape[1]
	default:
		return nil, fmt.Errorf("[NpytoMat64] %w: %s has shape %v", fault.ErrShapeMismatch, path, r.Shape)
	}
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("[NpytoMat64] %w: %s is empty", fault.ErrShapeMismatch, path)
	}

	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("[NpytoMat64] %w: %s: %v", fault.ErrFormat, path, err)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("[NpytoMat64] %w: %s holds %d values for shape %v", fault.ErrFormat, path, len(data), r.Shape)
	}

	if r.ColumnMajor {
		return mat64.DenseCopyOf(mat64.NewDense(cols, rows, data).T()), nil
	}

	return mat64.NewDense(rows, cols, data), nil
}

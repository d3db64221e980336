package calc

import (
	"fmt"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/gonum/matrix/mat64"
)

// Normalize divides counts by weights elementwise. Cells whose weight is zero keep
// the IEEE quotient (NaN for 0/0, +Inf otherwise) and are reported through a
// *fault.DegenerateWeightError returned together with the matrix.
func (p *PipeLine) Normalize(counts *mat64.Dense, weights *mat64.Dense) (*mat64.Dense, error) {
	rows, cols := counts.Dims()
	wRows, wCols := weights.Dims()

	if rows != wRows || cols != wCols {
		return nil, fmt.Errorf("[Normalize] %w: counts dims: %d by %d when weight dims: %d by %d", fault.ErrShapeMismatch, rows, cols, wRows, wCols)
	}

	normalized := mat64.NewDense(rows, cols, nil)
	zero := make([][]fault.Cell, rows)

	p.rows(rows, func(i int) {
		c := counts.RawRowView(i)
		w := weights.RawRowView(i)
		out := normalized.RawRowView(i)
		for j := range out {
			if w[j] == 0 {
				zero[i] = append(zero[i], fault.Cell{Row: i, Col: j})
			}
			out[j] = c[j] / w[j]
		}
	})

	var cells []fault.Cell
	for _, z := range zero {
		cells = append(cells, z...)
	}
	if len(cells) > 0 {
		return normalized, &fault.DegenerateWeightError{Cells: cells}
	}

	return normalized, nil
}

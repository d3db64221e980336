package calc

import (
	"fmt"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/gonum/matrix/mat64"
)

// Acc merges a partial matrix into outputMat (outputMat += inputMat), one row per job.
func (p *PipeLine) Acc(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return fmt.Errorf("[Acc] %w: input dims: %d by %d when output dims: %d by %d", fault.ErrShapeMismatch, inputRows, inputCols, outputRows, outputCols)
	}

	p.rows(inputRows, func(index int) {
		in := inputMat.RawRowView(index)
		out := outputMat.RawRowView(index)
		for t := range in {
			out[t] += in[t]
		}
	})

	return nil
}

package calc

import (
	"fmt"
	"math"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

type statistic struct {
	avg float64
	std float64
}

// rowStats returns the population mean and standard deviation of every row.
// The deviation is summed around the mean so large offsets keep their precision.
func (p *PipeLine) rowStats(m *mat64.Dense) []statistic {
	rows, cols := m.Dims()
	stats := make([]statistic, rows)

	p.rows(rows, func(index int) {
		row := m.RawRowView(index)

		var accVal float64
		for _, value := range row {
			accVal += value
		}
		avgVal := accVal / float64(cols)

		var accSqrDev float64
		for _, value := range row {
			d := value - avgVal
			accSqrDev += d * d
		}

		stats[index].avg = avgVal
		stats[index].std = math.Sqrt(accSqrDev / float64(cols))
	})

	return stats
}

// Pearson correlates every pair of rows of timeSeriesMat (one region per row,
// one time point per column) into the square outputMat. A constant row yields NaN.
func (p *PipeLine) Pearson(timeSeriesMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := timeSeriesMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputRows {
		return fmt.Errorf("[Pearson] %w: input is %d by %d but output is %d by %d", fault.ErrShapeMismatch, inputRows, inputCols, outputRows, outputCols)
	}

	stats := p.rowStats(timeSeriesMat)

	centered := mat64.NewDense(inputRows, inputCols, nil)
	p.rows(inputRows, func(index int) {
		out := centered.RawRowView(index)
		copy(out, timeSeriesMat.RawRowView(index))
		floats.AddConst(-stats[index].avg, out)
	})

	p.rows(inputRows, func(from int) {
		x := centered.RawRowView(from)
		for to := from; to < inputRows; to++ {
			cov := floats.Dot(x, centered.RawRowView(to)) / float64(inputCols)
			r := cov / (stats[from].std * stats[to].std)
			if stats[from].std == 0 || stats[to].std == 0 {
				r = math.NaN()
			}

			outputMat.Set(from, to, r)
			outputMat.Set(to, from, r)
		}
	})

	p.debugf("[Pearson] done", "regions", inputRows, "timepoints", inputCols)
	return nil
}

// ZScoring standardises each row to zero mean and unit population deviation.
func (p *PipeLine) ZScoring(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputCols {
		return fmt.Errorf("[ZScoring] %w: input is %d by %d but output is %d by %d", fault.ErrShapeMismatch, inputRows, inputCols, outputRows, outputCols)
	}

	stats := p.rowStats(inputMat)

	p.rows(inputRows, func(index int) {
		in := inputMat.RawRowView(index)
		out := outputMat.RawRowView(index)
		for t, value := range in {
			out[t] = (value - stats[index].avg) / stats[index].std
		}
	})

	return nil
}

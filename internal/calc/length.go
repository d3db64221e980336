package calc

import (
	"context"

	"github.com/KyungWonPark/Connectome/internal/tract"
	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/stat"
)

// MeanLengths returns the R by R matrix of mean arc length per bundle.
// Pairs without streamlines stay exactly 0.
func (p *PipeLine) MeanLengths(ctx context.Context, tg *tract.Tractogram, conn *Connectivity) (*mat64.Dense, error) {
	n, _ := conn.Counts.Dims()
	lengths := mat64.NewDense(n, n, nil)
	pairs := conn.Bundles.Pairs()

	p.rows(len(pairs), func(k int) {
		if ctx.Err() != nil {
			return
		}

		pair := pairs[k]
		members := conn.Bundles[pair]
		if len(members) == 0 {
			return
		}

		arc := make([]float64, len(members))
		for m, idx := range members {
			arc[m] = tg.Streamlines[idx].Length()
		}

		mean := stat.Mean(arc, nil)
		lengths.Set(pair.I, pair.J, mean)
		lengths.Set(pair.J, pair.I, mean)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.debugf("[MeanLengths] done", "bundles", len(pairs))
	return lengths, nil
}

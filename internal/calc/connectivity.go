package calc

import (
	"context"
	"fmt"
	"sort"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/KyungWonPark/Connectome/internal/parc"
	"github.com/KyungWonPark/Connectome/internal/tract"
	"github.com/gonum/matrix/mat64"
	"golang.org/x/sync/errgroup"
)

// cancelCheck is how many streamlines a worker classifies between context checks.
const cancelCheck = 4096

// Pair is an unordered region pair in matrix indices, I <= J.
type Pair struct {
	I int
	J int
}

func newPair(a, b int) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{I: a, J: b}
}

// Bundles maps a region pair to the indices (ascending) of the streamlines connecting it.
type Bundles map[Pair][]int

// Pairs returns the bundle keys in row-major order.
func (b Bundles) Pairs() []Pair {
	pairs := make([]Pair, 0, len(b))
	for k := range b {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].I != pairs[j].I {
			return pairs[i].I < pairs[j].I
		}
		return pairs[i].J < pairs[j].J
	})

	return pairs
}

// ClassifyStats counts what happened to each streamline.
type ClassifyStats struct {
	Connected   int
	Background  int
	OutOfBounds int
	Empty       int
}

func (s *ClassifyStats) add(o ClassifyStats) {
	s.Connected += o.Connected
	s.Background += o.Background
	s.OutOfBounds += o.OutOfBounds
	s.Empty += o.Empty
}

// Connectivity is the builder output: a symmetric count matrix over the region set
// and the streamlines behind every non-zero cell.
type Connectivity struct {
	Regions *parc.RegionSet
	Counts  *mat64.Dense
	Bundles Bundles
	Stats   ClassifyStats
}

type partial struct {
	counts  *mat64.Dense
	bundles Bundles
	stats   ClassifyStats
}

// Connectivity maps both endpoints of every streamline to a region and accumulates
// the count matrix and bundles. Streamlines are split into contiguous chunks, one
// partial result per chunk, merged in chunk order once every worker is done.
func (p *PipeLine) Connectivity(ctx context.Context, tg *tract.Tractogram, vol *parc.Volume, regions *parc.RegionSet) (*Connectivity, error) {
	n := regions.Len()
	if n == 0 {
		return nil, fmt.Errorf("[Connectivity] %w: parcellation has no labelled regions", fault.ErrFormat)
	}

	total := tg.Len()
	chunk := (total + p.numPoper - 1) / p.numPoper
	if chunk == 0 {
		chunk = 1
	}
	numChunks := (total + chunk - 1) / chunk

	parts := make([]partial, numChunks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.numPoper)

	for c := 0; c < numChunks; c++ {
		c := c
		g.Go(func() error {
			from := c * chunk
			to := from + chunk
			if to > total {
				to = total
			}

			part, err := classify(gctx, tg.Streamlines, from, to, vol, regions)
			if err != nil {
				return err
			}
			parts[c] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Connectivity{
		Regions: regions,
		Counts:  mat64.NewDense(n, n, nil),
		Bundles: make(Bundles),
	}
	for _, part := range parts {
		if err := p.Acc(part.counts, out.Counts); err != nil {
			return nil, err
		}
		for pair, members := range part.bundles {
			out.Bundles[pair] = append(out.Bundles[pair], members...)
		}
		out.Stats.add(part.stats)
	}

	p.debugf("[Connectivity] done", "streamlines", total, "chunks", numChunks,
		"connected", out.Stats.Connected, "background", out.Stats.Background,
		"out_of_bounds", out.Stats.OutOfBounds, "empty", out.Stats.Empty)
	return out, nil
}

func classify(ctx context.Context, streamlines []tract.Streamline, from, to int, vol *parc.Volume, regions *parc.RegionSet) (partial, error) {
	n := regions.Len()
	part := partial{
		counts:  mat64.NewDense(n, n, nil),
		bundles: make(Bundles),
	}

	for idx := from; idx < to; idx++ {
		if (idx-from)%cancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				return partial{}, err
			}
		}

		first, last, ok := streamlines[idx].Endpoints()
		if !ok {
			part.stats.Empty++
			continue
		}

		la, inA := vol.LabelAtPoint(first)
		lb, inB := vol.LabelAtPoint(last)
		if !inA || !inB {
			part.stats.OutOfBounds++
			continue
		}
		if la == parc.Background || lb == parc.Background {
			part.stats.Background++
			continue
		}

		a, okA := regions.Index(la)
		b, okB := regions.Index(lb)
		if !okA || !okB {
			return partial{}, fmt.Errorf("[Connectivity] %w: labels %d/%d are not in the region set", fault.ErrShapeMismatch, la, lb)
		}

		part.counts.Set(a, b, part.counts.At(a, b)+1)
		if a != b {
			part.counts.Set(b, a, part.counts.At(b, a)+1)
		}

		key := newPair(a, b)
		part.bundles[key] = append(part.bundles[key], idx)
		part.stats.Connected++
	}

	return part, nil
}

package calc

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// SymCheck checks symmetry within pre. Two NaN cells count as equal.
func (p *PipeLine) SymCheck(matrix *mat64.Dense, pre float64) bool {
	rows, cols := matrix.Dims()
	if rows != cols {
		return false
	}

	isSymm := make([]bool, rows)
	pre = math.Abs(pre)

	p.rows(rows, func(index int) {
		isSymm[index] = true
		for i := index; i < cols; i++ {
			a, b := matrix.At(index, i), matrix.At(i, index)
			if math.IsNaN(a) && math.IsNaN(b) {
				continue
			}
			if a == b {
				continue
			}
			if !(math.Abs(a-b) <= pre) {
				isSymm[index] = false
				break
			}
		}
	})

	symm := true
	for i := 0; i < rows; i++ {
		symm = symm && isSymm[i]
	}

	return symm
}

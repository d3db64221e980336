// Package fault holds the error kinds shared by the connectome packages.
package fault

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Sentinel errors. Wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrFormat marks malformed or unreadable streamline or parcellation input.
	ErrFormat = errors.New("malformed input")
	// ErrShapeMismatch marks inconsistent grid, affine or matrix dimensions.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrFrameMismatch marks a tractogram whose reference frame differs from the parcellation.
	ErrFrameMismatch = errors.New("coordinate frame mismatch")
	// ErrDegenerateWeight marks a zero seed weight met during normalization.
	ErrDegenerateWeight = errors.New("degenerate seed weight")
	// ErrUnsupported marks a recognised but unimplemented option.
	ErrUnsupported = errors.New("unsupported")
)

// Cell addresses one matrix entry.
type Cell struct {
	Row int
	Col int
}

// DegenerateWeightError lists the cells whose seed weight was zero.
type DegenerateWeightError struct {
	Cells []Cell
}

func (e *DegenerateWeightError) Error() string {
	if len(e.Cells) == 0 {
		return ErrDegenerateWeight.Error()
	}
	c := e.Cells[0]
	return fmt.Sprintf("%s: %d cell(s) with zero weight, first at [%d,%d]", ErrDegenerateWeight, len(e.Cells), c.Row, c.Col)
}

// Is reports ErrDegenerateWeight as the kind of e.
func (e *DegenerateWeightError) Is(target error) bool {
	return target == ErrDegenerateWeight
}

// Kind is a coarse error class used for logs and metrics labels.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindFormat  Kind = "format"
	KindShape   Kind = "shape"
	KindFrame   Kind = "frame"
	KindWeight  Kind = "weight"
	KindIO      Kind = "io"
	KindCancel  Kind = "cancel"
)

// Classify maps err to its Kind. Only sentinels and standard error types are inspected.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancel
	case errors.Is(err, ErrFormat):
		return KindFormat
	case errors.Is(err, ErrShapeMismatch):
		return KindShape
	case errors.Is(err, ErrFrameMismatch):
		return KindFrame
	case errors.Is(err, ErrDegenerateWeight):
		return KindWeight
	}

	var perr *os.PathError
	if errors.As(err, &perr) {
		return KindIO
	}

	return KindUnknown
}

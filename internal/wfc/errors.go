package wfc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("wfc: invalid argument")
	ErrContradiction   = errors.New("wfc: contradiction - no valid tiles for cell")
	ErrInconsistent    = errors.New("wfc: adjacent tiles do not match")
	ErrNoSolution      = errors.New("wfc: failed to find valid solution")
)

// ContradictionError reports the cell whose candidate set would have become empty
type ContradictionError struct {
	Cell CellID
}

func (e *ContradictionError) Error() string {
	return fmt.Sprintf("wfc: contradiction at cell %d", e.Cell)
}

// Unwrap lets errors.Is match ErrContradiction
func (e *ContradictionError) Unwrap() error {
	return ErrContradiction
}

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

package domain

import "fmt"

// Grid bounds and palette range.
const (
	MinGridSize = 1
	MaxGridSize = 30
	MinColor    = 0
	MaxColor    = 9
)

// Grid is a rectangular array of colors 0..9, indexed [row][col].
type Grid [][]int

// Rows returns the number of rows.
func (g Grid) Rows() int { return len(g) }

// Cols returns the number of columns, or 0 for an empty grid.
func (g Grid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// InBounds reports whether (row, col) addresses a cell of g.
func (g Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Rows() && col >= 0 && col < g.Cols()
}

// Validate checks dimension bounds, rectangularity and the color range.
func (g Grid) Validate() error {
	if len(g) < MinGridSize || len(g) > MaxGridSize {
		return NewEngineError(ErrInvalidGrid.Code, fmt.Sprintf("%s: %d rows, want %d..%d", ErrInvalidGrid.Message, len(g), MinGridSize, MaxGridSize))
	}
	cols := len(g[0])
	if cols < MinGridSize || cols > MaxGridSize {
		return NewEngineError(ErrInvalidGrid.Code, fmt.Sprintf("%s: %d columns, want %d..%d", ErrInvalidGrid.Message, cols, MinGridSize, MaxGridSize))
	}
	for r, row := range g {
		if len(row) != cols {
			return NewEngineError(ErrInvalidGrid.Code, fmt.Sprintf("%s: row %d has %d cells, want %d", ErrInvalidGrid.Message, r, len(row), cols))
		}
		for c, v := range row {
			if !ValidColor(v) {
				return NewEngineError(ErrInvalidGrid.Code, fmt.Sprintf("%s: cell (%d,%d) = %d", ErrInvalidGrid.Message, r, c, v))
			}
		}
	}
	return nil
}

// Clone returns a deep copy of g.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for r, row := range g {
		out[r] = append([]int(nil), row...)
	}
	return out
}

// Equal reports deep structural equality.
func (g Grid) Equal(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for r := range g {
		if len(g[r]) != len(other[r]) {
			return false
		}
		for c := range g[r] {
			if g[r][c] != other[r][c] {
				return false
			}
		}
	}
	return true
}

// ValidColor reports whether c is in the palette.
func ValidColor(c int) bool {
	return c >= MinColor && c <= MaxColor
}

// ValidDimensions reports whether rows x cols is an allowed grid size.
func ValidDimensions(rows, cols int) bool {
	return rows >= MinGridSize && rows <= MaxGridSize && cols >= MinGridSize && cols <= MaxGridSize
}

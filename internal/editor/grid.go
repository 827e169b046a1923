// Package editor implements the interactive ARC grid editor: the grid store,
// mode and gesture handling, coordinate resolution, action recording and the
// safety limiter. Everything here is single-threaded; hosts serialize calls
// per session.
package editor

import "github.com/arc-hci/arcgrid/internal/domain"

// GridStore owns the current grid value. The Recorder is its only writer.
type GridStore struct {
	grid domain.Grid
}

// NewGridStore creates a store holding a copy of g.
func NewGridStore(g domain.Grid) (*GridStore, error) {
	s := &GridStore{}
	if err := s.Replace(g); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a copy of the current grid.
func (s *GridStore) Get() domain.Grid {
	return s.grid.Clone()
}

// At returns the color of one cell. The caller checks bounds.
func (s *GridStore) At(row, col int) int {
	return s.grid[row][col]
}

// Rows returns the current row count.
func (s *GridStore) Rows() int { return s.grid.Rows() }

// Cols returns the current column count.
func (s *GridStore) Cols() int { return s.grid.Cols() }

// Replace validates g and replaces the stored grid wholesale.
func (s *GridStore) Replace(g domain.Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.grid = g.Clone()
	return nil
}

// Equals reports deep structural equality of two grids.
func Equals(a, b domain.Grid) bool {
	return a.Equal(b)
}

// IsAllZero reports whether every cell of g is 0.
func IsAllZero(g domain.Grid) bool {
	return IsUniform(g, 0)
}

// IsUniform reports whether every cell of g equals color.
func IsUniform(g domain.Grid, color int) bool {
	for _, row := range g {
		for _, v := range row {
			if v != color {
				return false
			}
		}
	}
	return true
}

// Filled returns a grid of the same shape with every cell set to color.
func Filled(g domain.Grid, color int) domain.Grid {
	return Blank(g.Rows(), g.Cols(), color)
}

// Blank returns a rows x cols grid with every cell set to color.
func Blank(rows, cols, color int) domain.Grid {
	out := make(domain.Grid, rows)
	for r := range out {
		out[r] = make([]int, cols)
		if color != 0 {
			for c := range out[r] {
				out[r][c] = color
			}
		}
	}
	return out
}

// Resized returns a rows x cols grid that keeps every overlapping cell of g
// by position and zero-fills added cells.
func Resized(g domain.Grid, rows, cols int) domain.Grid {
	out := Blank(rows, cols, 0)
	for r := 0; r < rows && r < g.Rows(); r++ {
		for c := 0; c < cols && c < g.Cols(); c++ {
			out[r][c] = g[r][c]
		}
	}
	return out
}

// WithRect returns a copy of g with every cell inside rect set to color, and
// the number of cells whose value actually changed. The rect is clipped to g.
func WithRect(g domain.Grid, rect domain.Rect, color int) (domain.Grid, int) {
	out := g.Clone()
	changed := 0
	for r := max(rect.MinRow, 0); r <= rect.MaxRow && r < out.Rows(); r++ {
		for c := max(rect.MinCol, 0); c <= rect.MaxCol && c < out.Cols(); c++ {
			if out[r][c] != color {
				out[r][c] = color
				changed++
			}
		}
	}
	return out, changed
}

// WithCell returns a copy of g with a single cell set to color.
func WithCell(g domain.Grid, row, col, color int) domain.Grid {
	out := g.Clone()
	out[row][col] = color
	return out
}

// CountMismatches compares a submission against the ground truth. A shape
// mismatch is reported separately and counts no cells.
func CountMismatches(got, want domain.Grid) (sizeMatch bool, mismatched int) {
	if got.Rows() != want.Rows() || got.Cols() != want.Cols() {
		return false, 0
	}
	for r := range got {
		for c := range got[r] {
			if got[r][c] != want[r][c] {
				mismatched++
			}
		}
	}
	return true, mismatched
}

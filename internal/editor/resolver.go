package editor

import (
	"math"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// Zoom bounds for pinch gestures.
const (
	MinZoom = 0.5
	MaxZoom = 3.0
)

// Resolver maps display positions to grid cells. It is shared by the mouse
// and touch paths.
type Resolver struct {
	MinCellSizePx float64
}

// CellSize returns the rendered cell edge in pixels:
// max(minCellSizePx, floor(maxDisplaySizePx / max(rows, cols))) scaled by zoom.
func (r Resolver) CellSize(rows, cols int, maxDisplaySizePx, scale float64) float64 {
	longest := max(rows, cols, 1)
	size := math.Floor(maxDisplaySizePx / float64(longest))
	if size < r.MinCellSizePx {
		size = r.MinCellSizePx
	}
	if scale > 0 {
		size *= scale
	}
	return size
}

// Resolve returns the cell under (x, y), or false when the point lies outside
// the grid.
func (r Resolver) Resolve(x, y float64, rows, cols int, vp domain.Viewport, scale float64) (domain.Cell, bool) {
	size := r.CellSize(rows, cols, vp.MaxDisplaySizePx, scale)
	if size <= 0 {
		return domain.Cell{}, false
	}
	col := int(math.Floor((x - vp.OriginX) / size))
	row := int(math.Floor((y - vp.OriginY) / size))
	if row < 0 || row >= rows || col < 0 || col >= cols {
		return domain.Cell{}, false
	}
	return domain.Cell{Row: row, Col: col}, true
}

// ClampZoom bounds a zoom factor to [MinZoom, MaxZoom].
func ClampZoom(scale float64) float64 {
	return math.Min(MaxZoom, math.Max(MinZoom, scale))
}

func distance(a, b domain.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Package occupancy turns raw occupancy-grid messages into a queryable, inflated obstacle model.
package occupancy

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

const (
	// Unknown is the probability sentinel for cells that have not been observed.
	Unknown int8 = -1
	// DefaultThreshold is the combined occupancy probability at or above which a state is blocked.
	DefaultThreshold = 0.5
	// occupiedProbability is the per-cell value at or above which a cell is drawn as an obstacle.
	occupiedProbability = 50
)

// ErrMalformedGrid is returned when metadata and cell data disagree. No field is built.
var ErrMalformedGrid = errors.New("malformed occupancy grid")

// GridMetadata describes the layout of a grid: cell counts, meters per cell and the world
// position of cell (0, 0).
type GridMetadata struct {
	Width      int
	Height     int
	Resolution float64
	Origin     r2.Point
}

// Valid reports whether the metadata describes a non-empty grid.
func (m GridMetadata) Valid() bool {
	return m.Width > 0 && m.Height > 0 && m.Resolution > 0
}

// Field is an immutable occupancy model built from one map update. It is safe for concurrent
// reads; a new map produces a new Field rather than mutating this one.
type Field struct {
	meta      GridMetadata
	probs     []int8
	window    int
	threshold float64
}

// InflationCells returns the inflation window in map cells:
// round(planResolution / mapResolution) * multiplier.
func InflationCells(planResolution, mapResolution float64, multiplier int) int {
	if mapResolution <= 0 || planResolution <= 0 {
		return 0
	}
	return int(math.Round(planResolution/mapResolution)) * multiplier
}

// Build validates metadata against the cell data and returns a new Field. Unknown cells keep
// their sentinel value. A threshold outside (0, 1] falls back to DefaultThreshold.
func Build(meta GridMetadata, probs []int8, inflationCells int, threshold float64) (*Field, error) {
	if !meta.Valid() {
		return nil, errors.Wrapf(ErrMalformedGrid, "invalid dimensions %dx%d at resolution %v",
			meta.Width, meta.Height, meta.Resolution)
	}
	if len(probs) != meta.Width*meta.Height {
		return nil, errors.Wrapf(ErrMalformedGrid, "expected %d cells for %dx%d grid, got %d",
			meta.Width*meta.Height, meta.Width, meta.Height, len(probs))
	}
	if inflationCells < 0 {
		inflationCells = 0
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	data := make([]int8, len(probs))
	copy(data, probs)
	return &Field{meta: meta, probs: data, window: inflationCells, threshold: threshold}, nil
}

// Metadata returns the layout the field was built from.
func (f *Field) Metadata() GridMetadata {
	return f.meta
}

// InflationWindow returns the inflation window size in cells.
func (f *Field) InflationWindow() int {
	return f.window
}

// Bounds returns the world-space rectangle covered by the grid.
func (f *Field) Bounds() r2.Rect {
	return r2.RectFromPoints(f.meta.Origin, r2.Point{
		X: f.meta.Origin.X + float64(f.meta.Width)*f.meta.Resolution,
		Y: f.meta.Origin.Y + float64(f.meta.Height)*f.meta.Resolution,
	})
}

// InBounds reports whether p falls on a cell of the grid.
func (f *Field) InBounds(p r2.Point) bool {
	_, _, ok := f.cellAt(p)
	return ok
}

// Probability returns the raw value of the cell under p, and false when p is off the grid.
func (f *Field) Probability(p r2.Point) (int8, bool) {
	gx, gy, ok := f.cellAt(p)
	if !ok {
		return 0, false
	}
	return f.probs[gy*f.meta.Width+gx], true
}

// IsFree combines the cells of the inflation window centred on p, assuming each estimate is
// independent, and reports whether the chance that any of them is occupied stays under the
// threshold. Unknown and off-grid cells contribute no evidence of an obstacle.
func (f *Field) IsFree(p r2.Point) bool {
	cx, cy := f.cellIndex(p)
	half := (f.window - 1) / 2
	if half < 0 {
		half = 0
	}

	pFree := 1.0
	for dx := -half; dx <= half; dx++ {
		for dy := -half; dy <= half; dy++ {
			gx, gy := cx+dx, cy+dy
			if gx < 0 || gy < 0 || gx >= f.meta.Width || gy >= f.meta.Height {
				continue
			}
			prob := float64(f.probs[gy*f.meta.Width+gx]) / 100
			pFree *= 1 - math.Max(0, prob)
		}
	}
	return 1-pFree < f.threshold
}

// Occupied returns the centre of every cell whose probability marks it as an obstacle.
func (f *Field) Occupied() []r2.Point {
	var cells []r2.Point
	for idx, prob := range f.probs {
		if prob < occupiedProbability {
			continue
		}
		gx, gy := idx%f.meta.Width, idx/f.meta.Width
		cells = append(cells, r2.Point{
			X: f.meta.Origin.X + (float64(gx)+0.5)*f.meta.Resolution,
			Y: f.meta.Origin.Y + (float64(gy)+0.5)*f.meta.Resolution,
		})
	}
	return cells
}

func (f *Field) cellIndex(p r2.Point) (int, int) {
	gx := int(math.Floor((p.X - f.meta.Origin.X) / f.meta.Resolution))
	gy := int(math.Floor((p.Y - f.meta.Origin.Y) / f.meta.Resolution))
	return gx, gy
}

func (f *Field) cellAt(p r2.Point) (int, int, bool) {
	gx, gy := f.cellIndex(p)
	if gx < 0 || gy < 0 || gx >= f.meta.Width || gy >= f.meta.Height {
		return 0, 0, false
	}
	return gx, gy, true
}

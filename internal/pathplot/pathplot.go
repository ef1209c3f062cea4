// Package pathplot renders each published plan to a PNG: obstacles near the path, the path itself
// and the waypoint handed to the controller.
package pathplot

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/occupancy"
	"go.viam.com/gridnav/services/navigation"
)

const (
	plotSize = 6 * vg.Inch
	// obstacles further than this from the path's bounding box are not drawn
	obstacleMargin = 2.0
)

var (
	obstacleColor = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	pathColor     = color.RGBA{B: 200, A: 255}
	waypointColor = color.RGBA{R: 220, A: 255}
)

// Renderer is a navigation.Publisher that writes one PNG per published path. A waypoint is held
// until the path that follows it arrives.
type Renderer struct {
	dir       string
	occupancy func() *occupancy.Field
	logger    logging.Logger

	mu       sync.Mutex
	seq      int
	waypoint *navigation.Waypoint
}

// NewRenderer writes into dir, creating it if needed. fieldSource, which may be nil, supplies the
// occupancy field to draw obstacles from.
func NewRenderer(dir string, fieldSource func() *occupancy.Field, logger logging.Logger) (*Renderer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "cannot create plot directory %s", dir)
	}
	return &Renderer{dir: dir, occupancy: fieldSource, logger: logger}, nil
}

// PublishWaypoint remembers wp for the next plot.
func (r *Renderer) PublishWaypoint(ctx context.Context, wp navigation.Waypoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waypoint = &wp
	return nil
}

// PublishPath renders path along with the pending waypoint, if any.
func (r *Renderer) PublishPath(ctx context.Context, frame string, path motionplan.Path) error {
	r.mu.Lock()
	wp := r.waypoint
	r.waypoint = nil
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	var field *occupancy.Field
	if r.occupancy != nil {
		field = r.occupancy()
	}

	p, err := render(frame, path, wp, field)
	if err != nil {
		return err
	}
	file := filepath.Join(r.dir, fmt.Sprintf("plan_%05d.png", seq))
	if err := p.Save(plotSize, plotSize, file); err != nil {
		return errors.Wrapf(err, "cannot save plot %s", file)
	}
	r.logger.Debugw("wrote plan plot", "file", file, "states", len(path))
	return nil
}

// Dir is where plots are written.
func (r *Renderer) Dir() string {
	return r.dir
}

func render(frame string, path motionplan.Path, wp *navigation.Waypoint, field *occupancy.Field) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("plan (%d states)", len(path))
	p.X.Label.Text = frame + " x (m)"
	p.Y.Label.Text = frame + " y (m)"
	p.Add(plotter.NewGrid())

	if obstacles := nearbyObstacles(field, path); len(obstacles) > 0 {
		scatter, err := plotter.NewScatter(obstacles)
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Color = obstacleColor
		scatter.GlyphStyle.Shape = draw.BoxGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(scatter)
		p.Legend.Add("obstacle", scatter)
	}

	if len(path) > 0 {
		pts := make(plotter.XYs, len(path))
		for i, pt := range path {
			pts[i] = plotter.XY{X: pt.X, Y: pt.Y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = pathColor
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add("path", line)
	}

	if wp != nil {
		scatter, err := plotter.NewScatter(plotter.XYs{{X: wp.X, Y: wp.Y}})
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Color = waypointColor
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("waypoint", scatter)
	}

	p.Legend.Top = true
	return p, nil
}

// nearbyObstacles returns occupied cell centres close to the path.
func nearbyObstacles(field *occupancy.Field, path motionplan.Path) plotter.XYs {
	if field == nil || len(path) == 0 {
		return nil
	}
	region := r2.RectFromPoints(path...).ExpandedByMargin(obstacleMargin)
	var obstacles plotter.XYs
	for _, cell := range field.Occupied() {
		if region.ContainsPoint(cell) {
			obstacles = append(obstacles, plotter.XY{X: cell.X, Y: cell.Y})
		}
	}
	return obstacles
}

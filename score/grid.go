package score

import (
	"fmt"
	"math"
)

// The three grids below share one binning convention: half-open intervals
// computed as floor((value - min) / width). A value exactly at the upper
// edge falls outside the grid and is rejected. Rejection is the normal,
// frequent outcome for events outside a narrow scoring window; none of the
// Bin methods ever treat it as an error.

// RadialGrid bins the full 3-D distance from the origin into fixed-width
// shells. Bin i covers [i*Width, (i+1)*Width); radii at or beyond
// Bins*Width are rejected.
type RadialGrid struct {
	Bins  int
	Width float64
}

// MaxRadius is the exclusive upper edge of the outermost shell.
func (g RadialGrid) MaxRadius() float64 { return float64(g.Bins) * g.Width }

// Bin returns the shell index for a position, or ok=false when the radius
// falls outside the grid.
func (g RadialGrid) Bin(x, y, z float64) (int, bool) {
	r := math.Sqrt(x*x + y*y + z*z)
	if r < 0 || r >= g.MaxRadius() {
		return 0, false
	}
	return int(r / g.Width), true
}

// AngularGrid bins positions into (radial shell, polar angle) cells. The
// polar angle theta is measured from the +z axis and covers [0, pi); the
// radial shells share their width with the RadialGrid so the two views stay
// comparable.
type AngularGrid struct {
	RadialBins  int
	RadialWidth float64
	ThetaBins   int
}

func (g AngularGrid) maxRadius() float64 { return float64(g.RadialBins) * g.RadialWidth }

// Bin returns the (r, theta) cell for a position, or ok=false when the
// radius falls outside the shells or theta lands exactly on the excluded
// upper edge pi. A position exactly on the origin has no defined direction
// and bins at theta = 0.
func (g AngularGrid) Bin(x, y, z float64) (rBin, thetaBin int, ok bool) {
	r := math.Sqrt(x*x + y*y + z*z)
	if r >= g.maxRadius() {
		return 0, 0, false
	}
	theta := 0.0
	if r > 0 {
		theta = math.Acos(z / r)
	}
	thetaBin = int(theta / math.Pi * float64(g.ThetaBins))
	if thetaBin >= g.ThetaBins {
		return 0, 0, false
	}
	return int(r / g.RadialWidth), thetaBin, true
}

// SpatialGrid bins the planar (x, y) projection of a position into a square
// voxel map over [Min, Max) in both axes, restricted to a thin symmetric
// slab |z| <= SlabHalfWidth. The slab half-width must equal the canonical
// scoring mesh's cell half-depth so the two maps count exactly the same
// region; Geometry.Validate enforces that.
type SpatialGrid struct {
	Bins          int
	Min, Max      float64
	SlabHalfWidth float64
}

// Width is the voxel edge length.
func (g SpatialGrid) Width() float64 { return (g.Max - g.Min) / float64(g.Bins) }

// Bin returns the (x, y) voxel for a position, or ok=false when the position
// misses the slab or the planar window.
func (g SpatialGrid) Bin(x, y, z float64) (xBin, yBin int, ok bool) {
	if z < -g.SlabHalfWidth || z > g.SlabHalfWidth {
		return 0, 0, false
	}
	if x < g.Min || x >= g.Max || y < g.Min || y >= g.Max {
		return 0, 0, false
	}
	w := g.Width()
	return int((x - g.Min) / w), int((y - g.Min) / w), true
}

// Center returns the center coordinates of a voxel, used when filling
// external histogram sinks.
func (g SpatialGrid) Center(xBin, yBin int) (float64, float64) {
	w := g.Width()
	return g.Min + (float64(xBin)+0.5)*w, g.Min + (float64(yBin)+0.5)*w
}

// Geometry bundles the three binned views a run scores into.
type Geometry struct {
	Radial  RadialGrid
	Angular AngularGrid
	Spatial SpatialGrid
}

// DefaultGeometry mirrors the reference setup: 90 radial shells of 0.05 cm
// out to 4.5 cm, 18 polar sectors, and a 180x180 voxel map over [-9, 9) cm
// with a 0.125 cm slab half-width matching a 0.25 cm deep mesh cell.
func DefaultGeometry() Geometry {
	return Geometry{
		Radial:  RadialGrid{Bins: 90, Width: 0.05},
		Angular: AngularGrid{RadialBins: 90, RadialWidth: 0.05, ThetaBins: 18},
		Spatial: SpatialGrid{Bins: 180, Min: -9.0, Max: 9.0, SlabHalfWidth: 0.125},
	}
}

// Validate rejects degenerate grids and enforces the cross-grid contracts:
// the angular shells must share the radial grid's width, and when
// meshCellHalfDepth is positive the spatial slab half-width must equal it
// exactly, because voxel-for-voxel comparability against the canonical mesh
// depends on the two filters being numerically identical.
func (g Geometry) Validate(meshCellHalfDepth float64) error {
	if g.Radial.Bins < 1 || g.Radial.Width <= 0 {
		return fmt.Errorf("radial grid must have >= 1 bins of positive width, got %d x %g", g.Radial.Bins, g.Radial.Width)
	}
	if g.Angular.RadialBins < 1 || g.Angular.RadialWidth <= 0 || g.Angular.ThetaBins < 1 {
		return fmt.Errorf("angular grid must have >= 1 radial and theta bins of positive width")
	}
	if g.Angular.RadialWidth != g.Radial.Width {
		return fmt.Errorf("angular radial width %g does not match radial grid width %g", g.Angular.RadialWidth, g.Radial.Width)
	}
	if g.Spatial.Bins < 1 || g.Spatial.Max <= g.Spatial.Min {
		return fmt.Errorf("spatial grid must have >= 1 bins and max > min")
	}
	if g.Spatial.SlabHalfWidth <= 0 {
		return fmt.Errorf("spatial slab half-width must be positive, got %g", g.Spatial.SlabHalfWidth)
	}
	if meshCellHalfDepth > 0 && g.Spatial.SlabHalfWidth != meshCellHalfDepth {
		return fmt.Errorf("spatial slab half-width %g does not match mesh cell half-depth %g", g.Spatial.SlabHalfWidth, meshCellHalfDepth)
	}
	return nil
}

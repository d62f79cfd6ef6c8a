package export

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mkowalik-phys/dosegrid/score"
)

// SavePlots renders the merged histograms as PNGs under dir: the radial
// primary/secondary curves, a heat map per dose-map category, and a heat map
// per angular (r, theta) category. Plot output is a convenience view on top
// of the ASCII/sink exports, never a replacement for them.
func SavePlots(res *score.Result, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plot dir %s: %w", dir, err)
	}
	if err := saveRadialPlot(res, filepath.Join(dir, "radial_dose.png")); err != nil {
		return err
	}
	for _, cat := range []score.Category{score.Primary, score.Secondary} {
		spatial := filepath.Join(dir, fmt.Sprintf("dose_map_%s.png", cat))
		if err := saveHeatMap(spatialGridXYZ{res: res, cat: cat},
			fmt.Sprintf("2D dose map (%s)", cat), "x (cm)", "y (cm)", spatial); err != nil {
			return err
		}
		angular := filepath.Join(dir, fmt.Sprintf("angular_map_%s.png", cat))
		if err := saveHeatMap(angularGridXYZ{res: res, cat: cat},
			fmt.Sprintf("Angular dose map (%s)", cat), "r (cm)", "theta (rad)", angular); err != nil {
			return err
		}
	}
	return nil
}

// saveRadialPlot writes the primary (red) and secondary (blue) radial dose
// curves into one plot.
func saveRadialPlot(res *score.Result, path string) error {
	p := plot.New()
	p.Title.Text = "Radial dose: primary (red), secondary (blue)"
	p.X.Label.Text = "radius (cm)"
	p.Y.Label.Text = "dose (MeV)"

	curves := []struct {
		cat score.Category
		col color.RGBA
	}{
		{score.Primary, color.RGBA{R: 200, G: 30, B: 30, A: 255}},
		{score.Secondary, color.RGBA{R: 20, G: 80, B: 200, A: 255}},
	}
	for _, c := range curves {
		cells := res.Radial[c.cat]
		xys := make(plotter.XYs, 0, len(cells))
		for i, v := range cells {
			xys = append(xys, plotter.XY{
				X: (float64(i) + 0.5) * res.Geometry.Radial.Width,
				Y: v,
			})
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = c.col
		line.Width = vg.Points(1.2)
		p.Add(line)
		p.Legend.Add(c.cat.String(), line)
	}
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save radial plot %s: %w", path, err)
	}
	return nil
}

// saveHeatMap renders one GridXYZ with a heat palette.
func saveHeatMap(grid plotter.GridXYZ, title, xLabel, yLabel, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	hm := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	p.Add(hm)

	if err := p.Save(7*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save heat map %s: %w", path, err)
	}
	return nil
}

// spatialGridXYZ adapts one category of the merged voxel map to the
// plotter.GridXYZ interface.
type spatialGridXYZ struct {
	res *score.Result
	cat score.Category
}

func (g spatialGridXYZ) Dims() (c, r int) {
	return g.res.Geometry.Spatial.Bins, g.res.Geometry.Spatial.Bins
}

func (g spatialGridXYZ) Z(c, r int) float64 {
	return g.res.Spatial[g.cat][c*g.res.Geometry.Spatial.Bins+r]
}

func (g spatialGridXYZ) X(c int) float64 {
	x, _ := g.res.Geometry.Spatial.Center(c, 0)
	return x
}

func (g spatialGridXYZ) Y(r int) float64 {
	_, y := g.res.Geometry.Spatial.Center(0, r)
	return y
}

// angularGridXYZ adapts one category of the merged (r, theta) histogram to
// the plotter.GridXYZ interface, with radius on the x axis and theta on y.
type angularGridXYZ struct {
	res *score.Result
	cat score.Category
}

func (g angularGridXYZ) Dims() (c, r int) {
	return g.res.Geometry.Angular.RadialBins, g.res.Geometry.Angular.ThetaBins
}

func (g angularGridXYZ) Z(c, r int) float64 {
	return g.res.Angular[g.cat][c*g.res.Geometry.Angular.ThetaBins+r]
}

func (g angularGridXYZ) X(c int) float64 {
	return (float64(c) + 0.5) * g.res.Geometry.Angular.RadialWidth
}

func (g angularGridXYZ) Y(r int) float64 {
	return (float64(r) + 0.5) * math.Pi / float64(g.res.Geometry.Angular.ThetaBins)
}

package export

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mkowalik-phys/dosegrid/score"
)

// Histogram names registered in the sink, kept identical to the reference
// analysis so downstream tooling keyed on these names keeps working.
const (
	RadialPrimaryName    = "radial_dose_primary"
	RadialSecondaryName  = "radial_dose_secondary"
	SpatialPrimaryName   = "dose_map_primary"
	SpatialSecondaryName = "dose_map_secondary"
)

// Fill registers the four personal histograms in the sink and fills every
// non-empty merged cell at its bin-center coordinates, then asks the sink to
// write. A sink failure is returned to the caller; the Result is untouched
// and Fill may be retried against a fresh sink.
//
// Nothing is filled for a canonical-only run: the personal histograms of
// such a run are identically zero and registering them would suggest
// otherwise.
func Fill(res *score.Result, sink Sink) error {
	if res.CanonicalOnly {
		return sink.Write()
	}

	geom := res.Geometry
	maxR := geom.Radial.MaxRadius()
	radialIDs := map[score.Category]int{
		score.Primary: sink.CreateH1(RadialPrimaryName,
			"Radial Dose Distribution - Primary;Radius (cm);Dose (MeV)",
			geom.Radial.Bins, 0, maxR),
		score.Secondary: sink.CreateH1(RadialSecondaryName,
			"Radial Dose Distribution - Secondary;Radius (cm);Dose (MeV)",
			geom.Radial.Bins, 0, maxR),
	}
	spatialIDs := map[score.Category]int{
		score.Primary: sink.CreateH2(SpatialPrimaryName,
			"2D Dose Map - Primary;X (cm);Y (cm);Dose (MeV)",
			geom.Spatial.Bins, geom.Spatial.Min, geom.Spatial.Max,
			geom.Spatial.Bins, geom.Spatial.Min, geom.Spatial.Max),
		score.Secondary: sink.CreateH2(SpatialSecondaryName,
			"2D Dose Map - Secondary;X (cm);Y (cm);Dose (MeV)",
			geom.Spatial.Bins, geom.Spatial.Min, geom.Spatial.Max,
			geom.Spatial.Bins, geom.Spatial.Min, geom.Spatial.Max),
	}

	for _, cat := range []score.Category{score.Primary, score.Secondary} {
		for i, v := range res.Radial[cat] {
			if v == 0 {
				continue
			}
			sink.FillH1(radialIDs[cat], (float64(i)+0.5)*geom.Radial.Width, v)
		}
		for i := 0; i < geom.Spatial.Bins; i++ {
			for j := 0; j < geom.Spatial.Bins; j++ {
				v := res.Spatial[cat][i*geom.Spatial.Bins+j]
				if v == 0 {
					continue
				}
				x, y := geom.Spatial.Center(i, j)
				sink.FillH2(spatialIDs[cat], x, y, v)
			}
		}
	}
	return sink.Write()
}

// WriteRadialASCII dumps the merged radial histograms as one line per
// non-empty shell: shell-center radius, primary dose, secondary dose.
func WriteRadialASCII(res *score.Result, w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# run: %s\n", res.RunID)
	fmt.Fprintf(bw, "# radius(cm)  primary(MeV)  secondary(MeV)\n")
	for i := 0; i < res.Geometry.Radial.Bins; i++ {
		p := res.Radial[score.Primary][i]
		s := res.Radial[score.Secondary][i]
		if p == 0 && s == 0 {
			continue
		}
		r := (float64(i) + 0.5) * res.Geometry.Radial.Width
		fmt.Fprintf(bw, "%.16g  %.16g  %.16g\n", r, p, s)
	}
	return bw.Flush()
}

// WriteSpatialASCII dumps one category's merged voxel map as one line per
// non-empty voxel: x center, y center, slab z center (always 0), dose. Line
// ordering follows voxel index order but is not part of the contract.
func WriteSpatialASCII(res *score.Result, cat score.Category, w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# run: %s\n", res.RunID)
	fmt.Fprintf(bw, "# %s dose map: x(cm)  y(cm)  z(cm)  dose(MeV)\n", cat)
	g := res.Geometry.Spatial
	for i := 0; i < g.Bins; i++ {
		for j := 0; j < g.Bins; j++ {
			v := res.Spatial[cat][i*g.Bins+j]
			if v == 0 {
				continue
			}
			x, y := g.Center(i, j)
			fmt.Fprintf(bw, "%.16g  %.16g  0  %.16g\n", x, y, v)
		}
	}
	return bw.Flush()
}

// WriteASCIIFile writes one of the ASCII dumps to a file path, surfacing
// open/write failures as recoverable errors.
func WriteASCIIFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open ascii output %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write ascii output %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close ascii output %s: %w", path, err)
	}
	return nil
}

// Summary holds the end-of-run scalar digest the original printed to the
// console.
type Summary struct {
	RunID           string
	Workers         int
	Events          uint64
	TotalPrimary    float64
	TotalSecondary  float64
	Ratio           float64
	PrimaryVoxels   int
	SecondaryVoxels int
	MeshDeposits    uint64
	MeshTotal       float64
	DroppedRadial   uint64
	DroppedAngular  uint64
	DroppedSpatial  uint64
}

// Summarize derives the scalar summary from a merged result.
func Summarize(res *score.Result) Summary {
	s := Summary{
		RunID:          res.RunID.String(),
		Workers:        res.Workers,
		Events:         res.Events,
		TotalPrimary:   res.TotalEnergy(score.Primary),
		TotalSecondary: res.TotalEnergy(score.Secondary),
		Ratio:          res.PrimarySecondaryRatio(),
		DroppedRadial:  res.Dropped.Radial,
		DroppedAngular: res.Dropped.Angular,
		DroppedSpatial: res.Dropped.Spatial,
	}
	for _, v := range res.Spatial[score.Primary] {
		if v > 0 {
			s.PrimaryVoxels++
		}
	}
	for _, v := range res.Spatial[score.Secondary] {
		if v > 0 {
			s.SecondaryVoxels++
		}
	}
	if res.Mesh != nil {
		s.MeshDeposits = res.Mesh.Deposits()
		s.MeshTotal = res.Mesh.Total()
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"run %s: %d workers, %d events scored\n"+
			"  total primary dose:   %g MeV (%d voxels)\n"+
			"  total secondary dose: %g MeV (%d voxels)\n"+
			"  primary/secondary:    %g\n"+
			"  mesh: %d deposits, %g MeV total\n"+
			"  dropped (radial/angular/spatial): %d/%d/%d",
		s.RunID, s.Workers, s.Events,
		s.TotalPrimary, s.PrimaryVoxels,
		s.TotalSecondary, s.SecondaryVoxels,
		s.Ratio,
		s.MeshDeposits, s.MeshTotal,
		s.DroppedRadial, s.DroppedAngular, s.DroppedSpatial)
}

package score

import (
	"github.com/mkowalik-phys/dosegrid/events"
)

// DropCounts tracks, per binned view, how many deposits fell outside the
// view's geometric window. Dropped events are not errors; the counters exist
// purely for end-of-run diagnostics.
type DropCounts struct {
	Radial  uint64
	Angular uint64
	Spatial uint64
}

func (d *DropCounts) add(o DropCounts) {
	d.Radial += o.Radial
	d.Angular += o.Angular
	d.Spatial += o.Spatial
}

// Accumulator owns one worker's mutable copy of every personal histogram:
// radial shells, (r, theta) sectors and the planar voxel map, each split by
// contribution category. An Accumulator is exclusively owned by the worker
// whose event stream feeds it and is never shared, which is what permits
// lock-free accumulation on the hot path. Cross-worker visibility only
// happens through Merge, after the run barrier.
type Accumulator struct {
	geom   Geometry
	policy Policy

	// enabled is false when the run is in canonical-scoring mode; Record is
	// then a no-op so personal histograms can never contaminate canonical
	// output.
	enabled bool

	radial  [numCategories][]float64
	angular [numCategories][]float64 // flattened rBin*ThetaBins + thetaBin
	spatial [numCategories][]float64 // flattened xBin*Bins + yBin

	events  uint64
	dropped DropCounts
}

// NewAccumulator creates a zeroed accumulator for one worker. When enabled
// is false the accumulator stays permanently empty regardless of how many
// events are recorded.
func NewAccumulator(geom Geometry, policy Policy, enabled bool) *Accumulator {
	a := &Accumulator{
		geom:    geom,
		policy:  policy,
		enabled: enabled,
	}
	for c := Category(0); c < numCategories; c++ {
		a.radial[c] = make([]float64, geom.Radial.Bins)
		a.angular[c] = make([]float64, geom.Angular.RadialBins*geom.Angular.ThetaBins)
		a.spatial[c] = make([]float64, geom.Spatial.Bins*geom.Spatial.Bins)
	}
	return a
}

// Record scores a single energy deposit. The three binned views are tried
// independently: an event can miss the radial shells yet still land in the
// voxel map, and skipping one view never affects the others. O(1), no
// allocation.
func (a *Accumulator) Record(ev events.Event) {
	if !a.enabled {
		return
	}
	a.events++
	cat := a.policy.Classify(ev.Generation, ev.Process)

	if bin, ok := a.geom.Radial.Bin(ev.X, ev.Y, ev.Z); ok {
		a.radial[cat][bin] += ev.Edep
	} else {
		a.dropped.Radial++
	}

	if rBin, tBin, ok := a.geom.Angular.Bin(ev.X, ev.Y, ev.Z); ok {
		a.angular[cat][rBin*a.geom.Angular.ThetaBins+tBin] += ev.Edep
	} else {
		a.dropped.Angular++
	}

	if xBin, yBin, ok := a.geom.Spatial.Bin(ev.X, ev.Y, ev.Z); ok {
		a.spatial[cat][xBin*a.geom.Spatial.Bins+yBin] += ev.Edep
	} else {
		a.dropped.Spatial++
	}
}

// Events returns how many deposits this accumulator has seen. Always zero
// for a disabled accumulator.
func (a *Accumulator) Events() uint64 { return a.events }

// Dropped returns the per-view out-of-range counters.
func (a *Accumulator) Dropped() DropCounts { return a.dropped }

// Radial returns the worker's radial histogram for one category. The
// returned slice is the live accumulator storage; callers must not hold it
// across further Record calls.
func (a *Accumulator) Radial(c Category) []float64 { return a.radial[c] }

// Angular returns the worker's flattened (r, theta) histogram for one
// category.
func (a *Accumulator) Angular(c Category) []float64 { return a.angular[c] }

// Spatial returns the worker's flattened voxel map for one category.
func (a *Accumulator) Spatial(c Category) []float64 { return a.spatial[c] }

// Package mesh implements the canonical scoring mesh: a box voxel grid
// centered on the origin that records every qualifying energy deposit,
// independent of whatever personal scoring a run does. It is the ground
// truth the personal voxel maps are compared against, so its geometric
// acceptance must never drift from theirs.
package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Spec describes the mesh box by half-extents and segment counts, the way
// the external scoring framework describes it.
type Spec struct {
	NX, NY, NZ          int
	HalfX, HalfY, HalfZ float64
}

// DefaultSpec mirrors the reference mesh: an 18 x 18 x 0.25 cm box cut into
// 180 x 180 x 1 voxels.
func DefaultSpec() Spec {
	return Spec{NX: 180, NY: 180, NZ: 1, HalfX: 9.0, HalfY: 9.0, HalfZ: 0.125}
}

// Validate rejects degenerate meshes.
func (s Spec) Validate() error {
	if s.NX < 1 || s.NY < 1 || s.NZ < 1 {
		return fmt.Errorf("mesh segment counts must be >= 1, got %dx%dx%d", s.NX, s.NY, s.NZ)
	}
	if s.HalfX <= 0 || s.HalfY <= 0 || s.HalfZ <= 0 {
		return fmt.Errorf("mesh half-extents must be positive, got %g x %g x %g", s.HalfX, s.HalfY, s.HalfZ)
	}
	return nil
}

// CellHalfDepth is half the z extent of one voxel. A personal spatial map
// that wants voxel-for-voxel comparability must use exactly this value as
// its slab half-width.
func (s Spec) CellHalfDepth() float64 { return s.HalfZ / float64(s.NZ) }

// Cell edge lengths per axis.
func (s Spec) cellWidths() (wx, wy, wz float64) {
	return 2 * s.HalfX / float64(s.NX), 2 * s.HalfY / float64(s.NY), 2 * s.HalfZ / float64(s.NZ)
}

// Grid is one accumulation copy of the mesh. Like the personal
// accumulators, each worker owns a private Grid and the copies are summed
// after the run barrier, so Deposit needs no locking.
type Grid struct {
	Spec Spec

	cells    []float64 // flattened i*NY*NZ + j*NZ + k
	deposits uint64
	rejected uint64
}

// NewGrid creates a zeroed mesh grid.
func NewGrid(spec Spec) *Grid {
	return &Grid{
		Spec:  spec,
		cells: make([]float64, spec.NX*spec.NY*spec.NZ),
	}
}

// Deposit scores one energy deposit into the voxel containing the position.
// Binning is half-open in x and y. The z acceptance is inclusive on both
// faces, |z| <= HalfZ, because it must be numerically identical to the slab
// filter of the personal spatial map; the upper face folds into the last
// z cell. Returns whether the deposit qualified.
func (g *Grid) Deposit(x, y, z, edep float64) bool {
	s := g.Spec
	if x < -s.HalfX || x >= s.HalfX || y < -s.HalfY || y >= s.HalfY || z < -s.HalfZ || z > s.HalfZ {
		g.rejected++
		return false
	}
	wx, wy, wz := s.cellWidths()
	i := int((x + s.HalfX) / wx)
	j := int((y + s.HalfY) / wy)
	k := int((z + s.HalfZ) / wz)
	if k == s.NZ {
		k = s.NZ - 1
	}
	g.cells[(i*s.NY+j)*s.NZ+k] += edep
	g.deposits++
	return true
}

// Cell returns the accumulated energy in one voxel.
func (g *Grid) Cell(i, j, k int) float64 {
	return g.cells[(i*g.Spec.NY+j)*g.Spec.NZ+k]
}

// Center returns the center coordinates of a voxel.
func (g *Grid) Center(i, j, k int) (x, y, z float64) {
	wx, wy, wz := g.Spec.cellWidths()
	x = -g.Spec.HalfX + (float64(i)+0.5)*wx
	y = -g.Spec.HalfY + (float64(j)+0.5)*wy
	z = -g.Spec.HalfZ + (float64(k)+0.5)*wz
	return x, y, z
}

// Total returns the summed energy over all voxels.
func (g *Grid) Total() float64 { return floats.Sum(g.cells) }

// Deposits returns how many deposits qualified; Rejected how many missed
// the mesh box.
func (g *Grid) Deposits() uint64 { return g.deposits }
func (g *Grid) Rejected() uint64 { return g.rejected }

// Merge sums any number of grids cell-wise into a fresh grid. The operation
// is commutative and associative; merging zero grids yields the all-zero
// identity. All grids must share one Spec.
func Merge(spec Spec, grids ...*Grid) (*Grid, error) {
	out := NewGrid(spec)
	for _, g := range grids {
		if g.Spec != spec {
			return nil, fmt.Errorf("cannot merge mesh grid with spec %+v into %+v", g.Spec, spec)
		}
		floats.Add(out.cells, g.cells)
		out.deposits += g.deposits
		out.rejected += g.rejected
	}
	return out, nil
}

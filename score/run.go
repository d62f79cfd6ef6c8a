package score

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/mkowalik-phys/dosegrid/events"
	"github.com/mkowalik-phys/dosegrid/mesh"
)

// Config is the run-wide configuration, assembled once at run construction
// and threaded through every component. There are no environment lookups or
// mutable globals anywhere downstream of it.
type Config struct {
	// CanonicalOnly selects canonical-scoring mode: personal accumulators
	// are disabled for the whole run and only the canonical mesh records.
	// The flag is read once here and is not legal to change mid-run.
	CanonicalOnly bool

	Geometry Geometry
	Policy   Policy
	Mesh     mesh.Spec
}

// DefaultConfig returns the reference setup with personal scoring enabled.
func DefaultConfig() Config {
	return Config{
		Geometry: DefaultGeometry(),
		Policy:   DefaultPolicy(),
		Mesh:     mesh.DefaultSpec(),
	}
}

// Run owns the scoring state for one run: one personal Accumulator and one
// canonical mesh grid per worker, plus the barrier accounting that guards
// the merge. Create it at run start, drive each worker with its private
// event stream, then Merge exactly once after every worker has finished.
type Run struct {
	// ID tags the run's outputs so files from repeated runs stay apart.
	ID uuid.UUID

	cfg     Config
	workers []*Worker

	completed atomic.Int64
	failed    atomic.Bool
}

// NewRun validates cfg and allocates per-worker state for the given worker
// count. Validation includes the hard cross-sink contract: the personal
// spatial slab must match the mesh cell half-depth exactly.
func NewRun(cfg Config, workers int) (*Run, error) {
	if workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", workers)
	}
	if err := cfg.Mesh.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Geometry.Validate(cfg.Mesh.CellHalfDepth()); err != nil {
		return nil, err
	}
	if cfg.Policy.MaxPrimaryGeneration < 1 {
		return nil, fmt.Errorf("policy ceiling must be >= 1, got %d", cfg.Policy.MaxPrimaryGeneration)
	}

	r := &Run{ID: uuid.New(), cfg: cfg}
	r.workers = make([]*Worker, workers)
	for i := range r.workers {
		r.workers[i] = &Worker{
			run:  r,
			acc:  NewAccumulator(cfg.Geometry, cfg.Policy, !cfg.CanonicalOnly),
			mesh: mesh.NewGrid(cfg.Mesh),
		}
	}
	return r, nil
}

// Config returns the run configuration.
func (r *Run) Config() Config { return r.cfg }

// Workers returns the worker count.
func (r *Run) Workers() int { return len(r.workers) }

// Worker returns the scoring handle for worker i. The handle must only be
// used from the goroutine driving that worker's event stream.
func (r *Run) Worker(i int) *Worker { return r.workers[i] }

// Worker is one worker's scoring endpoint. The transport kernel (or a
// replay stream) delivers events through Score one at a time; Finish marks
// the worker's share of the run complete and counts toward the merge
// barrier.
type Worker struct {
	run      *Run
	acc      *Accumulator
	mesh     *mesh.Grid
	finished bool
}

// Score records one energy deposit. The canonical mesh always receives the
// deposit; the personal accumulator additionally records it unless the run
// is in canonical-scoring mode. O(1), lock-free, never blocks.
func (w *Worker) Score(ev events.Event) {
	if w.finished {
		panic("score: worker scored after finish")
	}
	w.mesh.Deposit(ev.X, ev.Y, ev.Z, ev.Edep)
	w.acc.Record(ev)
}

// Finish declares this worker done. Scoring through a finished worker or
// finishing twice is a programming error and panics: a late mutation would
// silently corrupt the merged histograms.
func (w *Worker) Finish() {
	if w.finished {
		panic("score: worker finished twice")
	}
	w.finished = true
	w.run.completed.Add(1)
}

// Accumulator exposes the worker's personal accumulator, mainly so tests
// can inspect per-worker state before a merge.
func (w *Worker) Accumulator() *Accumulator { return w.acc }

// Process drives all workers concurrently, one goroutine per private event
// stream, and blocks until every stream is exhausted (the run barrier) or
// the context is canceled. streams must have exactly one entry per worker.
//
// On cancellation or a stream error the whole run is discarded: Process
// returns the error, no partial merge is possible, and a fresh Run must be
// created for a retry.
func (r *Run) Process(ctx context.Context, streams []events.Stream) error {
	if len(streams) != len(r.workers) {
		return fmt.Errorf("got %d event streams for %d workers", len(streams), len(r.workers))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(streams))
	wg.Add(len(streams))
	for i := range streams {
		go func(i int) {
			defer wg.Done()
			errs[i] = r.drive(ctx, r.workers[i], streams[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			r.failed.Store(true)
			return err
		}
	}
	return nil
}

// drive feeds one worker from its stream. The context is polled every few
// hundred events so the per-event hot path stays O(1).
func (r *Run) drive(ctx context.Context, w *Worker, stream events.Stream) error {
	const cancelCheckInterval = 256
	n := 0
	for {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		ev, err := stream.Next()
		if err == io.EOF {
			w.Finish()
			return nil
		}
		if err != nil {
			return err
		}
		w.Score(ev)
		n++
	}
}

// Merge combines all workers' accumulators and mesh grids into the final
// run Result. It must run exactly once, strictly after the barrier: calling
// it while any worker is unfinished, or after a failed or aborted Process,
// is a programming error and panics loudly instead of silently producing a
// corrupt histogram.
func (r *Run) Merge() *Result {
	if r.failed.Load() {
		panic("score: merge after aborted run")
	}
	if done := r.completed.Load(); done != int64(len(r.workers)) {
		panic(fmt.Sprintf("score: merge with %d of %d workers unfinished", int64(len(r.workers))-done, len(r.workers)))
	}

	accs := make([]*Accumulator, len(r.workers))
	grids := make([]*mesh.Grid, len(r.workers))
	for i, w := range r.workers {
		accs[i] = w.acc
		grids[i] = w.mesh
	}

	res := MergeAccumulators(r.cfg.Geometry, accs...)
	res.RunID = r.ID
	res.CanonicalOnly = r.cfg.CanonicalOnly
	res.Workers = len(r.workers)

	merged, err := mesh.Merge(r.cfg.Mesh, grids...)
	if err != nil {
		// All grids were created from r.cfg.Mesh; a mismatch here means the
		// run state was corrupted.
		panic(err)
	}
	res.Mesh = merged
	return res
}

// Result is the merged, single-threaded end-of-run dataset: the personal
// histogram sets summed over all workers plus the merged canonical mesh.
// After Merge only the exporting code touches it.
type Result struct {
	RunID         uuid.UUID
	Geometry      Geometry
	Workers       int
	CanonicalOnly bool

	Radial  [numCategories][]float64
	Angular [numCategories][]float64
	Spatial [numCategories][]float64

	Events  uint64
	Dropped DropCounts

	Mesh *mesh.Grid
}

// MergeAccumulators sums any number of accumulators cell-wise. The sum is
// commutative and associative, so workers may be merged in any order, and
// merging zero accumulators yields the all-zero identity element.
func MergeAccumulators(geom Geometry, accs ...*Accumulator) *Result {
	res := &Result{Geometry: geom}
	for c := Category(0); c < numCategories; c++ {
		res.Radial[c] = make([]float64, geom.Radial.Bins)
		res.Angular[c] = make([]float64, geom.Angular.RadialBins*geom.Angular.ThetaBins)
		res.Spatial[c] = make([]float64, geom.Spatial.Bins*geom.Spatial.Bins)
	}
	for _, a := range accs {
		for c := Category(0); c < numCategories; c++ {
			floats.Add(res.Radial[c], a.radial[c])
			floats.Add(res.Angular[c], a.angular[c])
			floats.Add(res.Spatial[c], a.spatial[c])
		}
		res.Events += a.events
		res.Dropped.add(a.dropped)
	}
	return res
}

// TotalEnergy returns the summed deposit over all radial shells for one
// category, the scalar the end-of-run summary reports.
func (r *Result) TotalEnergy(c Category) float64 {
	return floats.Sum(r.Radial[c])
}

// PrimarySecondaryRatio returns total primary over total secondary energy,
// or 0 when no secondary energy was scored.
func (r *Result) PrimarySecondaryRatio() float64 {
	sec := r.TotalEnergy(Secondary)
	if sec == 0 {
		return 0
	}
	return r.TotalEnergy(Primary) / sec
}

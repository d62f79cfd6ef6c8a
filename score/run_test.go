package score

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/mkowalik-phys/dosegrid/events"
)

// randomEvents builds a reproducible stream of deposits spread across and
// beyond the scoring windows.
func randomEvents(seed int64, n int) []events.Event {
	rng := rand.New(rand.NewSource(seed))
	procs := []string{"", "phot", "compt", "conv", "Rayl", "eBrem", "msc"}
	evs := make([]events.Event, n)
	for i := range evs {
		evs[i] = events.Event{
			X:          rng.Float64()*24 - 12,
			Y:          rng.Float64()*24 - 12,
			Z:          rng.Float64()*0.6 - 0.3,
			Edep:       rng.Float64(),
			Generation: rng.Intn(9),
			Process:    procs[rng.Intn(len(procs))],
		}
	}
	return evs
}

func accumulateAll(evs []events.Event) *Accumulator {
	acc := newTestAccumulator(true)
	for _, ev := range evs {
		acc.Record(ev)
	}
	return acc
}

func histogramsEqual(t *testing.T, a, b *Result) {
	t.Helper()
	for c := Category(0); c < numCategories; c++ {
		for _, pair := range []struct {
			name string
			x, y []float64
		}{
			{"radial", a.Radial[c], b.Radial[c]},
			{"angular", a.Angular[c], b.Angular[c]},
			{"spatial", a.Spatial[c], b.Spatial[c]},
		} {
			if len(pair.x) != len(pair.y) {
				t.Fatalf("%s %v: length mismatch %d vs %d", pair.name, c, len(pair.x), len(pair.y))
			}
			for i := range pair.x {
				if pair.x[i] != pair.y[i] {
					t.Fatalf("%s %v bin %d: %g vs %g", pair.name, c, i, pair.x[i], pair.y[i])
				}
			}
		}
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	geom := DefaultGeometry()
	a := accumulateAll(randomEvents(1, 500))
	b := accumulateAll(randomEvents(2, 700))
	c := accumulateAll(randomEvents(3, 300))

	abc := MergeAccumulators(geom, a, b, c)
	cab := MergeAccumulators(geom, c, a, b)
	histogramsEqual(t, abc, cab)

	if abc.Events != a.Events()+b.Events()+c.Events() {
		t.Errorf("merged event count = %d, want %d", abc.Events, a.Events()+b.Events()+c.Events())
	}
}

func TestMergeIdenticalWorkersDouble(t *testing.T) {
	geom := DefaultGeometry()
	evs := randomEvents(11, 400)
	a := accumulateAll(evs)
	b := accumulateAll(evs)

	merged := MergeAccumulators(geom, a, b)
	single := MergeAccumulators(geom, a)
	for c := Category(0); c < numCategories; c++ {
		for i := range merged.Radial[c] {
			if merged.Radial[c][i] != 2*single.Radial[c][i] {
				t.Fatalf("radial %v bin %d: merged %g, want 2*%g", c, i, merged.Radial[c][i], single.Radial[c][i])
			}
		}
	}
}

func TestMergeEmptyWorkerIsIdentity(t *testing.T) {
	geom := DefaultGeometry()
	a := accumulateAll(randomEvents(5, 250))
	empty := newTestAccumulator(true)

	with := MergeAccumulators(geom, a, empty)
	without := MergeAccumulators(geom, a)
	histogramsEqual(t, with, without)

	// Merging nothing yields the all-zero identity.
	zero := MergeAccumulators(geom)
	if got := zero.TotalEnergy(Primary) + zero.TotalEnergy(Secondary); got != 0 {
		t.Errorf("identity merge total = %g, want 0", got)
	}
}

func TestRunProcessAndMerge(t *testing.T) {
	run, err := NewRun(DefaultConfig(), 3)
	if err != nil {
		t.Fatalf("NewRun returned error: %v", err)
	}

	streams := []events.Stream{
		&events.SliceStream{Events: randomEvents(21, 400)},
		&events.SliceStream{Events: randomEvents(22, 600)},
		&events.SliceStream{Events: randomEvents(23, 0)},
	}
	if err := run.Process(context.Background(), streams); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	res := run.Merge()

	if res.Workers != 3 {
		t.Errorf("result workers = %d, want 3", res.Workers)
	}
	if res.Events != 1000 {
		t.Errorf("result events = %d, want 1000", res.Events)
	}

	// The merged result must equal a serial re-accumulation of all streams.
	serial := newTestAccumulator(true)
	for _, seed := range []int64{21, 22, 23} {
		n := map[int64]int{21: 400, 22: 600, 23: 0}[seed]
		for _, ev := range randomEvents(seed, n) {
			serial.Record(ev)
		}
	}
	histogramsEqual(t, res, MergeAccumulators(res.Geometry, serial))

	// The canonical mesh saw the deposits too.
	if res.Mesh == nil || res.Mesh.Deposits() == 0 {
		t.Fatalf("merged mesh is empty, want deposits recorded")
	}
}

func TestMergeBeforeBarrierPanics(t *testing.T) {
	run, err := NewRun(DefaultConfig(), 2)
	if err != nil {
		t.Fatalf("NewRun returned error: %v", err)
	}
	run.Worker(0).Score(events.Event{Edep: 1.0})
	run.Worker(0).Finish()
	// Worker 1 never finished: merging now would read a histogram that a
	// live worker could still be mutating.
	defer func() {
		if recover() == nil {
			t.Fatal("Merge with an unfinished worker did not panic")
		}
	}()
	run.Merge()
}

func TestWorkerDoubleFinishPanics(t *testing.T) {
	run, err := NewRun(DefaultConfig(), 1)
	if err != nil {
		t.Fatalf("NewRun returned error: %v", err)
	}
	run.Worker(0).Finish()
	defer func() {
		if recover() == nil {
			t.Fatal("double Finish did not panic")
		}
	}()
	run.Worker(0).Finish()
}

func TestScoreAfterFinishPanics(t *testing.T) {
	run, err := NewRun(DefaultConfig(), 1)
	if err != nil {
		t.Fatalf("NewRun returned error: %v", err)
	}
	w := run.Worker(0)
	w.Score(events.Event{Edep: 1.0})
	w.Finish()
	// A deposit arriving now would mutate state the barrier counted as
	// frozen, so it must fail loudly instead of corrupting the merge.
	defer func() {
		if recover() == nil {
			t.Fatal("Score after Finish did not panic")
		}
	}()
	w.Score(events.Event{Edep: 1.0})
}

func TestCanonicalModeGatesPersonalScoring(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CanonicalOnly = true
	run, err := NewRun(cfg, 2)
	if err != nil {
		t.Fatalf("NewRun returned error: %v", err)
	}

	streams := []events.Stream{
		&events.SliceStream{Events: randomEvents(31, 800)},
		&events.SliceStream{Events: randomEvents(32, 800)},
	}
	if err := run.Process(context.Background(), streams); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	res := run.Merge()

	// Personal accumulators must be identically zero...
	if res.Events != 0 {
		t.Errorf("personal accumulators saw %d events in canonical mode, want 0", res.Events)
	}
	for c := Category(0); c < numCategories; c++ {
		if got := sum(res.Radial[c]) + sum(res.Angular[c]) + sum(res.Spatial[c]); got != 0 {
			t.Errorf("personal histograms hold %g for %v in canonical mode, want 0", got, c)
		}
	}
	// ...while the canonical mesh still received every qualifying deposit.
	if res.Mesh.Deposits() == 0 {
		t.Error("canonical mesh recorded nothing in canonical mode")
	}

	// Cross-check mesh acceptance against the configured slab geometry.
	var wantDeposits uint64
	for _, seed := range []int64{31, 32} {
		for _, ev := range randomEvents(seed, 800) {
			if ev.X >= -9 && ev.X < 9 && ev.Y >= -9 && ev.Y < 9 && ev.Z >= -0.125 && ev.Z <= 0.125 {
				wantDeposits++
			}
		}
	}
	if res.Mesh.Deposits() != wantDeposits {
		t.Errorf("mesh deposits = %d, want %d", res.Mesh.Deposits(), wantDeposits)
	}
}

func TestProcessCancellationDiscardsRun(t *testing.T) {
	run, err := NewRun(DefaultConfig(), 1)
	if err != nil {
		t.Fatalf("NewRun returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	streams := []events.Stream{&events.SliceStream{Events: randomEvents(41, 10000)}}
	if err := run.Process(ctx, streams); !errors.Is(err, context.Canceled) {
		t.Fatalf("Process after cancel = %v, want context.Canceled", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("Merge after aborted run did not panic")
		}
	}()
	run.Merge()
}

// erroringStream fails mid-stream to exercise worker error propagation.
type erroringStream struct {
	left int
}

func (s *erroringStream) Next() (events.Event, error) {
	if s.left == 0 {
		return events.Event{}, errors.New("corrupt event record")
	}
	s.left--
	return events.Event{Edep: 0.1}, nil
}

func TestProcessStreamErrorAbortsRun(t *testing.T) {
	run, err := NewRun(DefaultConfig(), 2)
	if err != nil {
		t.Fatalf("NewRun returned error: %v", err)
	}
	streams := []events.Stream{
		&events.SliceStream{Events: randomEvents(51, 100)},
		&erroringStream{left: 37},
	}
	if err := run.Process(context.Background(), streams); err == nil {
		t.Fatal("Process swallowed a stream error")
	}
}

func TestNewRunRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := NewRun(cfg, 0); err == nil {
		t.Error("NewRun accepted zero workers")
	}

	cfg = DefaultConfig()
	cfg.Geometry.Spatial.SlabHalfWidth = 0.5 // mesh cell half-depth is 0.125
	if _, err := NewRun(cfg, 1); err == nil {
		t.Error("NewRun accepted slab half-width diverging from the mesh")
	}

	cfg = DefaultConfig()
	cfg.Policy.MaxPrimaryGeneration = 0
	if _, err := NewRun(cfg, 1); err == nil {
		t.Error("NewRun accepted a zero classification ceiling")
	}
}

// Compile-time check that SliceStream satisfies the Stream contract the run
// driver consumes, including its io.EOF termination.
func TestSliceStreamEOF(t *testing.T) {
	s := &events.SliceStream{Events: []events.Event{{Edep: 1}}}
	if _, err := s.Next(); err != nil {
		t.Fatalf("first Next returned error: %v", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("exhausted Next = %v, want io.EOF", err)
	}
}

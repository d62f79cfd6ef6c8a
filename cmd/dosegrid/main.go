// Command dosegrid replays recorded energy-deposition events through the
// dose-scoring engine and exports the merged run: canonical mesh dump,
// personal primary/secondary histograms, ASCII tables and optional plots.
//
// Usage:
//
//	dosegrid -events 'runs/run42/*.csv' -out output -plots
//
// Each CSV file becomes one worker's private event stream. The run-wide
// mode flag can come from the environment (DOSEGRID_CANONICAL_ONLY=1) or
// the -canonical-only flag; it is read exactly once at startup.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mkowalik-phys/dosegrid/events"
	"github.com/mkowalik-phys/dosegrid/export"
	"github.com/mkowalik-phys/dosegrid/score"
)

// envConfig is the environment side of the run configuration, parsed once
// at startup.
type envConfig struct {
	CanonicalOnly bool `env:"DOSEGRID_CANONICAL_ONLY"`
}

func main() {
	eventsGlob := flag.String("events", "", "glob pattern of event CSV files; one file per worker (required)")
	outDir := flag.String("out", "output", "directory for run outputs (a timestamped subdirectory is created)")
	policyPath := flag.String("policy", "", "optional JSON file overriding the classification policy")
	plots := flag.Bool("plots", false, "also render PNG plots of the merged histograms")
	canonicalOnly := flag.Bool("canonical-only", false, "canonical-scoring mode: disable personal accumulation for the whole run")
	flag.Parse()

	if *eventsGlob == "" {
		flag.Usage()
		log.Fatal("missing required -events pattern")
	}

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		log.Fatalf("failed to parse environment config: %v", err)
	}

	cfg := score.DefaultConfig()
	cfg.CanonicalOnly = ec.CanonicalOnly || *canonicalOnly
	if *policyPath != "" {
		policy, err := score.LoadPolicy(*policyPath)
		if err != nil {
			log.Fatalf("failed to load policy config: %v", err)
		}
		cfg.Policy = policy
	}

	source, err := events.NewCSVSource(*eventsGlob)
	if err != nil {
		log.Fatalf("failed to open event source: %v", err)
	}
	log.Printf("replaying %d event streams from %s", source.Workers(), *eventsGlob)
	if cfg.CanonicalOnly {
		log.Printf("canonical-scoring mode: personal histograms disabled for this run")
	}

	run, err := score.NewRun(cfg, source.Workers())
	if err != nil {
		log.Fatalf("failed to construct run: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err := run.Process(ctx, source.Streams()); err != nil {
		// An aborted run is discarded wholesale; nothing is merged.
		log.Fatalf("run aborted, no output written: %v", err)
	}
	res := run.Merge()
	log.Printf("scoring finished in %s", time.Since(start))

	runDir := filepath.Join(*outDir, "run_"+time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// The canonical mesh dump is written regardless of mode.
	meshPath := filepath.Join(runDir, "mesh_edep.txt")
	if err := res.Mesh.WriteASCIIFile(meshPath, "boxMesh", "eDep"); err != nil {
		log.Fatalf("failed to write mesh dump: %v", err)
	}
	log.Printf("canonical mesh dump written to %s", meshPath)

	if !cfg.CanonicalOnly {
		if err := writePersonal(res, runDir, *plots); err != nil {
			log.Fatalf("failed to export personal histograms: %v", err)
		}
	}

	fmt.Println(export.Summarize(res))
}

// writePersonal exports the mode-gated personal side of the run: histogram
// sink file, ASCII tables and optional plots.
func writePersonal(res *score.Result, runDir string, plots bool) error {
	sink := export.NewFileSink(filepath.Join(runDir, "histograms.txt"))
	if err := export.Fill(res, sink); err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}

	if err := export.WriteASCIIFile(filepath.Join(runDir, "radial_dose.txt"), func(w io.Writer) error {
		return export.WriteRadialASCII(res, w)
	}); err != nil {
		return err
	}
	for _, cat := range []score.Category{score.Primary, score.Secondary} {
		path := filepath.Join(runDir, fmt.Sprintf("dose_map_%s.txt", cat))
		if err := export.WriteASCIIFile(path, func(w io.Writer) error {
			return export.WriteSpatialASCII(res, cat, w)
		}); err != nil {
			return err
		}
	}

	if plots {
		if err := export.SavePlots(res, filepath.Join(runDir, "plots")); err != nil {
			return err
		}
		log.Printf("plots written to %s", filepath.Join(runDir, "plots"))
	}
	return nil
}

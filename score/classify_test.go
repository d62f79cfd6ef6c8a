package score

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyGenerationHeuristic(t *testing.T) {
	policy := DefaultPolicy()

	cases := []struct {
		name       string
		generation int
		process    string
		want       Category
	}{
		{"source particle", 0, "", Primary},
		{"source particle with tag", 0, "msc", Primary},
		{"gen1 photoelectric", 1, "phot", Primary},
		{"gen1 compton", 1, "compt", Primary},
		{"gen1 pair conversion", 1, "conv", Primary},
		{"gen1 rayleigh", 1, "Rayl", Primary},
		{"gen1 missing tag is conservative", 1, "", Primary},
		{"gen1 bremsstrahlung", 1, "eBrem", Secondary},
		{"gen1 multiple scattering", 1, "msc", Secondary},
		{"gen2 compton", 2, "compt", Primary},
		{"gen2 photoelectric", 2, "phot", Primary},
		{"gen2 rayleigh no longer direct", 2, "Rayl", Secondary},
		{"gen2 missing tag", 2, "", Secondary},
		{"gen5 compton at ceiling", 5, "compt", Primary},
		{"gen6 beyond ceiling", 6, "compt", Secondary},
		{"gen6 any tag", 6, "phot", Secondary},
		{"deep chain", 42, "phot", Secondary},
	}
	for _, tc := range cases {
		got := policy.Classify(tc.generation, tc.process)
		if got != tc.want {
			t.Errorf("%s: Classify(%d, %q) = %v, want %v", tc.name, tc.generation, tc.process, got, tc.want)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	policy := DefaultPolicy()
	for i := 0; i < 100; i++ {
		if got := policy.Classify(1, "eBrem"); got != Secondary {
			t.Fatalf("iteration %d: Classify(1, eBrem) = %v, want Secondary", i, got)
		}
		if got := policy.Classify(3, "compt"); got != Primary {
			t.Fatalf("iteration %d: Classify(3, compt) = %v, want Primary", i, got)
		}
	}
}

func TestClassifyConfigurableCeiling(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxPrimaryGeneration = 2

	if got := policy.Classify(2, "compt"); got != Primary {
		t.Fatalf("Classify(2, compt) with ceiling 2 = %v, want Primary", got)
	}
	if got := policy.Classify(3, "compt"); got != Secondary {
		t.Fatalf("Classify(3, compt) with ceiling 2 = %v, want Secondary", got)
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	data := `{
		"deep_processes": ["compt"],
		"max_primary_generation": 3
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy returned error: %v", err)
	}
	if policy.MaxPrimaryGeneration != 3 {
		t.Errorf("ceiling = %d, want 3", policy.MaxPrimaryGeneration)
	}
	if len(policy.DeepProcesses) != 1 || policy.DeepProcesses[0] != "compt" {
		t.Errorf("deep processes = %v, want [compt]", policy.DeepProcesses)
	}
	// Untouched field keeps the default whitelist.
	if len(policy.DirectProcesses) != 4 {
		t.Errorf("direct processes = %v, want default whitelist of 4", policy.DirectProcesses)
	}

	// Photoelectric stops counting at gen 4 under the new config.
	if got := policy.Classify(4, "phot"); got != Secondary {
		t.Errorf("Classify(4, phot) = %v, want Secondary with deep whitelist [compt]", got)
	}
}

func TestLoadPolicyRejectsBadCeiling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	if err := os.WriteFile(path, []byte(`{"max_primary_generation": 0}`), 0o644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("LoadPolicy accepted a zero ceiling")
	}
}

func TestLoadPolicyMissingFile(t *testing.T) {
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("LoadPolicy succeeded on a missing file")
	}
}

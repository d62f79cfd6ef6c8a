package score

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Category labels which contribution bucket an energy deposit belongs to.
// Every accepted deposit lands in exactly one category.
type Category int

const (
	// Primary covers deposits from the source particle itself or its
	// immediate direct-interaction products.
	Primary Category = iota
	// Secondary covers deposits from multiply-scattered or deeper-generation
	// products.
	Secondary

	numCategories
)

func (c Category) String() string {
	switch c {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Policy holds the lineage heuristics used to split deposits into primary
// and secondary contributions. The defaults encode the physical reading that
// dose near an emission source is dominated by first- and second-generation
// direct interactions, while deeper scattering chains are lumped together as
// secondary. The constants are deliberately configuration, not physics: they
// are heuristic choices and callers may tune them without touching scoring
// code.
type Policy struct {
	// DirectProcesses is the whitelist of direct electromagnetic interaction
	// processes that keep a generation-1 particle in the primary bucket.
	DirectProcesses []string

	// DeepProcesses is the narrower whitelist applied from generation 2 up
	// to MaxPrimaryGeneration; only the processes depositing most local dose
	// belong here.
	DeepProcesses []string

	// MaxPrimaryGeneration is the deepest generation that can still be
	// classified primary. Anything beyond it is secondary unconditionally.
	MaxPrimaryGeneration int
}

// DefaultPolicy returns the policy used by the original analysis:
// photoelectric absorption, Compton scattering, pair conversion and Rayleigh
// scattering count as direct; only photoelectric and Compton survive past
// generation 1; the ceiling is generation 5.
func DefaultPolicy() Policy {
	return Policy{
		DirectProcesses:      []string{"phot", "compt", "conv", "Rayl"},
		DeepProcesses:        []string{"phot", "compt"},
		MaxPrimaryGeneration: 5,
	}
}

// Classify maps a particle's lineage metadata to a contribution category.
// It is a pure function: same inputs, same category, no side effects.
//
// An empty process tag at generation 1 classifies as primary. That is a
// deliberate conservative bias: when the kernel did not record the creator
// process for an immediate product of the source we would rather overcount
// near-source dose than undercount it. Deeper generations do not get the
// benefit of the doubt.
func (p Policy) Classify(generation int, process string) Category {
	switch {
	case generation == 0:
		return Primary
	case generation == 1:
		if process == "" || containsProcess(p.DirectProcesses, process) {
			return Primary
		}
		return Secondary
	case generation <= p.MaxPrimaryGeneration:
		if containsProcess(p.DeepProcesses, process) {
			return Primary
		}
		return Secondary
	default:
		return Secondary
	}
}

func containsProcess(list []string, process string) bool {
	for _, p := range list {
		if p == process {
			return true
		}
	}
	return false
}

// LoadPolicy reads a JSON policy file of the form:
//
//	{
//	  "direct_processes": ["phot", "compt", "conv", "Rayl"],
//	  "deep_processes": ["phot", "compt"],
//	  "max_primary_generation": 5
//	}
//
// Missing fields keep their defaults, so a file may override just the
// ceiling or just one whitelist.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, fmt.Errorf("empty path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read policy config: %w", err)
	}

	var raw struct {
		DirectProcesses      []string `json:"direct_processes"`
		DeepProcesses        []string `json:"deep_processes"`
		MaxPrimaryGeneration *int     `json:"max_primary_generation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return policy, fmt.Errorf("unmarshal policy config: %w", err)
	}

	if raw.DirectProcesses != nil {
		policy.DirectProcesses = trimProcessList(raw.DirectProcesses)
	}
	if raw.DeepProcesses != nil {
		policy.DeepProcesses = trimProcessList(raw.DeepProcesses)
	}
	if raw.MaxPrimaryGeneration != nil {
		if *raw.MaxPrimaryGeneration < 1 {
			return policy, fmt.Errorf("max_primary_generation must be >= 1, got %d", *raw.MaxPrimaryGeneration)
		}
		policy.MaxPrimaryGeneration = *raw.MaxPrimaryGeneration
	}
	return policy, nil
}

func trimProcessList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

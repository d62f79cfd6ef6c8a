// Package export hands merged run results to external collaborators: a
// histogram sink in the style of the analysis manager the original used, flat
// ASCII dumps, PNG plots, and a console summary. The package only guarantees
// that the numbers handed over are the merged result's numbers; serialized
// byte formats are the collaborators' business.
package export

import (
	"bufio"
	"fmt"
	"os"
)

// Sink accepts named 1-D and 2-D histograms with fixed bin counts and
// ranges, supports incremental fills and a final write/close. Bin
// coordinates handed to Fill calls are already in the sink's native units;
// the sink is not expected to do any filtering of its own.
//
// Create calls return a histogram id used for subsequent fills, mirroring
// the analysis-manager surface the original code filled.
type Sink interface {
	CreateH1(name, title string, bins int, min, max float64) int
	CreateH2(name, title string, xBins int, xMin, xMax float64, yBins int, yMin, yMax float64) int
	FillH1(id int, x, weight float64)
	FillH2(id int, x, y, weight float64)
	Write() error
	Close() error
}

// h1 and h2 are the in-memory histogram representations shared by the
// bundled sinks.
type h1 struct {
	name, title string
	bins        int
	min, max    float64
	cells       []float64
}

type h2 struct {
	name, title  string
	xBins, yBins int
	xMin, xMax   float64
	yMin, yMax   float64
	cells        []float64 // xBin*yBins + yBin
}

// MemorySink keeps everything in memory. It backs the file sinks and stands
// alone as the sink used in tests.
type MemorySink struct {
	h1s []*h1
	h2s []*h2
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) CreateH1(name, title string, bins int, min, max float64) int {
	s.h1s = append(s.h1s, &h1{name: name, title: title, bins: bins, min: min, max: max, cells: make([]float64, bins)})
	return len(s.h1s) - 1
}

func (s *MemorySink) CreateH2(name, title string, xBins int, xMin, xMax float64, yBins int, yMin, yMax float64) int {
	s.h2s = append(s.h2s, &h2{
		name: name, title: title,
		xBins: xBins, yBins: yBins,
		xMin: xMin, xMax: xMax, yMin: yMin, yMax: yMax,
		cells: make([]float64, xBins*yBins),
	})
	// 2-D ids live in their own space, as the original analysis manager did.
	return len(s.h2s) - 1
}

func (s *MemorySink) FillH1(id int, x, weight float64) {
	h := s.h1s[id]
	if x < h.min || x >= h.max {
		return
	}
	// The ratio can round up to exactly 1.0 for an in-range x just below
	// max, so the computed bin is clamped to the last cell.
	bin := int((x - h.min) / (h.max - h.min) * float64(h.bins))
	if bin >= h.bins {
		bin = h.bins - 1
	}
	h.cells[bin] += weight
}

func (s *MemorySink) FillH2(id int, x, y, weight float64) {
	h := s.h2s[id]
	if x < h.xMin || x >= h.xMax || y < h.yMin || y >= h.yMax {
		return
	}
	xBin := int((x - h.xMin) / (h.xMax - h.xMin) * float64(h.xBins))
	yBin := int((y - h.yMin) / (h.yMax - h.yMin) * float64(h.yBins))
	if xBin >= h.xBins {
		xBin = h.xBins - 1
	}
	if yBin >= h.yBins {
		yBin = h.yBins - 1
	}
	h.cells[xBin*h.yBins+yBin] += weight
}

func (s *MemorySink) Write() error { return nil }
func (s *MemorySink) Close() error { return nil }

// H1Cells returns the bin contents of a 1-D histogram by name, or nil when
// no such histogram exists.
func (s *MemorySink) H1Cells(name string) []float64 {
	for _, h := range s.h1s {
		if h.name == name {
			return h.cells
		}
	}
	return nil
}

// H2Cell returns one cell of a 2-D histogram by name.
func (s *MemorySink) H2Cell(name string, xBin, yBin int) float64 {
	for _, h := range s.h2s {
		if h.name == name {
			return h.cells[xBin*h.yBins+yBin]
		}
	}
	return 0
}

// H2Total sums all cells of a 2-D histogram by name.
func (s *MemorySink) H2Total(name string) float64 {
	for _, h := range s.h2s {
		if h.name == name {
			total := 0.0
			for _, v := range h.cells {
				total += v
			}
			return total
		}
	}
	return 0
}

// FileSink accumulates fills in memory and serializes every histogram to a
// single flat text file on Write. Opening the file is deferred to Write so
// an unavailable output surfaces as a recoverable error while the filled
// state survives for a retry against another path.
type FileSink struct {
	MemorySink
	Path string
}

func NewFileSink(path string) *FileSink { return &FileSink{Path: path} }

func (s *FileSink) Write() error {
	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("open histogram output %s: %w", s.Path, err)
	}
	bw := bufio.NewWriter(f)
	for _, h := range s.h1s {
		fmt.Fprintf(bw, "# h1 %s: %s (%d bins, [%g, %g))\n", h.name, h.title, h.bins, h.min, h.max)
		w := (h.max - h.min) / float64(h.bins)
		for i, v := range h.cells {
			if v == 0 {
				continue
			}
			fmt.Fprintf(bw, "%.16g  %.16g\n", h.min+(float64(i)+0.5)*w, v)
		}
	}
	for _, h := range s.h2s {
		fmt.Fprintf(bw, "# h2 %s: %s (%dx%d bins, [%g, %g) x [%g, %g))\n",
			h.name, h.title, h.xBins, h.yBins, h.xMin, h.xMax, h.yMin, h.yMax)
		wx := (h.xMax - h.xMin) / float64(h.xBins)
		wy := (h.yMax - h.yMin) / float64(h.yBins)
		for i := 0; i < h.xBins; i++ {
			for j := 0; j < h.yBins; j++ {
				v := h.cells[i*h.yBins+j]
				if v == 0 {
					continue
				}
				fmt.Fprintf(bw, "%.16g  %.16g  %.16g\n",
					h.xMin+(float64(i)+0.5)*wx, h.yMin+(float64(j)+0.5)*wy, v)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write histogram output %s: %w", s.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close histogram output %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileSink) Close() error { return nil }

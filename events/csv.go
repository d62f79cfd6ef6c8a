package events

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CSVSource lazily reads energy-deposition events recorded from a transport
// run. Each CSV file matching the pattern holds one worker's private event
// stream; files are only opened when their stream is first read.
//
// Expected columns (header names, case-insensitive):
// "x", "y", "z", "edep", "generation", "process".
// The "process" column may be empty for particles whose creator process was
// not recorded.
type CSVSource struct {
	// Pattern used to find CSV files (e.g., "runs/run42/*.csv").
	Pattern string

	// List of CSV file paths matching the pattern.
	csvPaths []string

	// Column indices discovered from the first file.
	colIndex map[string]int
}

// requiredColumns are the columns every event CSV must carry.
var requiredColumns = []string{"x", "y", "z", "edep", "generation", "process"}

// NewCSVSource creates a source for all CSV files matching pattern. The
// column layout is discovered from the first file and assumed identical for
// the rest.
func NewCSVSource(pattern string) (*CSVSource, error) {
	csvPaths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
	}
	if len(csvPaths) == 0 {
		return nil, fmt.Errorf("no event CSV files found matching pattern: %s", pattern)
	}

	s := &CSVSource{
		Pattern:  pattern,
		csvPaths: csvPaths,
	}
	if err := s.initializeColumns(); err != nil {
		return nil, err
	}
	return s, nil
}

// initializeColumns reads the first CSV header to determine column indices.
func (s *CSVSource) initializeColumns() error {
	file, err := os.Open(s.csvPaths[0])
	if err != nil {
		return fmt.Errorf("failed to open first CSV %s: %w", s.csvPaths[0], err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	s.colIndex = make(map[string]int)
	for i, col := range header {
		s.colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}

	for _, col := range requiredColumns {
		if _, ok := s.colIndex[col]; !ok {
			return fmt.Errorf("required column %q not found in CSV", col)
		}
	}
	return nil
}

// Workers returns the number of private streams this source provides, one
// per CSV file.
func (s *CSVSource) Workers() int { return len(s.csvPaths) }

// Streams returns one Stream per CSV file. Each stream is independent and
// must be consumed by exactly one goroutine.
func (s *CSVSource) Streams() []Stream {
	streams := make([]Stream, len(s.csvPaths))
	for i, path := range s.csvPaths {
		streams[i] = &fileStream{path: path, cols: s.colIndex}
	}
	return streams
}

// fileStream reads one CSV file row by row, opening it on first use.
type fileStream struct {
	path   string
	cols   map[string]int
	file   *os.File
	reader *csv.Reader
	done   bool
}

func (f *fileStream) open() error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open event CSV %s: %w", f.path, err)
	}
	reader := csv.NewReader(file)
	// Skip header.
	if _, err := reader.Read(); err != nil {
		file.Close()
		return fmt.Errorf("failed to read header of %s: %w", f.path, err)
	}
	f.file = file
	f.reader = reader
	return nil
}

func (f *fileStream) Next() (Event, error) {
	if f.done {
		return Event{}, io.EOF
	}
	if f.reader == nil {
		if err := f.open(); err != nil {
			return Event{}, err
		}
	}
	for {
		row, err := f.reader.Read()
		if err == io.EOF {
			f.done = true
			f.file.Close()
			return Event{}, io.EOF
		}
		if err != nil {
			// The stream is unusable past a reader error; release the file
			// now rather than leaking it on the abort path.
			f.done = true
			f.file.Close()
			return Event{}, fmt.Errorf("failed to read row from %s: %w", f.path, err)
		}
		ev, perr := f.parseRow(row)
		if perr != nil {
			// Skip malformed rows rather than aborting the whole stream;
			// recorded runs occasionally carry truncated trailing lines.
			continue
		}
		return ev, nil
	}
}

func (f *fileStream) parseRow(row []string) (Event, error) {
	x, err := parseField(row, f.cols, "x")
	if err != nil {
		return Event{}, err
	}
	y, err := parseField(row, f.cols, "y")
	if err != nil {
		return Event{}, err
	}
	z, err := parseField(row, f.cols, "z")
	if err != nil {
		return Event{}, err
	}
	edep, err := parseField(row, f.cols, "edep")
	if err != nil {
		return Event{}, err
	}
	genRaw, err := stringField(row, f.cols, "generation")
	if err != nil {
		return Event{}, err
	}
	gen, err := strconv.Atoi(strings.TrimSpace(genRaw))
	if err != nil || gen < 0 {
		return Event{}, fmt.Errorf("bad generation %q", genRaw)
	}
	proc, err := stringField(row, f.cols, "process")
	if err != nil {
		return Event{}, err
	}
	return Event{
		X:          x,
		Y:          y,
		Z:          z,
		Edep:       edep,
		Generation: gen,
		Process:    strings.TrimSpace(proc),
	}, nil
}

func parseField(row []string, cols map[string]int, name string) (float64, error) {
	raw, err := stringField(row, cols, name)
	if err != nil {
		return 0, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty %s field", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s value %q: %w", name, raw, err)
	}
	return v, nil
}

func stringField(row []string, cols map[string]int, name string) (string, error) {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return "", fmt.Errorf("missing %s column", name)
	}
	return row[idx], nil
}

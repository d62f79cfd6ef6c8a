package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// WriteASCII dumps every non-empty voxel as one "x y z edep" line with
// voxel-center coordinates, preceded by the mesh and scorer name comments
// the reference writer emits. Line order follows voxel index order, but
// consumers must not rely on it. Values are written with 16 significant
// digits so a double round-trips exactly.
func (g *Grid) WriteASCII(w io.Writer, meshName, scorerName string) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "# mesh name: %s\n", meshName); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(bw, "# primitive scorer name: %s\n", scorerName); err != nil {
		return err
	}
	s := g.Spec
	for i := 0; i < s.NX; i++ {
		for j := 0; j < s.NY; j++ {
			for k := 0; k < s.NZ; k++ {
				v := g.Cell(i, j, k)
				if v == 0 {
					continue
				}
				x, y, z := g.Center(i, j, k)
				if _, err := fmt.Fprintf(bw, "%.16g  %.16g  %.16g  %.16g\n", x, y, z, v); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// WriteASCIIFile writes the mesh dump to a file. A failure to open or write
// is surfaced to the caller; the grid itself is untouched and the write may
// be retried elsewhere.
func (g *Grid) WriteASCIIFile(path, meshName, scorerName string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open mesh output %s: %w", path, err)
	}
	if err := g.WriteASCII(f, meshName, scorerName); err != nil {
		f.Close()
		return fmt.Errorf("write mesh output %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close mesh output %s: %w", path, err)
	}
	return nil
}

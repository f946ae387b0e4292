package sfincs

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

// Synthetic is a generated run directory: a tilted plain flooded by a
// water level that rises by a fixed step per output interval.
type Synthetic struct {
	Config *Config
	Index  Index
	// Bed holds the bed level per active cell in index order.
	Bed []float32
	// Levels holds the maximum water level per timestep and active cell.
	Levels [][]float32
}

// NewSynthetic builds a run on shape with the given number of stored
// timesteps. Every fifth storage cell is inactive. Cells the water has not
// reached yet carry the missing value.
func NewSynthetic(shape domain.Shape, timesteps int, seed uint64) *Synthetic {
	rng := rand.New(rand.NewPCG(seed, seed^0x5f1c))
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

	s := &Synthetic{
		Config: &Config{
			MMax:      shape.Cols,
			NMax:      shape.Rows,
			DX:        50,
			DY:        50,
			X0:        318000,
			Y0:        5040000,
			TStart:    start,
			TStop:     start.Add(time.Duration(timesteps) * time.Hour),
			DtMaxOut:  time.Hour,
			IndexFile: "sfincs.ind",
			DepFile:   "sfincs.dep",
			EPSG:      32633,
		},
	}
	for k := 0; k < shape.Cells(); k++ {
		if k%5 == 4 {
			continue
		}
		s.Index = append(s.Index, k)
		row, col := shape.Rows-1-k%shape.Rows, k/shape.Rows
		bed := 0.2*float64(col) + 0.05*float64(row) + 0.02*rng.Float64()
		s.Bed = append(s.Bed, float32(bed))
	}
	for t := range timesteps {
		level := 0.5 + 0.4*float64(t)
		zs := make([]float32, len(s.Index))
		for i, bed := range s.Bed {
			if float64(bed) >= level {
				zs[i] = float32(domain.DefaultMissing)
				continue
			}
			zs[i] = float32(level)
		}
		s.Levels = append(s.Levels, zs)
	}
	return s
}

// Write creates dir and writes sfincs.inp, the index, the bed level and
// zsmax.dat into it.
func (s *Synthetic) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	steps := []struct {
		name  string
		write func(w *bufio.Writer) error
	}{
		{InpFile, func(w *bufio.Writer) error { _, err := s.Config.WriteTo(w); return err }},
		{s.Config.IndexFile, func(w *bufio.Writer) error { return EncodeIndex(w, s.Index) }},
		{s.Config.DepFile, func(w *bufio.Writer) error { return EncodeStaticMap(w, s.Bed) }},
		{ZsMaxFile, func(w *bufio.Writer) error {
			for _, zs := range s.Levels {
				if err := EncodeRecord(w, zs); err != nil {
					return err
				}
			}
			return nil
		}},
	}
	for _, step := range steps {
		if err := writeFile(filepath.Join(dir, step.name), step.write); err != nil {
			return err
		}
	}
	return nil
}

// MaxDepth returns the expected maximum depth of active cell i over all
// timesteps, following the post-processing rule for missing water levels.
func (s *Synthetic) MaxDepth(i int) float64 {
	depth := 0.0
	for _, zs := range s.Levels {
		if zs[i] == float32(domain.DefaultMissing) {
			continue
		}
		depth = max(depth, float64(zs[i])-float64(s.Bed[i]))
	}
	return depth
}

func writeFile(path string, fn func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

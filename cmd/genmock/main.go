// Command genmock writes synthetic SFINCS run directories plus a matching
// scenario table, for demos and for exercising sfincs-batch without the
// model binary.
//
// Usage:
//
//	go run ./cmd/genmock -out testdata/models -scenarios 3 -suffixes ,_dt0
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
	"github.com/compound-floodrisk/sfincs-batch/internal/sfincs"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "model directory to write run directories into")
	scenarios := flag.Int("scenarios", 2, "number of scenarios in the table")
	suffixes := flag.String("suffixes", ",_dt0", "comma separated run directory suffixes per scenario")
	rows := flag.Int("rows", 40, "grid rows (nmax)")
	cols := flag.Int("cols", 60, "grid columns (mmax)")
	timesteps := flag.Int("timesteps", 6, "stored maximum-output timesteps")
	seed := flag.Uint64("seed", 1, "random seed for the bed level")
	flag.Parse()

	if *out == "" || *scenarios < 1 || *rows < 1 || *cols < 1 || *timesteps < 1 {
		flag.Usage()
		return fmt.Errorf("missing or invalid flags: -out is required and sizes must be positive")
	}

	shape := domain.Shape{Rows: *rows, Cols: *cols}
	names := make([]string, *scenarios)
	for i := range names {
		names[i] = fmt.Sprintf("qb%03d_qp000_h000_p000", (i+1)*10)
		for _, suffix := range strings.Split(*suffixes, ",") {
			dir := filepath.Join(*out, names[i]+strings.TrimSpace(suffix))
			syn := sfincs.NewSynthetic(shape, *timesteps, *seed+uint64(i))
			if err := syn.Write(dir); err != nil {
				return fmt.Errorf("write %s: %w", dir, err)
			}
			log.Printf("%s: %s grid, %d active cells, %d timesteps", dir, shape, len(syn.Index), *timesteps)
		}
	}

	table := filepath.Join(*out, "scenarios.csv")
	if err := writeTable(table, names); err != nil {
		return err
	}
	log.Printf("scenario table: %s (%d scenarios)", table, len(names))
	return nil
}

func writeTable(path string, names []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	rows := [][]string{{"", "scen", "qb_rp"}}
	for i, n := range names {
		rows = append(rows, []string{strconv.Itoa(i), n, strconv.Itoa((i + 1) * 10)})
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write scenario table: %w", err)
	}
	return f.Close()
}

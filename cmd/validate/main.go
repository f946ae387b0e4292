// Command validate checks finished SFINCS run directories: the depth raster
// matches the model grid, the plot is a readable PNG, the run log exists and
// no transient binary output is left behind.
//
// Usage:
//
//	go run ./cmd/validate testdata/models/qb010_qp000_h000_p000 ...
package main

import (
	"flag"
	"fmt"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
	"github.com/compound-floodrisk/sfincs-batch/internal/postprocess"
	"github.com/compound-floodrisk/sfincs-batch/internal/raster"
	"github.com/compound-floodrisk/sfincs-batch/internal/sfincs"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s <run-dir>...\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	failed := 0
	for _, root := range flag.Args() {
		if !validateRun(root) {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("\n%d of %d run directories failed validation\n", failed, flag.NArg())
		os.Exit(1)
	}
}

func validateRun(root string) bool {
	fmt.Printf("=== %s ===\n", root)

	cfg, err := sfincs.ReadConfig(filepath.Join(root, sfincs.InpFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return false
	}

	phases := []*phase{
		validateRaster(root, cfg),
		validatePlot(root),
		validateLog(root),
		validateTransient(root),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-32s %s\n", p.name, status)
	}
	for _, p := range phases {
		for _, e := range p.errors {
			fmt.Printf("    %s: %s\n", p.name, e)
		}
	}
	return allPassed
}

func validateRaster(root string, cfg *sfincs.Config) *phase {
	p := &phase{name: "Depth raster"}
	r, err := raster.ReadGeoTIFFFile(filepath.Join(root, postprocess.RasterPath))
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if r.Shape != cfg.Shape() {
		p.errorf("shape %s, model grid %s", r.Shape, cfg.Shape())
	}
	if cfg.EPSG != 0 && r.EPSG != cfg.EPSG {
		p.errorf("EPSG %d, model %d", r.EPSG, cfg.EPSG)
	}
	if r.Nodata != domain.DefaultMissing {
		p.errorf("nodata %g, want %g", r.Nodata, domain.DefaultMissing)
	}
	if r.Transform != cfg.Transform() {
		p.errorf("transform %+v, model %+v", r.Transform, cfg.Transform())
	}
	wet := 0
	for i, v := range r.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			p.errorf("cell %d is %g", i, v)
			continue
		}
		if !r.IsNodata(v) && v > 0 {
			wet++
		}
	}
	fmt.Printf("  raster: %s, %d wet cells\n", r.Shape, wet)
	return p
}

func validatePlot(root string) *phase {
	p := &phase{name: "Depth plot"}
	f, err := os.Open(filepath.Join(root, postprocess.PlotPath))
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	defer f.Close()
	if _, err := png.DecodeConfig(f); err != nil {
		p.errorf("not a PNG: %v", err)
	}
	return p
}

func validateLog(root string) *phase {
	p := &phase{name: "Run log"}
	info, err := os.Stat(filepath.Join(root, domain.MarkerFile))
	switch {
	case err != nil:
		p.errorf("%v", err)
	case info.Size() == 0:
		p.errorf("%s is empty; the run may not have produced output", domain.MarkerFile)
	}
	return p
}

func validateTransient(root string) *phase {
	p := &phase{name: "Transient output removed"}
	matches, err := doublestar.Glob(os.DirFS(root), "*.dat")
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for _, m := range matches {
		p.errorf("%s still present", m)
	}
	return p
}

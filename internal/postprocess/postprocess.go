// Package postprocess turns the binary output of a finished SFINCS run into
// a maximum flood depth GeoTIFF and a PNG map, then removes the transient
// binary files.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
	"github.com/compound-floodrisk/sfincs-batch/internal/observability"
	"github.com/compound-floodrisk/sfincs-batch/internal/raster"
	"github.com/compound-floodrisk/sfincs-batch/internal/sfincs"
)

// Result paths relative to the run directory.
const (
	RasterPath = "gis/hmax.tif"
	PlotPath   = "figs/hmax.png"
)

// transientPattern matches the binary outputs removed after processing.
const transientPattern = "*.dat"

// Options tunes the rendered plot.
type Options struct {
	MinFloodDepth float64
	MaxPlotDepth  float64
}

// DefaultOptions colours depths above 0 m on a 0 to 3 m scale.
func DefaultOptions() Options { return Options{MinFloodDepth: 0, MaxPlotDepth: 3} }

// Report describes what Process did for one run directory. Computed is set
// when the depth was derived from the model output, Written when the raster
// file was created by this call. An existing raster file is never replaced.
type Report struct {
	Root     string
	Raster   string
	Plot     string
	Computed bool
	Written  bool
	Cleanup  []domain.Outcome
}

// Processor post-processes run directories.
type Processor struct {
	loader  sfincs.IndexLoader
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
}

// New creates a Processor. A nil loader reads index files from disk each time.
func New(loader sfincs.IndexLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Processor {
	if loader == nil {
		loader = sfincs.FileIndexLoader
	}
	return &Processor{loader: loader, logger: logger, metrics: metrics, opts: opts}
}

// Process writes gis/hmax.tif unless it already exists, always renders
// figs/hmax.png from it (recomputing the depth when the existing file cannot
// be read), and deletes every *.dat file in root. Cleanup failures are
// reported in the Report and never returned as errors.
func (p *Processor) Process(ctx context.Context, root string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	start := time.Now()
	rep := Report{
		Root:   root,
		Raster: filepath.Join(root, RasterPath),
		Plot:   filepath.Join(root, PlotPath),
	}
	logger := p.logger.With("dir", root)

	hmax, computed, written, err := p.loadOrCompute(logger, rep.Raster, root)
	if err != nil {
		return rep, err
	}
	rep.Computed, rep.Written = computed, written
	switch {
	case written:
		p.metrics.RastersComputed.Inc()
		logger.Info("max depth raster written", "path", rep.Raster, "shape", hmax.Shape.String())
	case computed:
		p.metrics.RastersComputed.Inc()
	default:
		p.metrics.RastersReused.Inc()
		logger.Info("max depth raster exists, skipping recomputation", "path", rep.Raster)
	}

	plotOpts := raster.DefaultPlotOptions()
	plotOpts.Title = filepath.Base(filepath.Clean(root))
	plotOpts.MinDepth = p.opts.MinFloodDepth
	plotOpts.MaxDepth = p.opts.MaxPlotDepth
	if err := raster.RenderDepthPlotFile(rep.Plot, hmax, plotOpts); err != nil {
		return rep, fmt.Errorf("render plot: %w", err)
	}

	rep.Cleanup = p.removeTransient(logger, root)
	p.metrics.PostprocessDuration.Observe(time.Since(start).Seconds())
	return rep, nil
}

// loadOrCompute returns the max depth raster of root. An existing raster file
// is never overwritten: when it is readable it is used as is, otherwise the
// depth is recomputed for the plot only. computed reports recomputation and
// written reports that the raster file was created.
func (p *Processor) loadOrCompute(logger *slog.Logger, rasterPath, root string) (hmax *domain.Raster, computed, written bool, err error) {
	_, statErr := os.Stat(rasterPath)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return nil, false, false, fmt.Errorf("stat raster: %w", statErr)
	}
	if exists {
		r, err := raster.ReadGeoTIFFFile(rasterPath)
		if err == nil {
			return r, false, false, nil
		}
		logger.Warn("existing max depth raster unreadable, recomputing for the plot", "path", rasterPath, "error", err)
	}

	hmax, err = p.compute(root)
	if err != nil {
		return nil, false, false, err
	}
	if exists {
		return hmax, true, false, nil
	}
	if err := raster.WriteGeoTIFFFile(rasterPath, hmax); err != nil {
		return nil, true, false, err
	}
	return hmax, true, true, nil
}

func (p *Processor) compute(root string) (*domain.Raster, error) {
	run, err := sfincs.OpenRun(root, p.loader)
	if err != nil {
		return nil, err
	}
	zs, err := run.MaxWaterLevel()
	if err != nil {
		return nil, err
	}
	dep, err := run.BedLevel()
	if err != nil {
		return nil, err
	}
	return MaxDepth(zs, dep)
}

// MaxDepth reduces a water level series to the maximum water depth over
// time. A missing water level counts as depth 0; a cell without bed level is
// nodata. The result uses domain.DefaultMissing as nodata and carries the
// georeferencing of dep.
func MaxDepth(zs *domain.Field, dep *domain.Raster) (*domain.Raster, error) {
	if zs.Shape != dep.Shape {
		return nil, fmt.Errorf("%w: water level %s, bed level %s", sfincs.ErrShapeMismatch, zs.Shape, dep.Shape)
	}
	out := domain.NewRaster(dep.Shape, domain.DefaultMissing)
	out.Transform = dep.Transform
	out.EPSG = dep.EPSG

	for i, bed := range dep.Data {
		if dep.IsNodata(bed) {
			continue
		}
		best := math.NaN()
		for t := range zs.Timesteps() {
			v := zs.Step(t)[i]
			depth := 0.0
			if v != zs.Missing {
				depth = float64(v) - bed
			}
			if math.IsNaN(depth) {
				continue
			}
			if math.IsNaN(best) || depth > best {
				best = depth
			}
		}
		if !math.IsNaN(best) {
			out.Data[i] = best
		}
	}
	return out, nil
}

func (p *Processor) removeTransient(logger *slog.Logger, root string) []domain.Outcome {
	matches, err := doublestar.Glob(os.DirFS(root), transientPattern)
	if err != nil {
		logger.Warn("list transient outputs failed", "error", err)
		return []domain.Outcome{{Op: "delete", Path: filepath.Join(root, transientPattern), Err: err}}
	}
	outcomes := make([]domain.Outcome, 0, len(matches))
	for _, m := range matches {
		path := filepath.Join(root, filepath.FromSlash(m))
		err := os.Remove(path)
		p.metrics.ObserveFileOp("delete", err)
		if err != nil {
			logger.Warn("remove transient output failed", "path", path, "error", err)
		} else {
			logger.Debug("removed transient output", "path", path)
		}
		outcomes = append(outcomes, domain.Outcome{Op: "delete", Path: path, Err: err})
	}
	return outcomes
}

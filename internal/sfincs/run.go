package sfincs

import (
	"fmt"
	"path/filepath"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

// ZsMaxFile is the binary maximum water level output of a run.
const ZsMaxFile = "zsmax.dat"

// Run is a SFINCS run directory opened for reading.
type Run struct {
	Root   string
	Config *Config
	Index  Index
}

// OpenRun reads the model config and active-cell index of the run in root.
func OpenRun(root string, loader IndexLoader) (*Run, error) {
	if loader == nil {
		loader = FileIndexLoader
	}
	cfg, err := ReadConfig(filepath.Join(root, InpFile))
	if err != nil {
		return nil, err
	}
	idx, err := loader.LoadIndex(filepath.Join(root, cfg.IndexFile))
	if err != nil {
		return nil, err
	}
	return &Run{Root: root, Config: cfg, Index: idx}, nil
}

// BedLevel reads the static bed level map, georeferenced with the model grid.
func (r *Run) BedLevel() (*domain.Raster, error) {
	dep, err := DecodeStaticMapFile(filepath.Join(r.Root, r.Config.DepFile), r.Index, r.Config.Shape())
	if err != nil {
		return nil, fmt.Errorf("read bed level: %w", err)
	}
	dep.Transform = r.Config.Transform()
	dep.EPSG = r.Config.EPSG
	return dep, nil
}

// MaxWaterLevel decodes the zsmax.dat time series.
func (r *Run) MaxWaterLevel(opts ...DecodeOption) (*domain.Field, error) {
	times, err := r.Config.TimeAxis()
	if err != nil {
		return nil, err
	}
	field, err := DecodeOutputFile(filepath.Join(r.Root, ZsMaxFile), r.Index, len(times), r.Config.Shape(), opts...)
	if err != nil {
		return nil, fmt.Errorf("read max water level: %w", err)
	}
	field.Times = times
	return field, nil
}

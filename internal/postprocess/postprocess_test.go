package postprocess

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
	"github.com/compound-floodrisk/sfincs-batch/internal/observability"
	"github.com/compound-floodrisk/sfincs-batch/internal/raster"
	"github.com/compound-floodrisk/sfincs-batch/internal/sfincs"
)

func newProcessor() *Processor {
	return New(nil, slog.Default(), observability.NewMetricsForTesting(), DefaultOptions())
}

func writeRun(t *testing.T) (string, *sfincs.Synthetic) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "qb010_qp000")
	syn := sfincs.NewSynthetic(domain.Shape{Rows: 5, Cols: 8}, 4, 42)
	require.NoError(t, syn.Write(root))
	return root, syn
}

func TestProcess_ComputesRasterAndCleansUp(t *testing.T) {
	root, syn := writeRun(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "zsmax_extra.dat"), []byte("x"), 0o644))

	rep, err := newProcessor().Process(context.Background(), root)
	require.NoError(t, err)

	assert.True(t, rep.Computed)
	assert.True(t, rep.Written)
	assert.FileExists(t, rep.Raster)
	assert.FileExists(t, rep.Plot)
	assert.NoFileExists(t, filepath.Join(root, sfincs.ZsMaxFile))
	assert.NoFileExists(t, filepath.Join(root, "zsmax_extra.dat"))
	assert.FileExists(t, filepath.Join(root, sfincs.InpFile))
	assert.Len(t, rep.Cleanup, 2)
	assert.Empty(t, domain.Failed(rep.Cleanup))

	hmax, err := raster.ReadGeoTIFFFile(rep.Raster)
	require.NoError(t, err)
	assert.Equal(t, 32633, hmax.EPSG)
	assert.Equal(t, domain.DefaultMissing, hmax.Nodata)

	active := make(map[int]bool)
	shape := hmax.Shape
	for i, k := range syn.Index {
		off := (shape.Rows-1-k%shape.Rows)*shape.Cols + k/shape.Rows
		active[off] = true
		assert.InDelta(t, syn.MaxDepth(i), hmax.Data[off], 1e-5, "cell %d", k)
	}
	for off, v := range hmax.Data {
		if !active[off] {
			assert.Equal(t, domain.DefaultMissing, v, "inactive cell %d", off)
		}
	}
}

func TestProcess_ExistingRasterIsKept(t *testing.T) {
	root, _ := writeRun(t)
	p := newProcessor()

	_, err := p.Process(context.Background(), root)
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(root, RasterPath))
	require.NoError(t, err)

	// Second invocation: the plot is gone and a new transient file appeared.
	require.NoError(t, os.Remove(filepath.Join(root, PlotPath)))
	require.NoError(t, os.WriteFile(filepath.Join(root, sfincs.ZsMaxFile), []byte("stale"), 0o644))

	rep, err := p.Process(context.Background(), root)
	require.NoError(t, err)

	assert.False(t, rep.Computed)
	assert.False(t, rep.Written)
	after, err := os.ReadFile(rep.Raster)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("raster changed (-before +after):\n%s", diff)
	}
	assert.FileExists(t, rep.Plot)
	assert.NoFileExists(t, filepath.Join(root, sfincs.ZsMaxFile))
}

func TestProcess_UnreadableExistingRaster(t *testing.T) {
	root, _ := writeRun(t)
	path := filepath.Join(root, RasterPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	foreign := []byte("MM\x00\x2a\x00\x00\x00\x08not a raster this package wrote")
	require.NoError(t, os.WriteFile(path, foreign, 0o644))

	rep, err := newProcessor().Process(context.Background(), root)
	require.NoError(t, err)

	assert.True(t, rep.Computed, "depth recomputed for the plot")
	assert.False(t, rep.Written)
	kept, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, foreign, kept, "existing raster must not be replaced")
	assert.FileExists(t, rep.Plot)
	assert.NoFileExists(t, filepath.Join(root, sfincs.ZsMaxFile))
	assert.Empty(t, domain.Failed(rep.Cleanup))
}

func TestProcess_MissingOutput(t *testing.T) {
	root, _ := writeRun(t)
	require.NoError(t, os.Remove(filepath.Join(root, sfincs.ZsMaxFile)))

	_, err := newProcessor().Process(context.Background(), root)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, filepath.Join(root, RasterPath))
}

func TestProcess_TruncatedOutput(t *testing.T) {
	root, _ := writeRun(t)
	path := filepath.Join(root, sfincs.ZsMaxFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0o644))

	_, err = newProcessor().Process(context.Background(), root)
	assert.ErrorIs(t, err, sfincs.ErrTruncated)
}

func TestProcess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newProcessor().Process(ctx, t.TempDir())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMaxDepth(t *testing.T) {
	shape := domain.Shape{Rows: 1, Cols: 4}
	mv := float32(domain.DefaultMissing)
	zs := domain.NewField(2, shape, mv)
	copy(zs.Step(0), []float32{1.5, mv, 2, mv})
	copy(zs.Step(1), []float32{1.0, mv, 3, 9})

	dep := domain.NewRaster(shape, domain.StaticMissing)
	dep.Data = []float64{0.5, 1, 1, domain.StaticMissing}
	dep.EPSG = 4326

	got, err := MaxDepth(zs, dep)
	require.NoError(t, err)

	// dry everywhere -> 0, bed level missing -> nodata
	assert.Equal(t, []float64{1, 0, 2, domain.DefaultMissing}, got.Data)
	assert.Equal(t, 4326, got.EPSG)
	assert.False(t, math.IsNaN(got.Data[1]))
}

func TestMaxDepth_ShapeMismatch(t *testing.T) {
	zs := domain.NewField(1, domain.Shape{Rows: 2, Cols: 2}, -999)
	dep := domain.NewRaster(domain.Shape{Rows: 2, Cols: 3}, -9999)
	_, err := MaxDepth(zs, dep)
	assert.ErrorIs(t, err, sfincs.ErrShapeMismatch)
}

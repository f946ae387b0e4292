// Package raster reads and writes single-band GeoTIFFs through the GDAL GTiff
// driver and renders depth maps as PNG images.
package raster

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/lukeroth/gdal"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

// ErrUnsupported is returned for rasters this package cannot represent:
// more than one band, or a rotated geotransform.
var ErrUnsupported = errors.New("unsupported raster")

// creationOptions are passed to the GTiff driver for every raster written.
var creationOptions = []string{"COMPRESS=DEFLATE", "TILED=YES"}

var registerDrivers sync.Once

func gtiff() (gdal.Driver, error) {
	registerDrivers.Do(gdal.AllRegister)
	drv, err := gdal.GetDriverByName("GTiff")
	if err != nil {
		return drv, fmt.Errorf("gdal GTiff driver: %w", err)
	}
	return drv, nil
}

// WriteGeoTIFFFile writes r as a float32 GeoTIFF to path. The file is built
// under a temporary name in the same directory and renamed over path once
// GDAL has closed it. NaN cells are written as the raster's nodata value.
func WriteGeoTIFFFile(path string, r *domain.Raster) error {
	rows, cols := r.Shape.Rows, r.Shape.Cols
	if rows <= 0 || cols <= 0 || len(r.Data) != rows*cols {
		return fmt.Errorf("raster shape %s does not match %d values", r.Shape, len(r.Data))
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create raster dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.tif")
	if err != nil {
		return fmt.Errorf("create temp raster: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if err := writeDataset(tmpName, r); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename raster: %w", err)
	}
	return nil
}

func writeDataset(path string, r *domain.Raster) error {
	drv, err := gtiff()
	if err != nil {
		return err
	}
	rows, cols := r.Shape.Rows, r.Shape.Cols
	ds := drv.Create(path, cols, rows, 1, gdal.Float32, creationOptions)
	defer ds.Close()

	t := r.Transform
	if err := ds.SetGeoTransform([6]float64{t.OriginX, t.DX, 0, t.OriginY, 0, -t.DY}); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	if r.EPSG != 0 {
		wkt, err := epsgToWKT(r.EPSG)
		if err != nil {
			return err
		}
		if err := ds.SetProjection(wkt); err != nil {
			return fmt.Errorf("set projection EPSG:%d: %w", r.EPSG, err)
		}
	}

	band := ds.RasterBand(1)
	if err := band.SetNoDataValue(r.Nodata); err != nil {
		return fmt.Errorf("set nodata: %w", err)
	}
	pixels := make([]float32, len(r.Data))
	for i, v := range r.Data {
		if math.IsNaN(v) {
			v = r.Nodata
		}
		pixels[i] = float32(v)
	}
	if err := band.IO(gdal.RWFlag(gdal.Write), 0, 0, cols, rows, pixels, cols, rows, 0, 0); err != nil {
		return fmt.Errorf("write raster band: %w", err)
	}
	return nil
}

func epsgToWKT(code int) (string, error) {
	srs := gdal.CreateSpatialReference("")
	defer srs.Destroy()
	if err := srs.FromEPSG(code); err != nil {
		return "", fmt.Errorf("EPSG:%d: %w", code, err)
	}
	wkt, err := srs.ToWKT()
	if err != nil {
		return "", fmt.Errorf("EPSG:%d to WKT: %w", code, err)
	}
	return wkt, nil
}

// wktToEPSG returns the EPSG code of a projection, or 0 when it has none.
func wktToEPSG(wkt string) int {
	if wkt == "" {
		return 0
	}
	srs := gdal.CreateSpatialReference(wkt)
	defer srs.Destroy()
	if code, err := strconv.Atoi(srs.AuthorityCode("")); err == nil {
		return code
	}
	if err := srs.AutoIdentifyEPSG(); err != nil {
		return 0
	}
	code, _ := strconv.Atoi(srs.AuthorityCode(""))
	return code
}

// ReadGeoTIFFFile reads band 1 of any raster GDAL can open. A missing file is
// reported as fs.ErrNotExist. Rasters without a nodata value get NaN.
func ReadGeoTIFFFile(path string) (*domain.Raster, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read raster: %w", err)
	}
	registerDrivers.Do(gdal.AllRegister)
	ds, err := gdal.Open(path, gdal.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer ds.Close()

	if n := ds.RasterCount(); n != 1 {
		return nil, fmt.Errorf("%w: %s has %d bands", ErrUnsupported, path, n)
	}
	gt := ds.GeoTransform()
	if gt[2] != 0 || gt[4] != 0 {
		return nil, fmt.Errorf("%w: %s is rotated", ErrUnsupported, path)
	}

	cols, rows := ds.RasterXSize(), ds.RasterYSize()
	band := ds.RasterBand(1)
	nodata, ok := band.NoDataValue()
	if !ok {
		nodata = math.NaN()
	}
	r := &domain.Raster{
		Shape:     domain.Shape{Rows: rows, Cols: cols},
		Data:      make([]float64, rows*cols),
		Nodata:    nodata,
		Transform: domain.GeoTransform{OriginX: gt[0], OriginY: gt[3], DX: gt[1], DY: -gt[5]},
		EPSG:      wktToEPSG(ds.Projection()),
	}
	if err := band.IO(gdal.RWFlag(gdal.Read), 0, 0, cols, rows, r.Data, cols, rows, 0, 0); err != nil {
		return nil, fmt.Errorf("read raster band %s: %w", path, err)
	}
	return r, nil
}

package domain

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultMissing marks inactive cells in SFINCS map output.
	DefaultMissing = -999.0
	// StaticMissing marks inactive cells in SFINCS static maps.
	StaticMissing = -9999.0
)

// Shape is the (rows, cols) size of a model grid.
type Shape struct {
	Rows int
	Cols int
}

// Cells returns rows*cols.
func (s Shape) Cells() int { return s.Rows * s.Cols }

func (s Shape) String() string { return fmt.Sprintf("(%d, %d)", s.Rows, s.Cols) }

// GeoTransform places a north-up grid in map coordinates. OriginX and OriginY
// are the coordinates of the upper-left corner of cell (0, 0).
type GeoTransform struct {
	OriginX float64
	OriginY float64
	DX      float64
	DY      float64
}

// CellCenter returns the map coordinates of the centre of cell (row, col).
func (g GeoTransform) CellCenter(row, col int) (x, y float64) {
	return g.OriginX + (float64(col)+0.5)*g.DX, g.OriginY - (float64(row)+0.5)*g.DY
}

// Raster is a single-band 2D grid with its georeferencing.
// Data is row-major with row 0 at the northern edge.
type Raster struct {
	Shape     Shape
	Data      []float64
	Nodata    float64
	Transform GeoTransform
	EPSG      int
}

// NewRaster returns a raster with every cell set to nodata.
func NewRaster(shape Shape, nodata float64) *Raster {
	data := make([]float64, shape.Cells())
	for i := range data {
		data[i] = nodata
	}
	return &Raster{Shape: shape, Data: data, Nodata: nodata}
}

// At returns the value of cell (row, col).
func (r *Raster) At(row, col int) float64 { return r.Data[row*r.Shape.Cols+col] }

// Set assigns the value of cell (row, col).
func (r *Raster) Set(row, col int, v float64) { r.Data[row*r.Shape.Cols+col] = v }

// IsNodata reports whether v is the nodata value or NaN.
func (r *Raster) IsNodata(v float64) bool {
	return math.IsNaN(v) || v == r.Nodata
}

// Field is a decoded time series of grids, indexed (timestep, row, col).
type Field struct {
	Shape   Shape
	Times   []time.Time
	Missing float32
	Data    []float32
}

// NewField allocates a field of the given size filled with the missing value.
func NewField(timesteps int, shape Shape, missing float32) *Field {
	data := make([]float32, timesteps*shape.Cells())
	for i := range data {
		data[i] = missing
	}
	return &Field{Shape: shape, Missing: missing, Data: data}
}

// Timesteps returns the number of stored timesteps.
func (f *Field) Timesteps() int {
	if f.Shape.Cells() == 0 {
		return 0
	}
	return len(f.Data) / f.Shape.Cells()
}

// At returns the value at (t, row, col).
func (f *Field) At(t, row, col int) float32 {
	return f.Data[(t*f.Shape.Rows+row)*f.Shape.Cols+col]
}

// Step returns the grid of timestep t as a row-major slice sharing storage
// with the field.
func (f *Field) Step(t int) []float32 {
	n := f.Shape.Cells()
	return f.Data[t*n : (t+1)*n]
}

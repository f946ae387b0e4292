package raster

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

// PlotOptions controls RenderDepthPlot.
type PlotOptions struct {
	Title string
	// Cells at or below MinDepth are left transparent.
	MinDepth float64
	// Colour scale upper bound; deeper cells get the top colour.
	MaxDepth float64
	DPI      int
	Width    vg.Length
}

// DefaultPlotOptions returns the settings used for figs/hmax.png.
func DefaultPlotOptions() PlotOptions {
	return PlotOptions{MinDepth: 0, MaxDepth: 3, DPI: 150, Width: 6 * vg.Inch}
}

// RenderDepthPlotFile renders r to a PNG at path, creating the directory.
func RenderDepthPlotFile(path string, r *domain.Raster, opts PlotOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create figure dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create figure: %w", err)
	}
	if err := RenderDepthPlot(f, r, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RenderDepthPlot draws the depth raster as a heat map thresholded at
// opts.MinDepth and writes it as PNG.
func RenderDepthPlot(w io.Writer, r *domain.Raster, opts PlotOptions) error {
	if opts.MaxDepth <= opts.MinDepth {
		return fmt.Errorf("plot depth range [%g, %g] is empty", opts.MinDepth, opts.MaxDepth)
	}
	if opts.DPI <= 0 {
		opts.DPI = 150
	}
	if opts.Width <= 0 {
		opts.Width = 6 * vg.Inch
	}

	pal := moreland.ExtendedBlackBody().Palette(255)
	hm := plotter.NewHeatMap(depthGrid{r: r, min: opts.MinDepth}, pal)
	hm.Min, hm.Max = opts.MinDepth, opts.MaxDepth
	hm.NaN = color.Transparent
	hm.Underflow = color.Transparent
	hm.Overflow = pal.Colors()[len(pal.Colors())-1]

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "x [m]"
	p.Y.Label.Text = "y [m]"
	p.Add(hm)

	c := vgimg.NewWith(vgimg.UseWH(opts.Width, plotHeight(r.Shape, opts.Width)), vgimg.UseDPI(opts.DPI))
	p.Draw(draw.New(c))
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("encode figure: %w", err)
	}
	return nil
}

// plotHeight keeps the map aspect ratio within sensible bounds.
func plotHeight(shape domain.Shape, width vg.Length) vg.Length {
	h := width
	if shape.Cols > 0 {
		h = width * vg.Length(shape.Rows) / vg.Length(shape.Cols)
	}
	return vg.Length(math.Max(float64(width/2), math.Min(float64(h), float64(width*1.5))))
}

// depthGrid adapts a north-up raster to plotter.GridXYZ, whose rows grow
// northward.
type depthGrid struct {
	r   *domain.Raster
	min float64
}

func (g depthGrid) Dims() (c, r int) { return g.r.Shape.Cols, g.r.Shape.Rows }

func (g depthGrid) Z(c, r int) float64 {
	v := g.r.At(g.r.Shape.Rows-1-r, c)
	if g.r.IsNodata(v) || v <= g.min {
		return math.NaN()
	}
	return v
}

func (g depthGrid) X(c int) float64 {
	return g.r.Transform.OriginX + (float64(c)+0.5)*g.r.Transform.DX
}

func (g depthGrid) Y(r int) float64 {
	return g.r.Transform.OriginY - (float64(g.r.Shape.Rows-1-r)+0.5)*g.r.Transform.DY
}

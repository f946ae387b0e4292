package sfincs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

// InpFile is the name of the SFINCS model config inside a run directory.
const InpFile = "sfincs.inp"

// timeLayout is the sfincs.inp encoding of tref, tstart and tstop.
const timeLayout = "20060102 150405"

// Config holds the sfincs.inp settings the post-processor needs. Unknown keys
// are kept so a config can be written back unchanged.
type Config struct {
	MMax      int
	NMax      int
	DX        float64
	DY        float64
	X0        float64
	Y0        float64
	Rotation  float64
	TStart    time.Time
	TStop     time.Time
	DtMaxOut  time.Duration
	IndexFile string
	DepFile   string
	EPSG      int

	values map[string]string
}

// ReadConfig parses the sfincs.inp file at path.
func ReadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model config: %w", err)
	}
	defer f.Close()
	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig reads "key = value" lines. Blank lines and lines starting with
// '!' or '#' are ignored.
func ParseConfig(r io.Reader) (*Config, error) {
	values := make(map[string]string)
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing '='", ErrConfig, n)
		}
		values[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}
	return newConfig(values)
}

func newConfig(values map[string]string) (*Config, error) {
	p := &parser{values: values}
	cfg := &Config{
		MMax:      p.int("mmax", true),
		NMax:      p.int("nmax", true),
		DX:        p.float("dx", true),
		DY:        p.float("dy", true),
		X0:        p.float("x0", false),
		Y0:        p.float("y0", false),
		Rotation:  p.float("rotation", false),
		TStart:    p.time("tstart"),
		TStop:     p.time("tstop"),
		IndexFile: p.string("indexfile", "sfincs.ind"),
		DepFile:   p.string("depfile", "sfincs.dep"),
		EPSG:      p.int("epsg", false),
		values:    values,
	}
	if _, ok := values["dtmaxout"]; ok {
		cfg.DtMaxOut = time.Duration(p.float("dtmaxout", true) * float64(time.Second))
	} else {
		cfg.DtMaxOut = cfg.TStop.Sub(cfg.TStart)
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.MMax <= 0 || cfg.NMax <= 0 {
		return nil, fmt.Errorf("%w: grid size mmax=%d nmax=%d", ErrConfig, cfg.MMax, cfg.NMax)
	}
	if cfg.Rotation != 0 {
		return nil, fmt.Errorf("%w: rotated grids are not supported (rotation=%g)", ErrConfig, cfg.Rotation)
	}
	if cfg.TStop.Before(cfg.TStart) {
		return nil, fmt.Errorf("%w: tstop before tstart", ErrConfig)
	}
	return cfg, nil
}

// Shape returns the (nmax, mmax) grid shape.
func (c *Config) Shape() domain.Shape { return domain.Shape{Rows: c.NMax, Cols: c.MMax} }

// Transform returns the north-up georeferencing of the grid.
func (c *Config) Transform() domain.GeoTransform {
	return domain.GeoTransform{
		OriginX: c.X0,
		OriginY: c.Y0 + float64(c.NMax)*c.DY,
		DX:      c.DX,
		DY:      c.DY,
	}
}

// TimeAxis returns the stamps of the stored maximum-output records.
func (c *Config) TimeAxis() ([]time.Time, error) {
	axis, err := domain.NewTimeAxis(c.TStart, c.TStop, c.DtMaxOut)
	if err != nil {
		return nil, fmt.Errorf("%w: dtmaxout: %w", ErrConfig, err)
	}
	return axis, nil
}

// Get returns the raw value of key.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.values[strings.ToLower(key)]
	return v, ok
}

// WriteTo writes the config in sfincs.inp format with keys sorted.
func (c *Config) WriteTo(w io.Writer) (int64, error) {
	values := make(map[string]string, len(c.values)+12)
	for k, v := range c.values {
		values[k] = v
	}
	values["mmax"] = strconv.Itoa(c.MMax)
	values["nmax"] = strconv.Itoa(c.NMax)
	values["dx"] = formatFloat(c.DX)
	values["dy"] = formatFloat(c.DY)
	values["x0"] = formatFloat(c.X0)
	values["y0"] = formatFloat(c.Y0)
	values["rotation"] = formatFloat(c.Rotation)
	values["tstart"] = c.TStart.Format(timeLayout)
	values["tstop"] = c.TStop.Format(timeLayout)
	values["dtmaxout"] = formatFloat(c.DtMaxOut.Seconds())
	values["indexfile"] = c.IndexFile
	values["depfile"] = c.DepFile
	if c.EPSG != 0 {
		values["epsg"] = strconv.Itoa(c.EPSG)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total int64
	for _, k := range keys {
		n, err := fmt.Fprintf(w, "%-20s = %s\n", k, values[k])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// parser collects the first conversion error so newConfig reads top-down.
type parser struct {
	values map[string]string
	err    error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s: %w", ErrConfig, key, err)
	}
}

func (p *parser) raw(key string, required bool) (string, bool) {
	v, ok := p.values[key]
	if !ok && required {
		p.fail(key, errors.New("missing"))
	}
	return v, ok
}

func (p *parser) float(key string, required bool) float64 {
	v, ok := p.raw(key, required)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
	}
	return f
}

func (p *parser) int(key string, required bool) int {
	f := p.float(key, required)
	if f != math.Trunc(f) {
		p.fail(key, fmt.Errorf("not an integer: %g", f))
	}
	return int(f)
}

func (p *parser) string(key, fallback string) string {
	if v, ok := p.values[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (p *parser) time(key string) time.Time {
	v, ok := p.raw(key, true)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		p.fail(key, err)
	}
	return t
}

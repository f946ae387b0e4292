package sfincs

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

// ElementFormat is the on-disk encoding of one map value.
type ElementFormat int

const (
	Float32 ElementFormat = iota
	Float64
)

// Size returns the encoded size in bytes.
func (f ElementFormat) Size() int {
	if f == Float64 {
		return 8
	}
	return 4
}

func (f ElementFormat) String() string {
	if f == Float64 {
		return "f8"
	}
	return "f4"
}

type decodeOptions struct {
	missing float32
	format  ElementFormat
	order   binary.ByteOrder
}

// DecodeOption customises DecodeOutput and DecodeStaticMap.
type DecodeOption func(*decodeOptions)

// WithMissing sets the value written to cells not listed in the index.
func WithMissing(mv float32) DecodeOption {
	return func(o *decodeOptions) { o.missing = mv }
}

// WithFormat sets the element encoding. The default is Float32.
func WithFormat(f ElementFormat) DecodeOption {
	return func(o *decodeOptions) { o.format = f }
}

// WithByteOrder sets the element byte order. The default is little-endian.
func WithByteOrder(order binary.ByteOrder) DecodeOption {
	return func(o *decodeOptions) { o.order = order }
}

func newDecodeOptions(missing float32, opts []DecodeOption) decodeOptions {
	o := decodeOptions{missing: missing, format: Float32, order: binary.LittleEndian}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o decodeOptions) element(buf []byte, i int) float32 {
	if o.format == Float64 {
		return float32(math.Float64frombits(o.order.Uint64(buf[i*8:])))
	}
	return math.Float32frombits(o.order.Uint32(buf[i*4:]))
}

// DecodeOutputFile opens path and decodes it with DecodeOutput.
func DecodeOutputFile(path string, idx Index, timesteps int, shape domain.Shape, opts ...DecodeOption) (*domain.Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map output: %w", err)
	}
	defer f.Close()

	field, err := DecodeOutput(bufio.NewReader(f), idx, timesteps, shape, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return field, nil
}

// DecodeOutput reads timesteps framed records of map output from r.
//
// Each record holds one leading framing word, one value per active cell in
// index order and one trailing framing word. Values are scattered into the
// (ncol, nrow) storage buffer, flipped along nrow and returned as a field of
// shape (timesteps, nrow, ncol). Cells outside the index hold the missing
// value (default -999).
func DecodeOutput(r io.Reader, idx Index, timesteps int, shape domain.Shape, opts ...DecodeOption) (*domain.Field, error) {
	if err := checkIndex(idx, shape); err != nil {
		return nil, err
	}
	if timesteps < 0 {
		return nil, fmt.Errorf("negative timestep count %d", timesteps)
	}
	o := newDecodeOptions(domain.DefaultMissing, opts)

	field := domain.NewField(timesteps, shape, o.missing)
	record := make([]byte, (len(idx)+2)*o.format.Size())
	for t := 0; t < timesteps; t++ {
		if err := readRecord(r, record); err != nil {
			return nil, fmt.Errorf("timestep %d of %d: %w", t+1, timesteps, err)
		}
		grid := field.Step(t)
		for i, k := range idx {
			grid[gridOffset(k, shape)] = o.element(record, i+1)
		}
	}
	return field, nil
}

// DecodeStaticMap reads an unframed map holding one value per active cell, such
// as the bed level file sfincs.dep. Cells outside the index hold the missing
// value (default -9999).
func DecodeStaticMap(r io.Reader, idx Index, shape domain.Shape, opts ...DecodeOption) (*domain.Raster, error) {
	if err := checkIndex(idx, shape); err != nil {
		return nil, err
	}
	o := newDecodeOptions(domain.StaticMissing, opts)

	record := make([]byte, len(idx)*o.format.Size())
	if err := readRecord(r, record); err != nil {
		return nil, err
	}
	out := domain.NewRaster(shape, float64(o.missing))
	for i, k := range idx {
		out.Data[gridOffset(k, shape)] = float64(o.element(record, i))
	}
	return out, nil
}

// DecodeStaticMapFile opens path and decodes it with DecodeStaticMap.
func DecodeStaticMapFile(path string, idx Index, shape domain.Shape, opts ...DecodeOption) (*domain.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open static map: %w", err)
	}
	defer f.Close()

	r, err := DecodeStaticMap(bufio.NewReader(f), idx, shape, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// gridOffset maps a storage offset to the row-major offset of the flipped,
// transposed (nrow, ncol) grid.
func gridOffset(k int, shape domain.Shape) int {
	row := shape.Rows - 1 - k%shape.Rows
	col := k / shape.Rows
	return row*shape.Cols + col
}

func checkIndex(idx Index, shape domain.Shape) error {
	if shape.Rows <= 0 || shape.Cols <= 0 {
		return fmt.Errorf("%w: grid shape %s", ErrShapeMismatch, shape)
	}
	for _, k := range idx {
		if k < 0 || k >= shape.Cells() {
			return fmt.Errorf("%w: offset %d outside grid %s", ErrShapeMismatch, k, shape)
		}
	}
	return nil
}

func readRecord(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: need %d bytes: %w", ErrTruncated, len(buf), err)
		}
		return err
	}
	return nil
}

// EncodeRecord writes one framed record of float32 values. The framing words
// carry the record length in bytes, as Fortran sequential files do.
func EncodeRecord(w io.Writer, values []float32) error {
	marker := uint32(len(values) * 4)
	if err := binary.Write(w, binary.LittleEndian, marker); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, values); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, marker)
}

// EncodeStaticMap writes unframed float32 values in index order.
func EncodeStaticMap(w io.Writer, values []float32) error {
	return binary.Write(w, binary.LittleEndian, values)
}

package sfincs

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const indexChunk = 1 << 16

// Index lists the zero-based flat offsets of the active cells of a grid, in
// the order their values are stored in binary map files.
type Index []int

// Max returns the largest offset, or -1 for an empty index.
func (idx Index) Max() int {
	m := -1
	for _, k := range idx {
		if k > m {
			m = k
		}
	}
	return m
}

// ReadIndex reads a SFINCS index file: a little-endian uint32 count followed by
// that many one-based uint32 cell numbers.
func ReadIndex(path string) (Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	idx, err := DecodeIndex(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}

// DecodeIndex decodes an index from r. The stream must end right after the
// last cell number.
func DecodeIndex(r io.Reader) (Index, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedIndex, err)
	}

	// Read in chunks so a corrupt count cannot force a huge allocation.
	cells := make([]uint32, 0, min(int(count), indexChunk))
	chunk := make([]uint32, indexChunk)
	for remaining := int(count); remaining > 0; {
		buf := chunk[:min(remaining, indexChunk)]
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, fmt.Errorf("%w: expected %d cells, got %d: %w", ErrMalformedIndex, count, len(cells), err)
		}
		cells = append(cells, buf...)
		remaining -= len(buf)
	}

	var extra [1]byte
	if n, err := r.Read(extra[:]); n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
		return nil, fmt.Errorf("%w: trailing data after %d cells", ErrMalformedIndex, count)
	}

	idx := make(Index, count)
	for i, c := range cells {
		if c == 0 {
			return nil, fmt.Errorf("%w: cell number 0 at position %d", ErrMalformedIndex, i)
		}
		idx[i] = int(c) - 1
	}
	return idx, nil
}

// EncodeIndex writes idx in the layout read by DecodeIndex.
func EncodeIndex(w io.Writer, idx Index) error {
	cells := make([]uint32, len(idx)+1)
	cells[0] = uint32(len(idx))
	for i, k := range idx {
		cells[i+1] = uint32(k + 1)
	}
	return binary.Write(w, binary.LittleEndian, cells)
}

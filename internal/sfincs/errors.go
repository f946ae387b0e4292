package sfincs

import "errors"

var (
	// ErrMalformedIndex is returned when an index file does not match its header.
	ErrMalformedIndex = errors.New("malformed index file")
	// ErrShapeMismatch is returned when an index addresses cells outside the grid.
	ErrShapeMismatch = errors.New("index does not fit grid shape")
	// ErrTruncated is returned when a binary map holds fewer bytes than required.
	ErrTruncated = errors.New("truncated binary map")
	// ErrConfig is returned for missing or invalid sfincs.inp settings.
	ErrConfig = errors.New("invalid model config")
)

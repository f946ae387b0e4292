// Package domain models the data flowing through a SFINCS scenario batch.
//
// # Grids
//
// SFINCS writes gridded output for the active cells of a regular grid only.
// The grid has nmax rows and mmax columns ([Shape]). Active cells are listed in
// an index file as one-based cell numbers into a buffer flattened as
// (mmax, nmax), so cell number k (zero-based) addresses column k / nmax and
// storage row k % nmax. Storage rows run south to north; decoded buffers are
// flipped so that row 0 is the northern edge, matching GeoTIFF conventions.
//
// Missing values:
//
//	-999.0   sentinel for inactive cells in map output (zsmax.dat, zs.dat)
//	-9999.0  sentinel for inactive cells in static maps (sfincs.dep)
//
// # Time
//
// Map output is stored every dtmaxout seconds. The first record is stamped
// tstart+dtmaxout and the last one is the latest stamp not after tstop
// ([NewTimeAxis]).
//
// # Scenarios
//
// A scenario is one row of the scenario table. Each row expands into one run
// directory per configured suffix, e.g. "qb010_qp000_h000_p000" and
// "qb010_qp000_h000_p000_dt0". A run directory is considered done as soon as
// it contains the marker file sfincs.log, whatever its content. The status
// record sfincs.status.json sits next to it and says what actually happened.
package domain

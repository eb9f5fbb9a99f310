// Package change turns pre/post SAR composites into an amplitude change raster in dB.
package change

import (
	"fmt"

	"github.com/example/go-sarslide/raster"
)

// Band is the name of the change band.
const Band = "change"

// Inputs are the four composites, in dB.
type Inputs struct {
	PreAsc, PostAsc   *raster.Raster
	PreDesc, PostDesc *raster.Raster
}

// Result holds the averaged change and the per-orbit differences it was built from.
type Result struct {
	Change   *raster.Raster
	DiffAsc  *raster.Raster
	DiffDesc *raster.Raster
}

// Difference returns pre - post. Inputs are in dB, so the difference is a log ratio.
func Difference(pre, post *raster.Raster) (*raster.Raster, error) {
	d, err := raster.Subtract(pre, post)
	if err != nil {
		return nil, fmt.Errorf("change: difference: %w", err)
	}
	return d, nil
}

// Detect computes diff_asc = pre_asc - post_asc and diff_desc = pre_desc - post_desc and
// averages them. A pixel missing from any composite is no-data in the change raster.
func Detect(in Inputs) (Result, error) {
	for name, r := range map[string]*raster.Raster{
		"pre ascending": in.PreAsc, "post ascending": in.PostAsc,
		"pre descending": in.PreDesc, "post descending": in.PostDesc,
	} {
		if r == nil {
			return Result{}, fmt.Errorf("change: %s composite missing", name)
		}
		if r.NumBands() != 1 {
			return Result{}, fmt.Errorf("change: %s composite has %d bands, want 1", name, r.NumBands())
		}
	}
	asc, err := Difference(in.PreAsc, in.PostAsc)
	if err != nil {
		return Result{}, err
	}
	desc, err := Difference(in.PreDesc, in.PostDesc)
	if err != nil {
		return Result{}, err
	}
	sum, err := raster.Add(asc, desc)
	if err != nil {
		return Result{}, fmt.Errorf("change: average: %w", err)
	}
	avg, err := raster.DivideScalar(sum, 2)
	if err != nil {
		return Result{}, err
	}
	if avg, err = avg.Rename(Band); err != nil {
		return Result{}, err
	}
	return Result{Change: avg, DiffAsc: asc, DiffDesc: desc}, nil
}

// Stats summarises the change raster for the run log.
func (r Result) Stats() raster.Stats {
	return r.Change.Stats(0)
}

package raster

import (
	"fmt"
	"sort"
)

// Median reduces rasters sharing grid and bands to their per-pixel median over valid values.
// A pixel with no valid value in any input is no-data; an empty input yields a raster that
// is no-data everywhere. With an even number of values the two middle values are averaged.
func Median(grid Grid, bands []string, rs ...*Raster) (*Raster, error) {
	if err := checkStack(grid, bands, rs); err != nil {
		return nil, err
	}
	out := New(grid, bands...)
	values := make([]float64, 0, len(rs))
	for i := range bands {
		ob := &out.bands[i]
		for j := 0; j < grid.Len(); j++ {
			values = values[:0]
			for _, r := range rs {
				if b := r.bands[i]; b.Valid[j] {
					values = append(values, b.Data[j])
				}
			}
			if len(values) == 0 {
				continue
			}
			ob.Data[j] = median(values)
			ob.Valid[j] = true
		}
	}
	return out, nil
}

func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// Mosaic composites rasters in order so that later valid pixels cover earlier ones.
func Mosaic(grid Grid, bands []string, rs ...*Raster) (*Raster, error) {
	if err := checkStack(grid, bands, rs); err != nil {
		return nil, err
	}
	out := New(grid, bands...)
	for _, r := range rs {
		for i := range bands {
			src, ob := r.bands[i], &out.bands[i]
			for j, ok := range src.Valid {
				if ok {
					ob.Data[j] = src.Data[j]
					ob.Valid[j] = true
				}
			}
		}
	}
	return out, nil
}

func checkStack(grid Grid, bands []string, rs []*Raster) error {
	if len(bands) == 0 {
		return fmt.Errorf("%w: no bands to reduce", ErrNoBand)
	}
	for k, r := range rs {
		if !r.grid.Equal(grid) {
			return fmt.Errorf("%w: input %d is %s, want %s", ErrGridMismatch, k, r.grid, grid)
		}
		if len(r.bands) != len(bands) {
			return fmt.Errorf("%w: input %d has %d bands, want %d", ErrBandMismatch, k, len(r.bands), len(bands))
		}
		for i, b := range r.bands {
			if b.Name != bands[i] {
				return fmt.Errorf("%w: input %d band %d is %q, want %q", ErrBandMismatch, k, i, b.Name, bands[i])
			}
		}
	}
	return nil
}

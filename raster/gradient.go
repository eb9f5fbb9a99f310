package raster

import "errors"

// Gradient returns the x (eastward) and y (northward) derivatives of the first band, per
// CRS unit, as bands "x" and "y". Interior pixels use central differences; where a
// neighbour is missing (grid edge or no-data) the one-sided difference is used. A pixel
// with no usable neighbour along an axis is no-data.
func Gradient(r *Raster) (*Raster, error) {
	if len(r.bands) == 0 {
		return nil, errors.New("raster: gradient of raster without bands")
	}
	g := r.grid
	if err := g.Validate(); err != nil {
		return nil, err
	}
	src := r.bands[0]
	gx := newBand("x", g.Len())
	gy := newBand("y", g.Len())
	dx := g.GeoTransform[1]
	dy := g.GeoTransform[5]

	value := func(col, row int) (float64, bool) {
		if !g.Contains(col, row) {
			return 0, false
		}
		j := g.Index(col, row)
		return src.Data[j], src.Valid[j]
	}

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			idx := g.Index(col, row)
			if !src.Valid[idx] {
				continue
			}
			z := src.Data[idx]
			if d, ok := derivative(z, col, row, 1, 0, value); ok {
				gx.Data[idx] = d / dx
				gx.Valid[idx] = true
			}
			// Rows advance by dy (negative for north-up grids), so the derivative along
			// increasing row divided by dy is the northward derivative.
			if d, ok := derivative(z, col, row, 0, 1, value); ok {
				gy.Data[idx] = d / dy
				gy.Valid[idx] = true
			}
		}
	}
	return &Raster{grid: g, bands: []Band{gx, gy}}, nil
}

// derivative returns the change of z per pixel step along (sc, sr).
func derivative(z float64, col, row, sc, sr int, value func(int, int) (float64, bool)) (float64, bool) {
	next, okNext := value(col+sc, row+sr)
	prev, okPrev := value(col-sc, row-sr)
	switch {
	case okNext && okPrev:
		return (next - prev) / 2, true
	case okNext:
		return next - z, true
	case okPrev:
		return z - prev, true
	default:
		return 0, false
	}
}

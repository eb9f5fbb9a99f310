package raster

import (
	"fmt"
	"math"
)

// CoordFunc maps coordinates from one CRS to another.
type CoordFunc func(x, y float64) (float64, float64, error)

// Identity is the CoordFunc for rasters already in the target CRS.
func Identity(x, y float64) (float64, float64, error) {
	return x, y, nil
}

// Method selects the interpolation used by Resample.
type Method int

const (
	Nearest Method = iota
	Bilinear
)

// Resample samples src at the pixel centres of dst. toSrc maps dst CRS coordinates into
// the CRS of src. Bilinear interpolation needs all four surrounding pixels to be valid and
// falls back to the nearest pixel otherwise. Pixels outside src are no-data.
func Resample(src *Raster, dst Grid, toSrc CoordFunc, method Method) (*Raster, error) {
	if err := dst.Validate(); err != nil {
		return nil, err
	}
	if toSrc == nil {
		toSrc = Identity
	}
	if method == Nearest && src.grid.Equal(dst) {
		return src.Clone(), nil
	}
	sg := src.grid
	out := New(dst, src.BandNames()...)
	for row := 0; row < dst.Rows; row++ {
		for col := 0; col < dst.Cols; col++ {
			x, y := dst.Center(col, row)
			sx, sy, err := toSrc(x, y)
			if err != nil {
				return nil, fmt.Errorf("raster: resample pixel (%d,%d): %w", col, row, err)
			}
			fc, fr := sg.Pixel(sx, sy)
			idx := dst.Index(col, row)
			for i := range src.bands {
				v, ok := sample(src.bands[i], sg, fc, fr, method)
				if ok {
					out.bands[i].Data[idx] = v
					out.bands[i].Valid[idx] = true
				}
			}
		}
	}
	return out, nil
}

func sample(b Band, g Grid, fc, fr float64, method Method) (float64, bool) {
	nc, nr := int(math.Floor(fc)), int(math.Floor(fr))
	if method == Bilinear {
		// shift to pixel-centre coordinates
		cx, cy := fc-0.5, fr-0.5
		c0, r0 := int(math.Floor(cx)), int(math.Floor(cy))
		tx, ty := cx-float64(c0), cy-float64(r0)
		var vals [4]float64
		ok := true
		for k, off := range [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
			c, r := c0+off[0], r0+off[1]
			if !g.Contains(c, r) || !b.Valid[g.Index(c, r)] {
				ok = false
				break
			}
			vals[k] = b.Data[g.Index(c, r)]
		}
		if ok {
			top := vals[0]*(1-tx) + vals[1]*tx
			bottom := vals[2]*(1-tx) + vals[3]*tx
			return top*(1-ty) + bottom*ty, true
		}
	}
	if !g.Contains(nc, nr) {
		return 0, false
	}
	j := g.Index(nc, nr)
	return b.Data[j], b.Valid[j]
}

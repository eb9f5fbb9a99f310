package raster

import "fmt"

// binary applies fn pixel-wise to paired bands of a and b. A single-band operand is
// broadcast against every band of the other. Result bands take the names of a
// (or of b when a is the broadcast side). A pixel is valid only where both inputs are.
func binary(a, b *Raster, fn func(x, y float64) float64) (*Raster, error) {
	if !a.grid.Equal(b.grid) {
		return nil, fmt.Errorf("%w: %s vs %s", ErrGridMismatch, a.grid, b.grid)
	}
	na, nb := len(a.bands), len(b.bands)
	n := na
	switch {
	case na == nb:
	case na == 1:
		n = nb
	case nb == 1:
	default:
		return nil, fmt.Errorf("%w: %d vs %d", ErrBandMismatch, na, nb)
	}
	out := &Raster{grid: a.grid, bands: make([]Band, n)}
	for i := 0; i < n; i++ {
		ba := a.bands[min(i, na-1)]
		bb := b.bands[min(i, nb-1)]
		name := ba.Name
		if na == 1 && nb > 1 {
			name = bb.Name
		}
		ob := newBand(name, a.grid.Len())
		for j := range ob.Data {
			if !ba.Valid[j] || !bb.Valid[j] {
				continue
			}
			ob.Data[j] = fn(ba.Data[j], bb.Data[j])
			ob.Valid[j] = true
		}
		out.bands[i] = ob
	}
	return out, nil
}

// unary applies fn to every valid pixel of every band.
func unary(r *Raster, fn func(x float64) float64) *Raster {
	out := r.Clone()
	for i := range out.bands {
		b := &out.bands[i]
		for j, ok := range b.Valid {
			if ok {
				b.Data[j] = fn(b.Data[j])
			}
		}
	}
	return out
}

// Add returns a + b.
func Add(a, b *Raster) (*Raster, error) {
	return binary(a, b, func(x, y float64) float64 { return x + y })
}

// Subtract returns a - b.
func Subtract(a, b *Raster) (*Raster, error) {
	return binary(a, b, func(x, y float64) float64 { return x - y })
}

// DivideScalar returns r / k.
func DivideScalar(r *Raster, k float64) (*Raster, error) {
	if k == 0 {
		return nil, fmt.Errorf("raster: divide by zero")
	}
	return unary(r, func(x float64) float64 { return x / k }), nil
}

func boolean(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// Gte returns a 0/1 raster: 1 where r >= k. Pixels equal to k pass.
func Gte(r *Raster, k float64) *Raster {
	return unary(r, func(x float64) float64 { return boolean(x >= k) })
}

// Lt returns a 0/1 raster: 1 where r < k.
func Lt(r *Raster, k float64) *Raster {
	return unary(r, func(x float64) float64 { return boolean(x < k) })
}

// Not returns the logical negation of a 0/1 raster.
func Not(r *Raster) *Raster {
	return unary(r, func(x float64) float64 { return boolean(x == 0) })
}

// And returns the logical conjunction of two 0/1 rasters.
func And(a, b *Raster) (*Raster, error) {
	return binary(a, b, func(x, y float64) float64 { return boolean(x != 0 && y != 0) })
}

// UpdateMask returns r where a pixel stays valid only if it was valid and mask is valid and
// non-zero at that location. A single-band mask applies to every band.
func UpdateMask(r, mask *Raster) (*Raster, error) {
	if !r.grid.Equal(mask.grid) {
		return nil, fmt.Errorf("%w: %s vs %s", ErrGridMismatch, r.grid, mask.grid)
	}
	nm := len(mask.bands)
	if nm != 1 && nm != len(r.bands) {
		return nil, fmt.Errorf("%w: mask has %d bands, image %d", ErrBandMismatch, nm, len(r.bands))
	}
	out := r.Clone()
	for i := range out.bands {
		mb := mask.bands[min(i, nm-1)]
		ob := &out.bands[i]
		for j := range ob.Valid {
			if !mb.Valid[j] || mb.Data[j] == 0 {
				ob.Valid[j] = false
			}
		}
	}
	return out, nil
}

package raster

import (
	"fmt"
	"math"
	"strings"
)

// Units selects how kernel radius and sigma are interpreted.
type Units string

const (
	UnitsMeters Units = "meters"
	UnitsPixels Units = "pixels"
)

// ParseUnits accepts "meters" or "pixels" (case-insensitive).
func ParseUnits(s string) (Units, error) {
	switch u := Units(strings.ToLower(strings.TrimSpace(s))); u {
	case UnitsMeters, UnitsPixels:
		return u, nil
	default:
		return "", fmt.Errorf("raster: unknown kernel units %q", s)
	}
}

// KernelSpec describes a Gaussian smoothing kernel independently of any grid.
type KernelSpec struct {
	Radius    float64
	Sigma     float64
	Units     Units
	Normalize bool
}

// Validate checks the kernel parameters.
func (s KernelSpec) Validate() error {
	if s.Radius <= 0 {
		return fmt.Errorf("raster: kernel radius must be positive, got %g", s.Radius)
	}
	if s.Sigma <= 0 {
		return fmt.Errorf("raster: kernel sigma must be positive, got %g", s.Sigma)
	}
	if _, err := ParseUnits(string(s.Units)); err != nil {
		return err
	}
	return nil
}

// Kernel is a square convolution kernel of size (2*Radius+1)^2, row-major.
type Kernel struct {
	Radius     int
	Weights    []float64
	Normalized bool
}

// Size returns the kernel width in pixels.
func (k Kernel) Size() int {
	return 2*k.Radius + 1
}

// At returns the weight at offset (dx, dy) from the kernel centre.
func (k Kernel) At(dx, dy int) float64 {
	return k.Weights[(dy+k.Radius)*k.Size()+dx+k.Radius]
}

// Gaussian builds the kernel for a grid whose pixels are pixelSize CRS units wide.
func (s KernelSpec) Gaussian(pixelSize float64) (Kernel, error) {
	if err := s.Validate(); err != nil {
		return Kernel{}, err
	}
	radius, sigma := s.Radius, s.Sigma
	if s.Units == UnitsMeters {
		if pixelSize <= 0 {
			return Kernel{}, fmt.Errorf("raster: invalid pixel size %g", pixelSize)
		}
		radius /= pixelSize
		sigma /= pixelSize
	}
	r := int(math.Ceil(radius - 1e-9))
	if r < 0 {
		r = 0
	}
	k := Kernel{Radius: r, Weights: make([]float64, (2*r+1)*(2*r+1)), Normalized: s.Normalize}
	var sum float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			w := math.Exp(-float64(dx*dx+dy*dy) / (2 * sigma * sigma))
			k.Weights[(dy+r)*k.Size()+dx+r] = w
			sum += w
		}
	}
	if s.Normalize {
		for i := range k.Weights {
			k.Weights[i] /= sum
		}
	}
	return k, nil
}

// Convolve applies k to every band. No-data pixels stay no-data and do not contribute to
// their neighbours. With a normalized kernel the weights actually used are renormalised,
// so edges and holes do not bias the mean.
func Convolve(r *Raster, k Kernel) *Raster {
	g := r.grid
	out := &Raster{grid: g, bands: make([]Band, len(r.bands))}
	for i, b := range r.bands {
		ob := newBand(b.Name, g.Len())
		for row := 0; row < g.Rows; row++ {
			for col := 0; col < g.Cols; col++ {
				idx := g.Index(col, row)
				if !b.Valid[idx] {
					continue
				}
				var acc, wsum float64
				for dy := -k.Radius; dy <= k.Radius; dy++ {
					for dx := -k.Radius; dx <= k.Radius; dx++ {
						c, rr := col+dx, row+dy
						if !g.Contains(c, rr) {
							continue
						}
						j := g.Index(c, rr)
						if !b.Valid[j] {
							continue
						}
						w := k.At(dx, dy)
						acc += w * b.Data[j]
						wsum += w
					}
				}
				if k.Normalized && wsum > 0 {
					acc /= wsum
				}
				ob.Data[idx] = acc
				ob.Valid[idx] = true
			}
		}
		out.bands[i] = ob
	}
	return out
}

// Package cloudmask removes cloud, cirrus and cloud-shadow pixels from optical scenes using
// the bit flags of their quality band.
package cloudmask

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/example/go-sarslide/collection"
	"github.com/example/go-sarslide/raster"
)

var (
	// ErrMissingQABand is returned when a scene has no band named by Spec.QABand.
	ErrMissingQABand = errors.New("cloudmask: quality band missing")
	// ErrMalformedQA is returned when a quality value is negative or not an integer.
	ErrMalformedQA = errors.New("cloudmask: malformed quality value")
)

// Spec tells Mask which bits of which band flag bad pixels and how reflectances are scaled.
type Spec struct {
	QABand string
	// Bits lists flag positions; a pixel is kept only if every listed bit is zero.
	Bits []uint
	// Scale divides reflectance bands when greater than one.
	Scale float64
}

// Sentinel2 flags opaque clouds (bit 10) and cirrus (bit 11) in QA60 and rescales digital
// numbers to reflectance.
var Sentinel2 = Spec{QABand: "QA60", Bits: []uint{10, 11}, Scale: 10000}

// Landsat8 flags cloud shadow (bit 3) and cloud (bit 5) in pixel_qa.
var Landsat8 = Spec{QABand: "pixel_qa", Bits: []uint{3, 5}}

// Preset returns the spec registered under name ("sentinel2" or "landsat8").
func Preset(name string) (Spec, error) {
	switch strings.ToLower(name) {
	case "sentinel2", "s2":
		return Sentinel2, nil
	case "landsat8", "l8":
		return Landsat8, nil
	}
	return Spec{}, fmt.Errorf("cloudmask: unknown preset %q", name)
}

// Validate checks the spec itself.
func (s Spec) Validate() error {
	if s.QABand == "" {
		return fmt.Errorf("%w: no band name", ErrMissingQABand)
	}
	if len(s.Bits) == 0 {
		return errors.New("cloudmask: no flag bits")
	}
	for _, b := range s.Bits {
		if b > 52 {
			return fmt.Errorf("cloudmask: bit %d out of range", b)
		}
	}
	if s.Scale < 0 || math.IsNaN(s.Scale) {
		return fmt.Errorf("cloudmask: invalid scale %g", s.Scale)
	}
	return nil
}

func (s Spec) flags() uint64 {
	var m uint64
	for _, b := range s.Bits {
		m |= 1 << b
	}
	return m
}

// Apply masks one scene. Pixels with any flag bit set, or with no quality value, become
// no-data in every band, and bands other than the quality band are divided by Scale.
func (s Spec) Apply(r *raster.Raster) (*raster.Raster, error) {
	qa, err := r.Band(s.QABand)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrMissingQABand, s.QABand, strings.Join(r.BandNames(), ","))
	}
	flags := s.flags()
	grid := r.Grid()
	keep := make([]float64, grid.Len())
	for j, ok := range qa.Valid {
		if !ok {
			continue
		}
		v := qa.Data[j]
		if v < 0 || v != math.Trunc(v) || v > 1<<53 {
			col, row := j%grid.Cols, j/grid.Cols
			return nil, fmt.Errorf("%w: %g at pixel (%d,%d)", ErrMalformedQA, v, col, row)
		}
		if uint64(v)&flags == 0 {
			keep[j] = 1
		}
	}
	mask, err := raster.FromData(grid, "mask", keep)
	if err != nil {
		return nil, err
	}
	masked, err := raster.UpdateMask(r, mask)
	if err != nil {
		return nil, err
	}
	if s.Scale <= 1 {
		return masked, nil
	}
	bands := make([]raster.Band, masked.NumBands())
	for i := range bands {
		b := masked.BandAt(i)
		if b.Name != s.QABand {
			for j := range b.Data {
				b.Data[j] /= s.Scale
			}
		}
		bands[i] = b
	}
	return raster.FromBands(grid, bands...)
}

// Mask returns c with Apply mapped over every image. Errors surface when pixels are loaded.
func Mask(c *collection.Collection, s Spec) (*collection.Collection, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return c.Map(func(img collection.Image, r *raster.Raster) (*raster.Raster, error) {
		return s.Apply(r)
	}), nil
}

// CloudFilter keeps scenes whose cloud percentage is below max and masks them with s.
func CloudFilter(c *collection.Collection, s Spec, max float64) (*collection.Collection, error) {
	return Mask(c.FilterCloud(max), s)
}

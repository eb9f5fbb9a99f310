// Package raster provides an in-memory multi-band floating point raster with per-band
// no-data masks, together with the small set of pixel operators the landslide pipeline
// needs: band algebra, comparisons, masking, convolution, gradients, median reduction and
// resampling onto a target grid.
//
// Operators never modify their inputs; each returns a new Raster.
package raster

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrGridMismatch is returned when two rasters do not share the same grid.
	ErrGridMismatch = errors.New("raster: grid mismatch")
	// ErrBandMismatch is returned when band counts of two operands cannot be paired.
	ErrBandMismatch = errors.New("raster: band count mismatch")
	// ErrNoBand is returned when a requested band does not exist.
	ErrNoBand = errors.New("raster: band not found")
)

// Band holds the pixels of one named band in row-major order. Valid[i] is false for
// no-data pixels; Data[i] is meaningless in that case.
type Band struct {
	Name  string
	Data  []float64
	Valid []bool
}

func newBand(name string, n int) Band {
	return Band{Name: name, Data: make([]float64, n), Valid: make([]bool, n)}
}

func (b Band) clone() Band {
	out := Band{Name: b.Name, Data: make([]float64, len(b.Data)), Valid: make([]bool, len(b.Valid))}
	copy(out.Data, b.Data)
	copy(out.Valid, b.Valid)
	return out
}

// Raster is a grid of pixels over one or more named bands.
type Raster struct {
	grid  Grid
	bands []Band
}

// New returns a raster with the given bands where every pixel is no-data.
func New(grid Grid, names ...string) *Raster {
	r := &Raster{grid: grid, bands: make([]Band, len(names))}
	for i, name := range names {
		r.bands[i] = newBand(name, grid.Len())
	}
	return r
}

// FromData builds a single-band raster. NaN values become no-data.
func FromData(grid Grid, name string, data []float64) (*Raster, error) {
	if len(data) != grid.Len() {
		return nil, fmt.Errorf("raster: %d values for %d pixels", len(data), grid.Len())
	}
	r := New(grid, name)
	b := &r.bands[0]
	for i, v := range data {
		if math.IsNaN(v) {
			continue
		}
		b.Data[i] = v
		b.Valid[i] = true
	}
	return r, nil
}

// Constant builds a single-band raster where every pixel holds v.
func Constant(grid Grid, name string, v float64) *Raster {
	r := New(grid, name)
	b := &r.bands[0]
	for i := range b.Data {
		b.Data[i] = v
		b.Valid[i] = true
	}
	return r
}

// FromBands assembles a raster from prepared bands. Every band must cover the grid.
func FromBands(grid Grid, bands ...Band) (*Raster, error) {
	r := &Raster{grid: grid}
	for _, b := range bands {
		if len(b.Data) != grid.Len() || len(b.Valid) != grid.Len() {
			return nil, fmt.Errorf("raster: band %q does not cover grid %s", b.Name, grid)
		}
		r.bands = append(r.bands, b.clone())
	}
	return r, nil
}

// Grid returns the pixel lattice of the raster.
func (r *Raster) Grid() Grid {
	return r.grid
}

// NumBands returns the number of bands.
func (r *Raster) NumBands() int {
	return len(r.bands)
}

// BandNames lists band names in order.
func (r *Raster) BandNames() []string {
	names := make([]string, len(r.bands))
	for i, b := range r.bands {
		names[i] = b.Name
	}
	return names
}

// Band returns a copy of the named band.
func (r *Raster) Band(name string) (Band, error) {
	i := r.bandIndex(name)
	if i < 0 {
		return Band{}, fmt.Errorf("%w: %q (have %s)", ErrNoBand, name, strings.Join(r.BandNames(), ","))
	}
	return r.bands[i].clone(), nil
}

// BandAt returns a copy of band i.
func (r *Raster) BandAt(i int) Band {
	return r.bands[i].clone()
}

func (r *Raster) bandIndex(name string) int {
	for i, b := range r.bands {
		if b.Name == name {
			return i
		}
	}
	return -1
}

// At returns the value of pixel (col, row) in band i and whether it is valid.
func (r *Raster) At(i, col, row int) (float64, bool) {
	if !r.grid.Contains(col, row) {
		return 0, false
	}
	idx := r.grid.Index(col, row)
	b := r.bands[i]
	return b.Data[idx], b.Valid[idx]
}

// Select returns a raster restricted to the named bands, in the requested order.
func (r *Raster) Select(names ...string) (*Raster, error) {
	out := &Raster{grid: r.grid}
	for _, name := range names {
		i := r.bandIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q (have %s)", ErrNoBand, name, strings.Join(r.BandNames(), ","))
		}
		out.bands = append(out.bands, r.bands[i].clone())
	}
	return out, nil
}

// Rename returns a copy of the raster with new band names.
func (r *Raster) Rename(names ...string) (*Raster, error) {
	if len(names) != len(r.bands) {
		return nil, fmt.Errorf("%w: %d names for %d bands", ErrBandMismatch, len(names), len(r.bands))
	}
	out := r.Clone()
	for i := range out.bands {
		out.bands[i].Name = names[i]
	}
	return out, nil
}

// Clone returns a deep copy of the raster.
func (r *Raster) Clone() *Raster {
	out := &Raster{grid: r.grid, bands: make([]Band, len(r.bands))}
	for i, b := range r.bands {
		out.bands[i] = b.clone()
	}
	return out
}

// Cat concatenates the bands of rasters sharing a grid.
func Cat(rs ...*Raster) (*Raster, error) {
	if len(rs) == 0 {
		return nil, errors.New("raster: nothing to concatenate")
	}
	out := &Raster{grid: rs[0].grid}
	for _, r := range rs {
		if !r.grid.Equal(out.grid) {
			return nil, ErrGridMismatch
		}
		for _, b := range r.bands {
			out.bands = append(out.bands, b.clone())
		}
	}
	return out, nil
}

// ValidCount returns the number of valid pixels in band i.
func (r *Raster) ValidCount(i int) int {
	n := 0
	for _, ok := range r.bands[i].Valid {
		if ok {
			n++
		}
	}
	return n
}

// Stats summarises the valid pixels of one band.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// Stats computes summary statistics for band i.
func (r *Raster) Stats(i int) Stats {
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	b := r.bands[i]
	for j, ok := range b.Valid {
		if !ok {
			continue
		}
		v := b.Data[j]
		s.Count++
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	if s.Count == 0 {
		return Stats{}
	}
	s.Mean = sum / float64(s.Count)
	return s
}

// Clip returns a copy of the raster where pixels whose centre fails inside are no-data.
func Clip(r *Raster, inside func(x, y float64) bool) *Raster {
	out := r.Clone()
	g := r.grid
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			x, y := g.Center(col, row)
			if inside(x, y) {
				continue
			}
			idx := g.Index(col, row)
			for i := range out.bands {
				out.bands[i].Valid[idx] = false
			}
		}
	}
	return out
}

// Crop returns the pixels of r that fall on sub, an aligned window of the raster grid.
func Crop(r *Raster, sub Grid) (*Raster, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	c0, r0, err := r.grid.Offset(sub)
	if err != nil {
		return nil, err
	}
	out := New(sub, r.BandNames()...)
	for i, b := range r.bands {
		ob := &out.bands[i]
		for row := 0; row < sub.Rows; row++ {
			for col := 0; col < sub.Cols; col++ {
				src := r.grid.Index(c0+col, r0+row)
				dst := sub.Index(col, row)
				ob.Data[dst] = b.Data[src]
				ob.Valid[dst] = b.Valid[src]
			}
		}
	}
	return out, nil
}

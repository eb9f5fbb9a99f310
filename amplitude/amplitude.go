// Package amplitude builds the per-orbit, per-period median SAR backscatter composites that
// feed change detection.
package amplitude

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-sarslide/collection"
	"github.com/example/go-sarslide/geom"
	"github.com/example/go-sarslide/internal/log"
	"github.com/example/go-sarslide/raster"
)

// Period names one of the two event windows.
type Period string

const (
	Pre  Period = "pre"
	Post Period = "post"
)

// Key addresses one of the four composites.
type Key struct {
	Orbit  collection.OrbitPass
	Period Period
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Period, k.Orbit)
}

// Keys lists the four composites in a fixed order.
var Keys = []Key{
	{collection.Ascending, Pre},
	{collection.Descending, Pre},
	{collection.Ascending, Post},
	{collection.Descending, Post},
}

// Params controls filtering, edge masking and the optional smoothing of composites.
type Params struct {
	// Band is the backscatter band composited, e.g. "VH".
	Band string
	// Polarization must be listed by a scene for it to be used.
	Polarization string
	// Mode is the required instrument mode, e.g. "IW".
	Mode string
	// EdgeThreshold in dB: pixels below it are border noise. Equality is kept.
	EdgeThreshold float64
	// Smooth enables Gaussian post-smoothing of each composite with Smoothing.
	Smooth      bool
	Smoothing   raster.KernelSpec
	Concurrency int
}

// DefaultParams returns VH / IW compositing with a -30 dB edge threshold and no smoothing.
func DefaultParams() Params {
	return Params{
		Band:          "VH",
		Polarization:  "VH",
		Mode:          "IW",
		EdgeThreshold: -30,
		Smoothing:     raster.KernelSpec{Radius: 50, Sigma: 20, Units: raster.UnitsMeters, Normalize: true},
		Concurrency:   2,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.Band == "" || p.Polarization == "" || p.Mode == "" {
		return errors.New("amplitude: band, polarization and mode are required")
	}
	if math.IsNaN(p.EdgeThreshold) {
		return errors.New("amplitude: edge threshold is NaN")
	}
	if p.Smooth {
		if err := p.Smoothing.Validate(); err != nil {
			return fmt.Errorf("amplitude: smoothing: %w", err)
		}
	}
	return nil
}

// EdgeMask returns a transform removing pixels below threshold from every band.
func EdgeMask(threshold float64) collection.Transform {
	return func(img collection.Image, r *raster.Raster) (*raster.Raster, error) {
		return raster.UpdateMask(r, raster.Not(raster.Lt(r, threshold)))
	}
}

// Prepare filters c to the polarization and mode of p, selects the band and masks edge noise.
func Prepare(c *collection.Collection, p Params) *collection.Collection {
	band := p.Band
	return c.FilterPolarization(p.Polarization).
		FilterMode(p.Mode).
		Map(func(img collection.Image, r *raster.Raster) (*raster.Raster, error) {
			return r.Select(band)
		}).
		Map(EdgeMask(p.EdgeThreshold))
}

// Composites holds the four medians with their diagnostics.
type Composites struct {
	Rasters map[Key]*raster.Raster
	Counts  map[Key]int
	// Scenes lists the sorted IDs of the scenes behind each composite.
	Scenes map[Key][]string
}

// Get returns the composite for (orbit, period).
func (c Composites) Get(orbit collection.OrbitPass, period Period) *raster.Raster {
	return c.Rasters[Key{orbit, period}]
}

// Empty lists the composites built from zero scenes.
func (c Composites) Empty() []Key {
	var out []Key
	for _, k := range Keys {
		if c.Counts[k] == 0 {
			out = append(out, k)
		}
	}
	return out
}

// Composite builds the ascending and descending medians of the pre and post windows on grid.
// Ascending and descending scenes are never mixed. A composite with no scenes is no-data
// everywhere and reported through Counts and a warning; it is not an error.
func Composite(ctx context.Context, c *collection.Collection, aoi geom.AOI, pre, post collection.TimeWindow,
	grid raster.Grid, resample collection.Resampler, p Params) (Composites, error) {
	if err := p.Validate(); err != nil {
		return Composites{}, err
	}
	if err := collection.CheckSequence(pre, post); err != nil {
		return Composites{}, err
	}
	var kernel raster.Kernel
	if p.Smooth {
		k, err := p.Smoothing.Gaussian(grid.PixelWidth())
		if err != nil {
			return Composites{}, fmt.Errorf("amplitude: smoothing: %w", err)
		}
		kernel = k
	}

	prepared := Prepare(c, p).FilterBounds(aoi)
	windows := map[Period]collection.TimeWindow{Pre: pre, Post: post}
	subsets := make(map[Key]*collection.Collection, len(Keys))
	out := Composites{
		Rasters: make(map[Key]*raster.Raster, len(Keys)),
		Counts:  make(map[Key]int, len(Keys)),
		Scenes:  make(map[Key][]string, len(Keys)),
	}
	for _, k := range Keys {
		sub := prepared.FilterOrbit(k.Orbit).FilterDate(windows[k.Period])
		subsets[k] = sub
		out.Counts[k] = sub.Len()
		out.Scenes[k] = sub.IDs()
	}

	logger := log.Logger(ctx).Sugar()
	results := make([]*raster.Raster, len(Keys))
	g, gctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for i, k := range Keys {
		g.Go(func() error {
			start := time.Now()
			sub := subsets[k]
			med, err := sub.Median(gctx, grid, []string{p.Band}, resample)
			if err != nil {
				return fmt.Errorf("amplitude: %s composite: %w", k, err)
			}
			if p.Smooth {
				med = raster.Convolve(med, kernel)
			}
			if sub.Len() == 0 {
				logger.Warnw("no scenes for composite; it is no-data everywhere", "composite", k.String())
			} else {
				logger.Infow("composite built", "composite", k.String(), "scenes", sub.Len(),
					"valid_pixels", med.ValidCount(0), "elapsed", time.Since(start))
			}
			results[i] = med
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Composites{}, err
	}
	for i, k := range Keys {
		out.Rasters[k] = results[i]
	}
	return out, nil
}

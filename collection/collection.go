// Package collection models a filterable, ordered set of scenes whose pixels are only read
// when a reduction (median, mosaic) or an explicit Load asks for them. Filters and Map return
// new collections and never touch pixel data.
package collection

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/example/go-sarslide/geom"
	"github.com/example/go-sarslide/raster"
)

// OrbitPass is the direction of the satellite track at acquisition time.
type OrbitPass string

const (
	Ascending  OrbitPass = "ASCENDING"
	Descending OrbitPass = "DESCENDING"
)

// Image describes one scene of a collection. Pixels are obtained through the Loader of the
// collection the image belongs to. Footprint is the lon/lat bounding box of the scene and
// Outline, when the provider reports one, its lon/lat footprint polygon.
type Image struct {
	ID            string
	Dataset       string
	Path          string
	Acquired      time.Time
	Orbit         OrbitPass
	Polarizations []string
	Mode          string
	CloudPercent  float64
	Footprint     orb.Bound
	Outline       orb.MultiPolygon
	Properties    map[string]string
}

// HasPolarization reports whether p is among the image polarizations.
func (img Image) HasPolarization(p string) bool {
	return slices.Contains(img.Polarizations, p)
}

// Loader reads the pixels of an image.
type Loader interface {
	Load(ctx context.Context, img Image) (*raster.Raster, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, img Image) (*raster.Raster, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, img Image) (*raster.Raster, error) {
	return f(ctx, img)
}

// Transform rewrites the pixels of one image. Transforms registered with Map run in order
// after the loader.
type Transform func(img Image, r *raster.Raster) (*raster.Raster, error)

// Resampler moves a loaded image onto the grid of a reduction.
type Resampler func(r *raster.Raster, grid raster.Grid) (*raster.Raster, error)

// Collection is an immutable ordered set of images sharing a loader.
type Collection struct {
	images     []Image
	loader     Loader
	transforms []Transform
}

// New returns a collection of images ordered by acquisition time, then ID.
func New(loader Loader, images ...Image) *Collection {
	imgs := slices.Clone(images)
	sort.SliceStable(imgs, func(i, j int) bool {
		if !imgs[i].Acquired.Equal(imgs[j].Acquired) {
			return imgs[i].Acquired.Before(imgs[j].Acquired)
		}
		return imgs[i].ID < imgs[j].ID
	})
	return &Collection{images: imgs, loader: loader}
}

func (c *Collection) derive(images []Image) *Collection {
	return &Collection{images: images, loader: c.loader, transforms: c.transforms}
}

// Len returns the number of images.
func (c *Collection) Len() int {
	return len(c.images)
}

// IDs returns the sorted image IDs.
func (c *Collection) IDs() []string {
	ids := make([]string, len(c.images))
	for i, img := range c.images {
		ids[i] = img.ID
	}
	sort.Strings(ids)
	return ids
}

// Filter keeps the images for which keep returns true.
func (c *Collection) Filter(keep func(Image) bool) *Collection {
	out := make([]Image, 0, len(c.images))
	for _, img := range c.images {
		if keep(img) {
			out = append(out, img)
		}
	}
	return c.derive(out)
}

// FilterDate keeps images acquired inside w.
func (c *Collection) FilterDate(w TimeWindow) *Collection {
	return c.Filter(func(img Image) bool { return w.Contains(img.Acquired) })
}

// FilterBounds keeps images whose footprint intersects the AOI polygon. The outline is tested
// when present, the footprint rectangle otherwise. Images with neither never match.
func (c *Collection) FilterBounds(aoi geom.AOI) *Collection {
	return c.Filter(func(img Image) bool {
		if len(img.Outline) > 0 {
			for _, p := range img.Outline {
				if len(p) > 0 && aoi.Intersects(p[0]) {
					return true
				}
			}
			return false
		}
		if img.Footprint.IsZero() {
			return false
		}
		return aoi.IntersectsBound(img.Footprint)
	})
}

// FilterPolarization keeps images that carry polarization p.
func (c *Collection) FilterPolarization(p string) *Collection {
	return c.Filter(func(img Image) bool { return img.HasPolarization(p) })
}

// FilterMode keeps images acquired in instrument mode m.
func (c *Collection) FilterMode(m string) *Collection {
	return c.Filter(func(img Image) bool { return img.Mode == m })
}

// FilterOrbit keeps images acquired on pass o.
func (c *Collection) FilterOrbit(o OrbitPass) *Collection {
	return c.Filter(func(img Image) bool { return img.Orbit == o })
}

// FilterCloud keeps images whose cloud percentage is strictly below max.
func (c *Collection) FilterCloud(max float64) *Collection {
	return c.Filter(func(img Image) bool { return img.CloudPercent < max })
}

// Map returns a collection whose images are passed through t after loading.
func (c *Collection) Map(t Transform) *Collection {
	out := c.derive(c.images)
	out.transforms = append(slices.Clone(c.transforms), t)
	return out
}

// Load reads image i and applies the mapped transforms.
func (c *Collection) Load(ctx context.Context, i int) (*raster.Raster, error) {
	if c.loader == nil {
		return nil, fmt.Errorf("collection: no loader")
	}
	img := c.images[i]
	r, err := c.loader.Load(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("collection: load %s: %w", img.ID, err)
	}
	for _, t := range c.transforms {
		if r, err = t(img, r); err != nil {
			return nil, fmt.Errorf("collection: transform %s: %w", img.ID, err)
		}
	}
	return r, nil
}

// Each loads every image in order and calls fn with it.
func (c *Collection) Each(ctx context.Context, fn func(Image, *raster.Raster) error) error {
	for i, img := range c.images {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := c.Load(ctx, i)
		if err != nil {
			return err
		}
		if err := fn(img, r); err != nil {
			return err
		}
	}
	return nil
}

// stack loads every image, selects bands and moves it onto grid.
func (c *Collection) stack(ctx context.Context, grid raster.Grid, bands []string, resample Resampler) ([]*raster.Raster, error) {
	rs := make([]*raster.Raster, 0, len(c.images))
	err := c.Each(ctx, func(img Image, r *raster.Raster) error {
		sel, err := r.Select(bands...)
		if err != nil {
			return fmt.Errorf("collection: %s: %w", img.ID, err)
		}
		if !sel.Grid().Equal(grid) {
			if resample == nil {
				return fmt.Errorf("collection: %s: %w: %s vs %s", img.ID, raster.ErrGridMismatch, sel.Grid(), grid)
			}
			if sel, err = resample(sel, grid); err != nil {
				return fmt.Errorf("collection: resample %s: %w", img.ID, err)
			}
		}
		rs = append(rs, sel)
		return nil
	})
	return rs, err
}

// Median reduces the collection to the per-pixel median of bands on grid. An empty collection
// yields a raster that is no-data everywhere.
func (c *Collection) Median(ctx context.Context, grid raster.Grid, bands []string, resample Resampler) (*raster.Raster, error) {
	rs, err := c.stack(ctx, grid, bands, resample)
	if err != nil {
		return nil, err
	}
	return raster.Median(grid, bands, rs...)
}

// Mosaic composites the collection in acquisition order, later images on top.
func (c *Collection) Mosaic(ctx context.Context, grid raster.Grid, bands []string, resample Resampler) (*raster.Raster, error) {
	rs, err := c.stack(ctx, grid, bands, resample)
	if err != nil {
		return nil, err
	}
	return raster.Mosaic(grid, bands, rs...)
}

// Reproject returns a Resampler that transforms between the supported CRSs with geom.Transform
// and samples with method.
func Reproject(method raster.Method) Resampler {
	return func(r *raster.Raster, grid raster.Grid) (*raster.Raster, error) {
		toSrc, err := geom.Transform(grid.EPSG, r.Grid().EPSG)
		if err != nil {
			return nil, err
		}
		return raster.Resample(r, grid, toSrc, method)
	}
}

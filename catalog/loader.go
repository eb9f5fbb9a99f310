package catalog

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/example/go-sarslide/collection"
	"github.com/example/go-sarslide/geom"
	"github.com/example/go-sarslide/geotiff"
	"github.com/example/go-sarslide/raster"
)

// fileLoader reads catalog scenes from their GeoTIFF files.
type fileLoader struct {
	entries map[string]Entry
}

func (l *fileLoader) Load(ctx context.Context, img collection.Image) (*raster.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := l.entries[img.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, img.ID)
	}
	r, err := geotiff.Read(e.Path, e.Bands...)
	if err != nil {
		return nil, err
	}
	if e.Units == UnitsLinear {
		r = ToDecibels(r)
	}
	return r, nil
}

// ToDecibels converts linear backscatter to 10*log10(v). Non-positive values become no-data.
func ToDecibels(r *raster.Raster) *raster.Raster {
	bands := make([]raster.Band, r.NumBands())
	for i := range bands {
		b := r.BandAt(i)
		for j, ok := range b.Valid {
			if !ok {
				continue
			}
			if b.Data[j] <= 0 {
				b.Valid[j] = false
				continue
			}
			b.Data[j] = 10 * math.Log10(b.Data[j])
		}
		bands[i] = b
	}
	res, _ := raster.FromBands(r.Grid(), bands...)
	return res
}

// Footprint returns the lon/lat bounding box of a grid.
func Footprint(g raster.Grid) (orb.Bound, error) {
	toLonLat, err := geom.Transform(g.EPSG, raster.EPSGWGS84)
	if err != nil {
		return orb.Bound{}, err
	}
	minX, minY, maxX, maxY := g.Bounds()
	var b orb.Bound
	for k, c := range [][2]float64{{minX, minY}, {minX, maxY}, {maxX, minY}, {maxX, maxY}} {
		lon, lat, err := toLonLat(c[0], c[1])
		if err != nil {
			return orb.Bound{}, err
		}
		p := orb.Point{lon, lat}
		if k == 0 {
			b = orb.Bound{Min: p, Max: p}
			continue
		}
		b = b.Extend(p)
	}
	return b, nil
}

// IndexFile reads the GeoTIFF at e.Path to fill in the footprint and band names, then stores
// the entry.
func (c *Catalog) IndexFile(ctx context.Context, e Entry) (Entry, error) {
	r, err := geotiff.Read(e.Path, e.Bands...)
	if err != nil {
		return Entry{}, err
	}
	fp, err := Footprint(r.Grid())
	if err != nil {
		return Entry{}, fmt.Errorf("catalog: footprint of %s: %w", e.Path, err)
	}
	e.Footprint = fp
	if len(e.Bands) == 0 {
		e.Bands = r.BandNames()
	}
	if err := c.Put(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

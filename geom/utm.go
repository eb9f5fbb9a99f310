package geom

import (
	"fmt"
	"math"

	UTM "github.com/im7mortal/UTM"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/example/go-sarslide/raster"
)

// Projection is a UTM zone used as the metric CRS of the output grid.
type Projection struct {
	Zone     int
	Northern bool
}

// ProjectionFor returns the UTM zone containing (lon, lat).
func ProjectionFor(lon, lat float64) (Projection, error) {
	_, _, zone, _, err := UTM.FromLatLon(lat, lon, lat >= 0)
	if err != nil {
		return Projection{}, fmt.Errorf("geom: utm zone for (%g, %g): %w", lon, lat, err)
	}
	return Projection{Zone: zone, Northern: lat >= 0}, nil
}

// ProjectionFromEPSG decodes a WGS84 / UTM EPSG code (326xx north, 327xx south).
func ProjectionFromEPSG(code int) (Projection, bool) {
	switch {
	case code > 32600 && code <= 32660:
		return Projection{Zone: code - 32600, Northern: true}, true
	case code > 32700 && code <= 32760:
		return Projection{Zone: code - 32700, Northern: false}, true
	}
	return Projection{}, false
}

// EPSG returns the EPSG code of the zone.
func (p Projection) EPSG() int {
	if p.Northern {
		return 32600 + p.Zone
	}
	return 32700 + p.Zone
}

// Forward projects lon/lat into this zone, even when the point lies in a neighbouring zone.
func (p Projection) Forward(lon, lat float64) (x, y float64, err error) {
	x, y, zone, _, err := UTM.FromLatLon(lat, lon, p.Northern)
	if err != nil {
		return 0, 0, fmt.Errorf("geom: project (%g, %g): %w", lon, lat, err)
	}
	if zone == p.Zone {
		return x, y, nil
	}
	// The library always picks the natural zone, so solve Inverse(x, y) = (lon, lat) in
	// zone p.Zone with Newton steps, starting from a spherical estimate of the easting.
	cm := float64(p.Zone-1)*6 - 180 + 3
	x = 500000 + (lon-cm)*111320*math.Cos(lat*math.Pi/180)
	const h = 1.0
	for i := 0; i < maxNewtonSteps; i++ {
		lo, la, err := p.Inverse(x, y)
		if err != nil {
			return 0, 0, fmt.Errorf("geom: project (%g, %g) into zone %d: %w", lon, lat, p.Zone, err)
		}
		dlon, dlat := lo-lon, la-lat
		if math.Abs(dlon) < 1e-11 && math.Abs(dlat) < 1e-11 {
			return x, y, nil
		}
		loX, laX, err := p.Inverse(x+h, y)
		if err != nil {
			return 0, 0, fmt.Errorf("geom: project (%g, %g) into zone %d: %w", lon, lat, p.Zone, err)
		}
		loY, laY, err := p.Inverse(x, y+h)
		if err != nil {
			return 0, 0, fmt.Errorf("geom: project (%g, %g) into zone %d: %w", lon, lat, p.Zone, err)
		}
		a, b := (loX-lo)/h, (loY-lo)/h
		c, d := (laX-la)/h, (laY-la)/h
		det := a*d - b*c
		if det == 0 {
			break
		}
		x -= (d*dlon - b*dlat) / det
		y -= (a*dlat - c*dlon) / det
	}
	return 0, 0, fmt.Errorf("geom: (%g, %g) cannot be expressed in zone %d", lon, lat, p.Zone)
}

const maxNewtonSteps = 25

// Inverse converts zone coordinates back to lon/lat.
func (p Projection) Inverse(x, y float64) (lon, lat float64, err error) {
	lat, lon, err = UTM.ToLatLon(x, y, p.Zone, "", p.Northern)
	if err != nil {
		return 0, 0, fmt.Errorf("geom: unproject (%g, %g): %w", x, y, err)
	}
	return lon, lat, nil
}

// Transform returns a function mapping coordinates in CRS from into CRS to. Supported
// CRSs are EPSG:4326 and the WGS84 UTM zones.
func Transform(from, to int) (raster.CoordFunc, error) {
	if from == to {
		return raster.Identity, nil
	}
	toLonLat, err := toGeographic(from)
	if err != nil {
		return nil, err
	}
	if to == raster.EPSGWGS84 {
		return toLonLat, nil
	}
	dst, ok := ProjectionFromEPSG(to)
	if !ok {
		return nil, fmt.Errorf("geom: unsupported target CRS EPSG:%d", to)
	}
	return func(x, y float64) (float64, float64, error) {
		lon, lat, err := toLonLat(x, y)
		if err != nil {
			return 0, 0, err
		}
		return dst.Forward(lon, lat)
	}, nil
}

func toGeographic(from int) (raster.CoordFunc, error) {
	if from == raster.EPSGWGS84 {
		return raster.Identity, nil
	}
	src, ok := ProjectionFromEPSG(from)
	if !ok {
		return nil, fmt.Errorf("geom: unsupported source CRS EPSG:%d", from)
	}
	return src.Inverse, nil
}

// TargetGrid lays a north-up grid of scale-metre pixels over the AOI in the UTM zone of its
// centroid. The origin is snapped to whole multiples of scale.
func TargetGrid(aoi AOI, scale float64) (raster.Grid, Projection, error) {
	if aoi.IsZero() {
		return raster.Grid{}, Projection{}, ErrTooFewVertices
	}
	if scale <= 0 {
		return raster.Grid{}, Projection{}, fmt.Errorf("geom: scale must be positive, got %g", scale)
	}
	c := aoi.Bound().Center()
	proj, err := ProjectionFor(c[0], c[1])
	if err != nil {
		return raster.Grid{}, Projection{}, err
	}
	region, err := aoi.Project(proj)
	if err != nil {
		return raster.Grid{}, Projection{}, err
	}
	b := region.polygon.Bound()
	minX := math.Floor(b.Min[0]/scale) * scale
	maxY := math.Ceil(b.Max[1]/scale) * scale
	cols := int(math.Ceil((b.Max[0] - minX) / scale))
	rows := int(math.Ceil((maxY - b.Min[1]) / scale))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return raster.NewGrid(cols, rows, minX, maxY, scale, proj.EPSG()), proj, nil
}

// Region is the AOI expressed in projected coordinates.
type Region struct {
	polygon orb.Polygon
}

// Project returns the AOI with every vertex projected into p.
func (a AOI) Project(p Projection) (Region, error) {
	ring := make(orb.Ring, len(a.ring))
	for i, pt := range a.ring {
		x, y, err := p.Forward(pt[0], pt[1])
		if err != nil {
			return Region{}, err
		}
		ring[i] = orb.Point{x, y}
	}
	return Region{polygon: orb.Polygon{ring}}, nil
}

// Contains reports whether projected point (x, y) is inside the region.
func (r Region) Contains(x, y float64) bool {
	return planar.PolygonContains(r.polygon, orb.Point{x, y})
}

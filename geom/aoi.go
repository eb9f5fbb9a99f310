// Package geom holds the area of interest polygon and the projections used to lay a
// metric output grid over it.
package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var (
	// ErrTooFewVertices is returned for rings with fewer than three distinct vertices.
	ErrTooFewVertices = errors.New("geom: polygon needs at least three distinct vertices")
	// ErrOpenRing is returned when a ring that must be closed is not.
	ErrOpenRing = errors.New("geom: ring is not closed")
	// ErrSelfIntersecting is returned when two non-adjacent edges of the ring cross.
	ErrSelfIntersecting = errors.New("geom: ring is self-intersecting")
	// ErrCoordinate is returned for non-finite or out of range coordinates.
	ErrCoordinate = errors.New("geom: invalid coordinate")
)

// AOI is an immutable area of interest: a single closed, simple ring of lon/lat vertices.
type AOI struct {
	ring orb.Ring
}

// NewAOI builds an AOI from (lon, lat) pairs. An open ring is closed by repeating the first
// vertex, matching how hand-written polygon literals are usually given.
func NewAOI(coords [][2]float64) (AOI, error) {
	ring := make(orb.Ring, 0, len(coords)+1)
	for _, c := range coords {
		ring = append(ring, orb.Point{c[0], c[1]})
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return fromRing(ring)
}

// FromPolygon builds an AOI from the outer ring of p. Holes are not supported.
func FromPolygon(p orb.Polygon) (AOI, error) {
	if len(p) == 0 {
		return AOI{}, ErrTooFewVertices
	}
	if len(p) > 1 {
		return AOI{}, errors.New("geom: polygons with holes are not supported")
	}
	return fromRing(p[0])
}

// ParseGeoJSON reads an AOI from a GeoJSON Polygon geometry, a Feature, or the first
// polygon feature of a FeatureCollection.
func ParseGeoJSON(data []byte) (AOI, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		for _, f := range fc.Features {
			if p, ok := f.Geometry.(orb.Polygon); ok {
				return FromPolygon(p)
			}
		}
		return AOI{}, errors.New("geom: feature collection holds no polygon")
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		p, ok := f.Geometry.(orb.Polygon)
		if !ok {
			return AOI{}, fmt.Errorf("geom: feature geometry is %s, want Polygon", f.Geometry.GeoJSONType())
		}
		return FromPolygon(p)
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return AOI{}, fmt.Errorf("geom: decode geojson: %w", err)
	}
	p, ok := g.Geometry().(orb.Polygon)
	if !ok {
		return AOI{}, fmt.Errorf("geom: geometry is %s, want Polygon", g.Type)
	}
	return FromPolygon(p)
}

func fromRing(ring orb.Ring) (AOI, error) {
	if len(ring) < 4 {
		return AOI{}, ErrTooFewVertices
	}
	if !ring.Closed() {
		return AOI{}, ErrOpenRing
	}
	for _, p := range ring {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return AOI{}, fmt.Errorf("%w: %v", ErrCoordinate, p)
		}
		if p[0] < -180 || p[0] > 180 || p[1] < -90 || p[1] > 90 {
			return AOI{}, fmt.Errorf("%w: %v outside lon/lat range", ErrCoordinate, p)
		}
	}
	distinct := map[orb.Point]struct{}{}
	for _, p := range ring[:len(ring)-1] {
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return AOI{}, ErrTooFewVertices
	}
	if selfIntersects(ring) {
		return AOI{}, ErrSelfIntersecting
	}
	cp := make(orb.Ring, len(ring))
	copy(cp, ring)
	return AOI{ring: cp}, nil
}

// Ring returns a copy of the closed ring.
func (a AOI) Ring() orb.Ring {
	cp := make(orb.Ring, len(a.ring))
	copy(cp, a.ring)
	return cp
}

// Polygon returns the AOI as an orb polygon.
func (a AOI) Polygon() orb.Polygon {
	return orb.Polygon{a.Ring()}
}

// Bound returns the lon/lat bounding box.
func (a AOI) Bound() orb.Bound {
	return a.ring.Bound()
}

// WKT returns the polygon in well-known text, as accepted by the ASF intersectsWith filter.
func (a AOI) WKT() string {
	return wkt.MarshalString(a.Polygon())
}

// Contains reports whether the point lies inside the polygon.
func (a AOI) Contains(lon, lat float64) bool {
	return planar.RingContains(a.ring, orb.Point{lon, lat})
}

// Intersects reports whether the polygon ring overlaps the AOI polygon: an edge of one
// crosses or touches an edge of the other, or one lies inside the other.
func (a AOI) Intersects(ring orb.Ring) bool {
	if len(a.ring) == 0 || len(ring) == 0 {
		return false
	}
	if !a.Bound().Intersects(ring.Bound()) {
		return false
	}
	for i := 0; i+1 < len(a.ring); i++ {
		for j := 0; j+1 < len(ring); j++ {
			if segmentsIntersect(a.ring[i], a.ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	// no crossing edges: either one ring holds the other or they are disjoint
	return planar.RingContains(a.ring, ring[0]) || planar.RingContains(ring, a.ring[0])
}

// IntersectsBound reports whether the rectangle b overlaps the AOI polygon.
func (a AOI) IntersectsBound(b orb.Bound) bool {
	return a.Intersects(b.ToRing())
}

// IsZero reports whether the AOI was never initialised.
func (a AOI) IsZero() bool {
	return len(a.ring) == 0
}

func selfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1 // edges
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// adjacent edges share a vertex; the first and last edge are adjacent too
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

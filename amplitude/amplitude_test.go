package amplitude

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/example/go-sarslide/collection"
	"github.com/example/go-sarslide/geom"
	"github.com/example/go-sarslide/raster"
)

var grid = raster.NewGrid(3, 1, 500000, 4000000, 10, 32653)

var footprint = orb.Bound{Min: orb.Point{132.6, 34.2}, Max: orb.Point{132.9, 34.4}}

func windows(t *testing.T) (collection.TimeWindow, collection.TimeWindow) {
	t.Helper()
	pre, err := collection.ParseWindow("2015-01-01T23:59", "2018-06-29T23:59")
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	post, err := collection.ParseWindow("2018-07-09T23:59", "2020-05-29T23:59")
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	return pre, post
}

func aoi(t *testing.T) geom.AOI {
	t.Helper()
	a, err := geom.NewAOI([][2]float64{{132.64, 34.38}, {132.64, 34.23}, {132.83, 34.23}, {132.83, 34.38}})
	if err != nil {
		t.Fatalf("NewAOI: %v", err)
	}
	return a
}

type fakeScene struct {
	img    collection.Image
	values []float64
}

func build(scenes ...fakeScene) *collection.Collection {
	byID := map[string][]float64{}
	images := make([]collection.Image, len(scenes))
	for i, s := range scenes {
		byID[s.img.ID] = s.values
		images[i] = s.img
	}
	loader := collection.LoaderFunc(func(ctx context.Context, img collection.Image) (*raster.Raster, error) {
		vh, _ := raster.FromData(grid, "VH", byID[img.ID])
		vv := raster.Constant(grid, "VV", -8)
		return raster.Cat(vv, vh)
	})
	return collection.New(loader, images...)
}

func s1(id string, when time.Time, orbit collection.OrbitPass, values ...float64) fakeScene {
	return fakeScene{
		img: collection.Image{
			ID: id, Acquired: when, Orbit: orbit, Mode: "IW",
			Polarizations: []string{"VV", "VH"}, Footprint: footprint,
		},
		values: values,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEdgeMaskKeepsThreshold(t *testing.T) {
	r, _ := raster.FromData(grid, "VH", []float64{-30.5, -30, -12})
	out, err := EdgeMask(-30)(collection.Image{}, r)
	if err != nil {
		t.Fatalf("EdgeMask: %v", err)
	}
	b := out.BandAt(0)
	if b.Valid[0] || !b.Valid[1] || !b.Valid[2] {
		t.Fatalf("unexpected validity %v", b.Valid)
	}
}

func TestCompositeSeparatesOrbits(t *testing.T) {
	pre, post := windows(t)
	c := build(
		s1("asc-pre-1", date(2018, 1, 1), collection.Ascending, -10, -40, -12),
		s1("asc-pre-2", date(2018, 2, 1), collection.Ascending, -14, -20, -12),
		s1("asc-pre-3", date(2018, 3, 1), collection.Ascending, -12, -22, -12),
		s1("desc-pre", date(2018, 1, 5), collection.Descending, -20, -20, -20),
		s1("asc-post", date(2019, 1, 1), collection.Ascending, -15, -15, -15),
		s1("desc-post", date(2019, 1, 5), collection.Descending, -25, -25, -25),
		// filtered out: wrong mode, missing polarization, in the gap between windows
		fakeScene{img: collection.Image{ID: "ew", Acquired: date(2018, 1, 1), Orbit: collection.Ascending,
			Mode: "EW", Polarizations: []string{"VH"}, Footprint: footprint}, values: []float64{0, 0, 0}},
		fakeScene{img: collection.Image{ID: "vv-only", Acquired: date(2018, 1, 1), Orbit: collection.Ascending,
			Mode: "IW", Polarizations: []string{"VV"}, Footprint: footprint}, values: []float64{0, 0, 0}},
		s1("gap", date(2018, 7, 1), collection.Ascending, 0, 0, 0),
	)
	comp, err := Composite(context.Background(), c, aoi(t), pre, post, grid, nil, DefaultParams())
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	want := map[Key]int{
		{collection.Ascending, Pre}: 3, {collection.Descending, Pre}: 1,
		{collection.Ascending, Post}: 1, {collection.Descending, Post}: 1,
	}
	for k, n := range want {
		if comp.Counts[k] != n {
			t.Fatalf("%s: count %d want %d", k, comp.Counts[k], n)
		}
	}
	ascPre := comp.Get(collection.Ascending, Pre)
	if names := ascPre.BandNames(); len(names) != 1 || names[0] != "VH" {
		t.Fatalf("expected single VH band, got %v", names)
	}
	b := ascPre.BandAt(0)
	// pixel 1: -40 is edge noise, median of (-20, -22) is -21
	if b.Data[0] != -12 || b.Data[1] != -21 || b.Data[2] != -12 {
		t.Fatalf("unexpected ascending pre median %v", b.Data)
	}
	if v, _ := comp.Get(collection.Descending, Pre).At(0, 0, 0); v != -20 {
		t.Fatalf("descending composite mixed with ascending scenes: %v", v)
	}
	if ids := comp.Scenes[Key{collection.Ascending, Pre}]; len(ids) != 3 || ids[0] != "asc-pre-1" {
		t.Fatalf("unexpected scene ids %v", ids)
	}
	if len(comp.Empty()) != 0 {
		t.Fatalf("no composite should be empty: %v", comp.Empty())
	}
}

func TestEmptyPreCollectionIsNoData(t *testing.T) {
	pre, post := windows(t)
	c := build(
		s1("asc-post", date(2019, 1, 1), collection.Ascending, -15, -15, -15),
		s1("desc-post", date(2019, 1, 5), collection.Descending, -25, -25, -25),
	)
	comp, err := Composite(context.Background(), c, aoi(t), pre, post, grid, nil, DefaultParams())
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	for _, k := range []Key{{collection.Ascending, Pre}, {collection.Descending, Pre}} {
		if comp.Counts[k] != 0 {
			t.Fatalf("%s: expected count 0", k)
		}
		if comp.Rasters[k].ValidCount(0) != 0 {
			t.Fatalf("%s: expected all no-data", k)
		}
	}
	if len(comp.Empty()) != 2 {
		t.Fatalf("expected two empty composites, got %v", comp.Empty())
	}
}

func TestSmoothingIsExplicit(t *testing.T) {
	pre, post := windows(t)
	c := build(
		s1("asc-pre", date(2018, 1, 1), collection.Ascending, -10, -20, -10),
	)
	p := DefaultParams()
	plain, err := Composite(context.Background(), c, aoi(t), pre, post, grid, nil, p)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if v, _ := plain.Get(collection.Ascending, Pre).At(0, 1, 0); v != -20 {
		t.Fatalf("default composite must be unsmoothed, got %v", v)
	}
	p.Smooth = true
	p.Smoothing = raster.KernelSpec{Radius: 1, Sigma: 1, Units: raster.UnitsPixels, Normalize: true}
	smooth, err := Composite(context.Background(), c, aoi(t), pre, post, grid, nil, p)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	v, _ := smooth.Get(collection.Ascending, Pre).At(0, 1, 0)
	if v <= -20 || v >= -10 || math.IsNaN(v) {
		t.Fatalf("expected smoothed value between neighbours, got %v", v)
	}
}

func TestCompositeRejectsOverlappingWindows(t *testing.T) {
	pre, post := windows(t)
	if _, err := Composite(context.Background(), build(), aoi(t), post, pre, grid, nil, DefaultParams()); err == nil {
		t.Fatalf("expected window error")
	}
}

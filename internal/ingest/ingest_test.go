package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/example/go-sarslide/asf"
	"github.com/example/go-sarslide/asf/model"
	"github.com/example/go-sarslide/catalog"
	"github.com/example/go-sarslide/collection"
	"github.com/example/go-sarslide/geotiff"
	"github.com/example/go-sarslide/raster"
)

func writeScene(t *testing.T) string {
	t.Helper()
	g := raster.NewGrid(8, 8, 132.70, 34.30, 0.001, raster.EPSGWGS84)
	path := filepath.Join(t.TempDir(), "src_VH.tif")
	if err := geotiff.Write(path, raster.Constant(g, "VH", 0.01)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return path
}

func product(id, base string, direction string, names ...string) model.Product {
	p := model.Product{
		ID:              id,
		FlightDirection: direction,
		Polarization:    "VV+VH",
		BeamMode:        "IW",
		StartTime:       time.Date(2018, 7, 6, 9, 22, 19, 0, time.UTC),
	}
	for _, n := range names {
		p.Files = append(p.Files, model.File{URL: base + "/" + n, Name: n})
	}
	return p
}

func TestProducts(t *testing.T) {
	ctx := context.Background()
	scene := writeScene(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/asc_VH.tif", "/desc_VH.tif":
			http.ServeFile(w, r, scene)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := asf.NewClient(asf.WithRetryPolicy(asf.NewRetryPolicy(1, time.Millisecond)))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cat, err := catalog.Open(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cat.Close()

	products := []model.Product{
		product("asc", server.URL, "ASCENDING", "asc_VV.tif", "asc_VH.tif", "asc_mask.tif"),
		product("desc", server.URL, "DESCENDING", "desc_VH.tif"),
		product("grd", server.URL, "ASCENDING", "grd.zip"),
		product("gone", server.URL, "ASCENDING", "gone_VH.tif"),
	}
	res, err := Products(ctx, client, cat, products, Options{
		Dir:          filepath.Join(t.TempDir(), "scenes"),
		Dataset:      "S1_GRD",
		Polarization: "VH",
		Concurrency:  2,
	})
	var batch asf.BatchError
	if !errors.As(err, &batch) || len(batch.Errors) != 1 {
		t.Fatalf("expected one failed product, got %v", err)
	}
	if len(res.Indexed) != 2 {
		t.Fatalf("expected 2 indexed scenes, got %+v", res.Indexed)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "grd" {
		t.Fatalf("expected grd to be skipped, got %v", res.Skipped)
	}

	coll, err := cat.Collection(ctx, "S1_GRD")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if coll.Len() != 2 {
		t.Fatalf("catalog holds %d scenes, want 2", coll.Len())
	}
	if coll.FilterOrbit(collection.Descending).Len() != 1 {
		t.Fatalf("orbit pass not stored")
	}
	asc, err := cat.Get(ctx, "S1_GRD", "asc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if asc.Units != catalog.UnitsLinear || len(asc.Bands) != 1 || asc.Bands[0] != "VH" {
		t.Fatalf("unexpected entry %+v", asc)
	}
	if !asc.Footprint.Contains(orb.Point{132.702, 34.298}) {
		t.Fatalf("footprint %v not read from the file", asc.Footprint)
	}
	if filepath.Base(asc.Path) != "asc_VH.tif" {
		t.Fatalf("only the VH file should be fetched, got %s", asc.Path)
	}
}

func TestProductsRequiresOptions(t *testing.T) {
	if _, err := Products(context.Background(), nil, nil, nil, Options{Dir: "x"}); err == nil {
		t.Fatalf("expected error for missing dataset and polarization")
	}
}

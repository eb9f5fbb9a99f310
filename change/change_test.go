package change

import (
	"math"
	"testing"

	"github.com/example/go-sarslide/raster"
)

var grid = raster.NewGrid(3, 2, 500000, 4000000, 10, 32653)

func constant(v float64) *raster.Raster {
	return raster.Constant(grid, "VH", v)
}

func TestDiffsAverage(t *testing.T) {
	// ascending diff 2 dB, descending diff 4 dB
	res, err := Detect(Inputs{
		PreAsc: constant(-10), PostAsc: constant(-12),
		PreDesc: constant(-11), PostDesc: constant(-15),
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	b := res.Change.BandAt(0)
	for j, v := range b.Data {
		if !b.Valid[j] || v != 3 {
			t.Fatalf("pixel %d: got %v want 3", j, v)
		}
	}
	if res.Change.BandNames()[0] != Band {
		t.Fatalf("unexpected band %v", res.Change.BandNames())
	}
	if s := res.Stats(); s.Count != grid.Len() || s.Mean != 3 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestIdenticalCompositesGiveZero(t *testing.T) {
	data := []float64{-12.3, -8.1, math.NaN(), -20, -15.5, -9}
	pre, _ := raster.FromData(grid, "VH", data)
	post, _ := raster.FromData(grid, "VH", data)
	d, err := Difference(pre, post)
	if err != nil {
		t.Fatalf("Difference: %v", err)
	}
	b := d.BandAt(0)
	for j := range b.Data {
		if b.Valid[j] && b.Data[j] != 0 {
			t.Fatalf("pixel %d: got %v", j, b.Data[j])
		}
	}
	if b.Valid[2] {
		t.Fatalf("no-data pixel became valid")
	}
}

func TestMissingCompositePropagatesNoData(t *testing.T) {
	empty := raster.New(grid, "VH")
	res, err := Detect(Inputs{
		PreAsc: empty, PostAsc: constant(-12),
		PreDesc: constant(-11), PostDesc: constant(-15),
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Change.ValidCount(0) != 0 {
		t.Fatalf("expected change to be no-data everywhere")
	}
	if res.DiffDesc.ValidCount(0) != grid.Len() {
		t.Fatalf("descending diff should be unaffected")
	}
}

func TestDetectRejectsMissingInput(t *testing.T) {
	if _, err := Detect(Inputs{PreAsc: constant(1), PostAsc: constant(1), PreDesc: constant(1)}); err == nil {
		t.Fatalf("expected error for nil composite")
	}
}

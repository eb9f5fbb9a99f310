package terrain

import (
	"math"
	"testing"

	"github.com/example/go-sarslide/raster"
)

func surface(t *testing.T, g raster.Grid, fn func(x, y float64) float64) *raster.Raster {
	t.Helper()
	data := make([]float64, g.Len())
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			x, y := g.Center(col, row)
			data[g.Index(col, row)] = fn(x, y)
		}
	}
	r, err := raster.FromData(g, "elevation", data)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	return r
}

func TestEastwardRampPassesSlopeMask(t *testing.T) {
	g := raster.NewGrid(10, 10, 0, 100, 10, 32653)
	rise := math.Tan(5 * math.Pi / 180)
	dem := surface(t, g, func(x, y float64) float64 { return rise * x })

	p := DefaultParams()
	p.Smoothing = raster.KernelSpec{Radius: 1, Sigma: 1, Units: raster.UnitsPixels, Normalize: true}
	res, err := Extract(dem, p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for j := 0; j < g.Len(); j++ {
		s, ok := res.Slope.At(0, j%g.Cols, j/g.Cols)
		if !ok || math.Abs(s-5) > 1e-9 {
			t.Fatalf("pixel %d: slope %v", j, s)
		}
		if m, _ := res.SlopeMask.At(0, j%g.Cols, j/g.Cols); m != 1 {
			t.Fatalf("pixel %d: slope mask %v", j, m)
		}
	}
}

func TestSlopeMaskIsInclusive(t *testing.T) {
	g := raster.NewGrid(4, 1, 0, 10, 10, 32653)
	rise := math.Tan(0.5 * math.Pi / 180)
	dem := surface(t, g, func(x, y float64) float64 { return rise * x })
	slope, err := Slope(dem)
	if err != nil {
		t.Fatalf("Slope: %v", err)
	}
	// pin the computed slope to the threshold to test equality exactly
	threshold, _ := slope.At(0, 1, 0)
	mask := raster.Gte(slope, threshold)
	if v, _ := mask.At(0, 1, 0); v != 1 {
		t.Fatalf("slope equal to threshold must pass")
	}
	mask = raster.Gte(slope, math.Nextafter(threshold, math.Inf(1)))
	if v, _ := mask.At(0, 1, 0); v != 0 {
		t.Fatalf("slope below threshold must fail")
	}
}

func TestCurvatureOfParaboloid(t *testing.T) {
	g := raster.NewGrid(12, 12, 0, 120, 10, 32653)
	// z = x^2/200 + y^2/100 has Laplacian 1/100 + 2/100 everywhere.
	dem := surface(t, g, func(x, y float64) float64 { return x*x/200 + y*y/100 })
	curv, err := Curvature(dem)
	if err != nil {
		t.Fatalf("Curvature: %v", err)
	}
	for row := 2; row < g.Rows-2; row++ {
		for col := 2; col < g.Cols-2; col++ {
			v, ok := curv.At(0, col, row)
			if !ok || math.Abs(v-0.03) > 1e-9 {
				t.Fatalf("pixel (%d,%d): curvature %v", col, row, v)
			}
		}
	}
	if curv.BandNames()[0] != "curvature" {
		t.Fatalf("unexpected band name %v", curv.BandNames())
	}
}

func TestCurvatureTermOrderIndependent(t *testing.T) {
	g := raster.NewGrid(9, 9, 0, 90, 10, 32653)
	dem := surface(t, g, func(x, y float64) float64 { return math.Sin(x/30)*math.Cos(y/45)*50 + x*y/400 })
	curv, err := Curvature(dem)
	if err != nil {
		t.Fatalf("Curvature: %v", err)
	}

	// y term first, then x term, each through its own derivative chain
	grad, err := raster.Gradient(dem)
	if err != nil {
		t.Fatalf("Gradient: %v", err)
	}
	gy, _ := grad.Select("y")
	yy, err := secondDerivative(gy, "y")
	if err != nil {
		t.Fatalf("y term: %v", err)
	}
	gx, _ := grad.Select("x")
	xx, err := secondDerivative(gx, "x")
	if err != nil {
		t.Fatalf("x term: %v", err)
	}
	yFirst, err := raster.Add(yy, xx)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// swapping the axes of the surface swaps which term is computed first
	swapped := make([]float64, g.Len())
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			v, _ := dem.At(0, row, col)
			swapped[g.Index(col, row)] = v
		}
	}
	sdem, err := raster.FromData(g, "elevation", swapped)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	scurv, err := Curvature(sdem)
	if err != nil {
		t.Fatalf("Curvature of swapped surface: %v", err)
	}

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			want, ok := curv.At(0, col, row)
			if !ok {
				t.Fatalf("pixel (%d,%d) invalid", col, row)
			}
			if v, _ := yFirst.At(0, col, row); math.Abs(v-want) > 1e-12 {
				t.Fatalf("pixel (%d,%d): y-first sum %v, curvature %v", col, row, v, want)
			}
			if v, _ := scurv.At(0, row, col); math.Abs(v-want) > 1e-12 {
				t.Fatalf("pixel (%d,%d): swapped-axis curvature %v, curvature %v", col, row, v, want)
			}
		}
	}
}

func TestSteepPlaneHasNoCurvatureInsideMargin(t *testing.T) {
	p := DefaultParams()
	area := raster.NewGrid(40, 40, 500000, 3800400, 10, 32653)
	margin, err := p.Margin(area.PixelWidth())
	if err != nil {
		t.Fatalf("Margin: %v", err)
	}
	if margin != 14 {
		t.Fatalf("margin for a 120 m kernel at 10 m: got %d, want 14", margin)
	}
	// 45 degree plane dipping east
	dem := surface(t, area.Buffer(margin), func(x, y float64) float64 { return 1000 - (x - 500000) })

	full, err := Extract(dem, p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	res, err := full.Crop(area)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	for row := 0; row < area.Rows; row++ {
		for col := 0; col < area.Cols; col++ {
			c, ok := res.Curvature.At(0, col, row)
			if !ok || math.Abs(c) > 1e-9 {
				t.Fatalf("pixel (%d,%d): curvature %v (%v)", col, row, c, ok)
			}
			if m, _ := res.CurvatureMask.At(0, col, row); m != 1 {
				t.Fatalf("pixel (%d,%d) fails the curvature mask", col, row)
			}
			if s, _ := res.Slope.At(0, col, row); math.Abs(s-45) > 1e-9 {
				t.Fatalf("pixel (%d,%d): slope %v", col, row, s)
			}
		}
	}
	if !res.CurvatureMask.Grid().Equal(area) {
		t.Fatalf("masks not cropped to the area: %s", res.CurvatureMask.Grid())
	}
}

func TestExtractMasks(t *testing.T) {
	g := raster.NewGrid(12, 12, 0, 120, 10, 32653)
	// a bowl: positive curvature everywhere
	dem := surface(t, g, func(x, y float64) float64 { return ((x-60)*(x-60) + (y-60)*(y-60)) / 100 })
	p := Params{
		SlopeThreshold:     0.5,
		CurvatureThreshold: -0.005,
		Smoothing:          raster.KernelSpec{Radius: 1, Sigma: 1, Units: raster.UnitsPixels, Normalize: true},
	}
	res, err := Extract(dem, p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.CurvatureMask.ValidCount(0) != g.Len() {
		t.Fatalf("curvature mask should be defined everywhere")
	}
	if v, _ := res.CurvatureMask.At(0, 6, 6); v != 1 {
		t.Fatalf("bowl centre should pass curvature mask")
	}
	if v, _ := res.SlopeMask.At(0, 0, 0); v != 1 {
		t.Fatalf("steep rim should pass slope mask")
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	p := DefaultParams()
	p.SlopeThreshold = 95
	if err := p.Validate(); err == nil {
		t.Fatalf("expected slope range error")
	}
	p = DefaultParams()
	p.Smoothing.Sigma = 0
	if err := p.Validate(); err == nil {
		t.Fatalf("expected smoothing error")
	}
	two, _ := raster.Cat(raster.Constant(raster.NewGrid(2, 2, 0, 0, 1, 32653), "a", 1), raster.Constant(raster.NewGrid(2, 2, 0, 0, 1, 32653), "b", 1))
	if _, err := Extract(two, DefaultParams()); err == nil {
		t.Fatalf("expected error for multi-band elevation")
	}
}

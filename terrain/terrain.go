// Package terrain derives slope and curvature from an elevation model and thresholds them
// into the masks that select landslide-prone terrain.
package terrain

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-sarslide/raster"
)

// Params holds the terrain thresholds and the smoothing applied before curvature.
type Params struct {
	// SlopeThreshold in degrees; slope >= threshold passes.
	SlopeThreshold float64
	// CurvatureThreshold in 1/m; curvature >= threshold passes.
	CurvatureThreshold float64
	Smoothing          raster.KernelSpec
}

// DefaultParams returns the thresholds used for the 2018 Hiroshima rainfall event.
func DefaultParams() Params {
	return Params{
		SlopeThreshold:     0.5,
		CurvatureThreshold: -0.005,
		Smoothing:          raster.KernelSpec{Radius: 120, Sigma: 60, Units: raster.UnitsMeters, Normalize: true},
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if math.IsNaN(p.SlopeThreshold) || p.SlopeThreshold < 0 || p.SlopeThreshold >= 90 {
		return fmt.Errorf("terrain: slope threshold must be in [0, 90), got %g", p.SlopeThreshold)
	}
	if math.IsNaN(p.CurvatureThreshold) || math.IsInf(p.CurvatureThreshold, 0) {
		return fmt.Errorf("terrain: invalid curvature threshold %g", p.CurvatureThreshold)
	}
	if err := p.Smoothing.Validate(); err != nil {
		return fmt.Errorf("terrain: smoothing: %w", err)
	}
	return nil
}

// Margin returns how many pixels of elevation Extract needs beyond an area so that neither
// the smoothing kernel nor the second derivatives inside it reach the edge of the DEM.
func (p Params) Margin(pixelSize float64) (int, error) {
	k, err := p.Smoothing.Gaussian(pixelSize)
	if err != nil {
		return 0, fmt.Errorf("terrain: smoothing: %w", err)
	}
	// one pixel per derivative pass
	return k.Radius + 2, nil
}

// Result holds the derived rasters. All share the grid of the elevation input.
type Result struct {
	Slope         *raster.Raster
	SlopeMask     *raster.Raster
	Curvature     *raster.Raster
	CurvatureMask *raster.Raster
}

// Slope returns the terrain slope in degrees as band "slope".
func Slope(dem *raster.Raster) (*raster.Raster, error) {
	grad, err := raster.Gradient(dem)
	if err != nil {
		return nil, fmt.Errorf("terrain: slope: %w", err)
	}
	gx, gy := grad.BandAt(0), grad.BandAt(1)
	out := raster.Band{Name: "slope", Data: make([]float64, len(gx.Data)), Valid: make([]bool, len(gx.Data))}
	for j := range out.Data {
		if !gx.Valid[j] || !gy.Valid[j] {
			continue
		}
		out.Data[j] = math.Atan(math.Hypot(gx.Data[j], gy.Data[j])) * 180 / math.Pi
		out.Valid[j] = true
	}
	return raster.FromBands(dem.Grid(), out)
}

// Curvature returns the sum of the second derivatives d2z/dx2 + d2z/dy2 of elevation as band
// "curvature", each obtained as the gradient of the matching first-derivative component.
func Curvature(dem *raster.Raster) (*raster.Raster, error) {
	grad, err := raster.Gradient(dem)
	if err != nil {
		return nil, fmt.Errorf("terrain: curvature: %w", err)
	}
	gx, err := grad.Select("x")
	if err != nil {
		return nil, err
	}
	gy, err := grad.Select("y")
	if err != nil {
		return nil, err
	}
	xx, err := secondDerivative(gx, "x")
	if err != nil {
		return nil, err
	}
	yy, err := secondDerivative(gy, "y")
	if err != nil {
		return nil, err
	}
	sum, err := raster.Add(xx, yy)
	if err != nil {
		return nil, fmt.Errorf("terrain: curvature: %w", err)
	}
	return sum.Rename("curvature")
}

// secondDerivative differentiates a first-derivative band again along the same axis.
func secondDerivative(first *raster.Raster, axis string) (*raster.Raster, error) {
	grad, err := raster.Gradient(first)
	if err != nil {
		return nil, fmt.Errorf("terrain: curvature: %w", err)
	}
	return grad.Select(axis)
}

// Extract computes slope and curvature of dem and thresholds them. Curvature is taken from
// the elevation smoothed with p.Smoothing.
func Extract(dem *raster.Raster, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if dem.NumBands() != 1 {
		return Result{}, errors.New("terrain: elevation must have exactly one band")
	}
	slope, err := Slope(dem)
	if err != nil {
		return Result{}, err
	}
	kernel, err := p.Smoothing.Gaussian(dem.Grid().PixelWidth())
	if err != nil {
		return Result{}, fmt.Errorf("terrain: smoothing: %w", err)
	}
	curv, err := Curvature(raster.Convolve(dem, kernel))
	if err != nil {
		return Result{}, err
	}
	return Result{
		Slope:         slope,
		SlopeMask:     raster.Gte(slope, p.SlopeThreshold),
		Curvature:     curv,
		CurvatureMask: raster.Gte(curv, p.CurvatureThreshold),
	}, nil
}

// Crop restricts every raster of the result to sub, an aligned window of their grid.
func (r Result) Crop(sub raster.Grid) (Result, error) {
	var out Result
	for _, c := range []struct {
		src *raster.Raster
		dst **raster.Raster
	}{
		{r.Slope, &out.Slope},
		{r.SlopeMask, &out.SlopeMask},
		{r.Curvature, &out.Curvature},
		{r.CurvatureMask, &out.CurvatureMask},
	} {
		cropped, err := raster.Crop(c.src, sub)
		if err != nil {
			return Result{}, fmt.Errorf("terrain: crop: %w", err)
		}
		*c.dst = cropped
	}
	return out, nil
}

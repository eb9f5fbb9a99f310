package raster

import (
	"errors"
	"fmt"
	"math"
)

// EPSGWGS84 is the EPSG code of geographic longitude/latitude coordinates.
const EPSGWGS84 = 4326

// Grid describes the pixel lattice of a raster: its size, an affine geotransform in GDAL
// order (originX, pixelWidth, rotX, originY, rotY, pixelHeight) and the EPSG code of the
// coordinate reference system. Rotated grids are not supported.
type Grid struct {
	Cols         int
	Rows         int
	GeoTransform [6]float64
	EPSG         int
}

// NewGrid returns a north-up grid whose upper-left corner is (originX, originY).
func NewGrid(cols, rows int, originX, originY, pixelSize float64, epsg int) Grid {
	return Grid{
		Cols:         cols,
		Rows:         rows,
		GeoTransform: [6]float64{originX, pixelSize, 0, originY, 0, -pixelSize},
		EPSG:         epsg,
	}
}

// Validate reports whether the grid can hold pixels.
func (g Grid) Validate() error {
	if g.Cols <= 0 || g.Rows <= 0 {
		return fmt.Errorf("raster: invalid grid size %dx%d", g.Cols, g.Rows)
	}
	if g.GeoTransform[1] == 0 || g.GeoTransform[5] == 0 {
		return errors.New("raster: grid has zero pixel size")
	}
	if g.GeoTransform[2] != 0 || g.GeoTransform[4] != 0 {
		return errors.New("raster: rotated grids are not supported")
	}
	return nil
}

// Len returns the number of pixels in the grid.
func (g Grid) Len() int {
	return g.Cols * g.Rows
}

// PixelWidth returns the absolute pixel size along x in CRS units.
func (g Grid) PixelWidth() float64 {
	return math.Abs(g.GeoTransform[1])
}

// Center returns the CRS coordinates of the centre of pixel (col, row).
func (g Grid) Center(col, row int) (x, y float64) {
	x = g.GeoTransform[0] + (float64(col)+0.5)*g.GeoTransform[1]
	y = g.GeoTransform[3] + (float64(row)+0.5)*g.GeoTransform[5]
	return x, y
}

// Pixel returns the fractional pixel position of CRS coordinates (x, y). Integer parts
// address the pixel containing the point; pixel centres sit at .5.
func (g Grid) Pixel(x, y float64) (col, row float64) {
	col = (x - g.GeoTransform[0]) / g.GeoTransform[1]
	row = (y - g.GeoTransform[3]) / g.GeoTransform[5]
	return col, row
}

// Contains reports whether (col, row) addresses a pixel of the grid.
func (g Grid) Contains(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.Cols && row < g.Rows
}

// Index returns the row-major offset of pixel (col, row).
func (g Grid) Index(col, row int) int {
	return row*g.Cols + col
}

// Equal reports whether both grids address the same pixels.
func (g Grid) Equal(o Grid) bool {
	if g.Cols != o.Cols || g.Rows != o.Rows || g.EPSG != o.EPSG {
		return false
	}
	for i := range g.GeoTransform {
		if math.Abs(g.GeoTransform[i]-o.GeoTransform[i]) > 1e-9 {
			return false
		}
	}
	return true
}

// Bounds returns the extent of the grid as minX, minY, maxX, maxY.
func (g Grid) Bounds() (minX, minY, maxX, maxY float64) {
	x0, y0 := g.GeoTransform[0], g.GeoTransform[3]
	x1 := x0 + float64(g.Cols)*g.GeoTransform[1]
	y1 := y0 + float64(g.Rows)*g.GeoTransform[5]
	return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d@%g EPSG:%d", g.Cols, g.Rows, g.PixelWidth(), g.EPSG)
}

// Buffer returns the grid grown by n pixels on every side, keeping the pixel lattice.
func (g Grid) Buffer(n int) Grid {
	out := g
	out.Cols += 2 * n
	out.Rows += 2 * n
	out.GeoTransform[0] -= float64(n) * g.GeoTransform[1]
	out.GeoTransform[3] -= float64(n) * g.GeoTransform[5]
	return out
}

// Offset returns the position of the upper-left pixel of sub inside g. sub must share the
// pixel size, CRS and lattice of g and lie entirely within it.
func (g Grid) Offset(sub Grid) (col, row int, err error) {
	if g.EPSG != sub.EPSG ||
		math.Abs(g.GeoTransform[1]-sub.GeoTransform[1]) > 1e-9 ||
		math.Abs(g.GeoTransform[5]-sub.GeoTransform[5]) > 1e-9 {
		return 0, 0, fmt.Errorf("%w: %s is not a window of %s", ErrGridMismatch, sub, g)
	}
	fc, fr := g.Pixel(sub.GeoTransform[0], sub.GeoTransform[3])
	col, row = int(math.Round(fc)), int(math.Round(fr))
	if math.Abs(fc-float64(col)) > 1e-6 || math.Abs(fr-float64(row)) > 1e-6 {
		return 0, 0, fmt.Errorf("%w: %s is not aligned with %s", ErrGridMismatch, sub, g)
	}
	if col < 0 || row < 0 || col+sub.Cols > g.Cols || row+sub.Rows > g.Rows {
		return 0, 0, fmt.Errorf("%w: %s extends beyond %s", ErrGridMismatch, sub, g)
	}
	return col, row, nil
}

// Package geotiff reads and writes rasters as GeoTIFF files through GDAL.
package geotiff

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/example/go-sarslide/raster"
)

// NoData is the value written for no-data pixels.
const NoData = -9999

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

// Read loads every band of the GeoTIFF at path. Bands are named after their GDAL description,
// or after names when given, or "b1", "b2", ... otherwise. Pixels equal to the band's no-data
// value, and NaN pixels, are no-data.
func Read(path string, names ...string) (*raster.Raster, error) {
	register()
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geotiff: open %s: %w", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("geotiff: %s: geotransform: %w", path, err)
	}
	epsg, err := EPSGFromWKT(ds.Projection())
	if err != nil {
		return nil, fmt.Errorf("geotiff: %s: %w", path, err)
	}
	grid := raster.Grid{Cols: st.SizeX, Rows: st.SizeY, GeoTransform: gt, EPSG: epsg}
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("geotiff: %s: %w", path, err)
	}
	if len(names) > 0 && len(names) != st.NBands {
		return nil, fmt.Errorf("geotiff: %s has %d bands, %d names given", path, st.NBands, len(names))
	}

	bands := make([]raster.Band, 0, st.NBands)
	for i, b := range ds.Bands() {
		name := b.Description()
		switch {
		case len(names) > 0:
			name = names[i]
		case name == "":
			name = "b" + strconv.Itoa(i+1)
		}
		data := make([]float64, grid.Len())
		if err := b.Read(0, 0, data, st.SizeX, st.SizeY); err != nil {
			return nil, fmt.Errorf("geotiff: %s: read band %d: %w", path, i+1, err)
		}
		nodata, hasNoData := b.NoData()
		valid := make([]bool, len(data))
		for j, v := range data {
			valid[j] = !math.IsNaN(v) && !(hasNoData && v == nodata)
		}
		bands = append(bands, raster.Band{Name: name, Data: data, Valid: valid})
	}
	return raster.FromBands(grid, bands...)
}

// WriteOption configures Write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	creation []string
}

// WithCreationOptions passes GDAL creation options such as "COMPRESS=DEFLATE".
func WithCreationOptions(opts ...string) WriteOption {
	return func(o *writeOptions) { o.creation = append(o.creation, opts...) }
}

// Write stores r as a float32 GeoTIFF at path. No-data pixels are written as NoData and band
// names are kept as band descriptions.
func Write(path string, r *raster.Raster, opts ...WriteOption) (err error) {
	register()
	o := writeOptions{creation: []string{"TILED=YES", "COMPRESS=DEFLATE"}}
	for _, opt := range opts {
		opt(&o)
	}
	g := r.Grid()
	if err := g.Validate(); err != nil {
		return fmt.Errorf("geotiff: write %s: %w", path, err)
	}
	if r.NumBands() == 0 {
		return errors.New("geotiff: raster has no bands")
	}

	ds, err := godal.Create(godal.GTiff, path, r.NumBands(), godal.Float32, g.Cols, g.Rows,
		godal.CreationOption(o.creation...))
	if err != nil {
		return fmt.Errorf("geotiff: create %s: %w", path, err)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("geotiff: close %s: %w", path, cerr)
		}
	}()

	if err := ds.SetGeoTransform(g.GeoTransform); err != nil {
		return fmt.Errorf("geotiff: %s: set geotransform: %w", path, err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(g.EPSG)
	if err != nil {
		return fmt.Errorf("geotiff: %s: EPSG:%d: %w", path, g.EPSG, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("geotiff: %s: set spatial ref: %w", path, err)
	}

	buf := make([]float32, g.Len())
	for i, b := range ds.Bands() {
		src := r.BandAt(i)
		for j := range buf {
			if src.Valid[j] {
				buf[j] = float32(src.Data[j])
			} else {
				buf[j] = NoData
			}
		}
		if err := b.SetNoData(NoData); err != nil {
			return fmt.Errorf("geotiff: %s: band %d nodata: %w", path, i+1, err)
		}
		if err := b.SetDescription(src.Name); err != nil {
			return fmt.Errorf("geotiff: %s: band %d description: %w", path, i+1, err)
		}
		if err := b.Write(0, 0, buf, g.Cols, g.Rows); err != nil {
			return fmt.Errorf("geotiff: %s: write band %d: %w", path, i+1, err)
		}
	}
	return nil
}

var (
	wkt1Authority = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"(\d+)"\]`)
	wkt2Authority = regexp.MustCompile(`ID\["EPSG",\s*(\d+)\]`)
)

// EPSGFromWKT returns the EPSG code of the root CRS of a WKT definition. The root authority is
// the last one in the string.
func EPSGFromWKT(wkt string) (int, error) {
	for _, re := range []*regexp.Regexp{wkt1Authority, wkt2Authority} {
		m := re.FindAllStringSubmatch(wkt, -1)
		if len(m) == 0 {
			continue
		}
		return strconv.Atoi(m[len(m)-1][1])
	}
	if wkt == "" {
		return 0, errors.New("no spatial reference")
	}
	return 0, errors.New("spatial reference has no EPSG authority")
}

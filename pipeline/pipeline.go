// Package pipeline runs the landslide detection steps for one AOI and one pre/post window
// pair: cloud-masked optical composites, terrain masks, SAR amplitude composites, change
// detection and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/go-sarslide/amplitude"
	"github.com/example/go-sarslide/change"
	"github.com/example/go-sarslide/cloudmask"
	"github.com/example/go-sarslide/collection"
	"github.com/example/go-sarslide/export"
	"github.com/example/go-sarslide/geom"
	"github.com/example/go-sarslide/internal/log"
	"github.com/example/go-sarslide/raster"
	"github.com/example/go-sarslide/terrain"
)

// ErrNoDEM is returned when the DEM dataset has no tile over the AOI.
var ErrNoDEM = errors.New("pipeline: no DEM tile covers the AOI")

// Sources hands out the image collection of a dataset. *catalog.Catalog implements it.
type Sources interface {
	Collection(ctx context.Context, dataset string) (*collection.Collection, error)
}

// Submitter starts an export. *export.Exporter implements it.
type Submitter interface {
	Submit(ctx context.Context, req export.Request) (*export.Task, error)
}

// Optical configures the cloud-masked optical composites.
type Optical struct {
	Enabled         bool
	Export          bool
	Dataset         string
	Mask            cloudmask.Spec
	MaxCloudPercent float64
	Bands           []string
}

// Output configures what is exported.
type Output struct {
	Description string
	Format      string
	// Unmasked also exports the change raster before the terrain masks are applied.
	Unmasked bool
}

// Params is the complete, validated input of a run. Build it once and pass it by value.
type Params struct {
	AOI   geom.AOI
	Pre   collection.TimeWindow
	Post  collection.TimeWindow
	Scale float64

	DEMDataset string
	DEMBand    string
	Terrain    terrain.Params

	SARDataset string
	SAR        amplitude.Params

	Optical Optical
	Output  Output
}

// DefaultParams returns the parameters of the Hiroshima 2018 rainfall event analysis without
// an AOI.
func DefaultParams() Params {
	pre, _ := collection.ParseWindow("2015-01-01T23:59", "2018-06-29T23:59")
	post, _ := collection.ParseWindow("2018-07-09T23:59", "2020-05-29T23:59")
	return Params{
		Pre:        pre,
		Post:       post,
		Scale:      10,
		DEMDataset: "SRTMGL1_003",
		DEMBand:    "elevation",
		Terrain:    terrain.DefaultParams(),
		SARDataset: "S1_GRD",
		SAR:        amplitude.DefaultParams(),
		Optical: Optical{
			Enabled:         true,
			Dataset:         "S2",
			Mask:            cloudmask.Sentinel2,
			MaxCloudPercent: 10,
			Bands:           []string{"B4", "B3", "B2"},
		},
		Output: Output{Description: "SAR_amplitude_change", Format: export.FormatGeoTIFF},
	}
}

// Validate reports the first input error. It runs before any data is read.
func (p Params) Validate() error {
	if p.AOI.IsZero() {
		return errors.New("pipeline: AOI is required")
	}
	if err := p.Pre.Validate(); err != nil {
		return fmt.Errorf("pipeline: pre-event window: %w", err)
	}
	if err := p.Post.Validate(); err != nil {
		return fmt.Errorf("pipeline: post-event window: %w", err)
	}
	if err := collection.CheckSequence(p.Pre, p.Post); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if p.Scale <= 0 {
		return fmt.Errorf("pipeline: scale must be positive, got %g", p.Scale)
	}
	if p.DEMDataset == "" || p.DEMBand == "" {
		return errors.New("pipeline: DEM dataset and band are required")
	}
	if err := p.Terrain.Validate(); err != nil {
		return err
	}
	if p.SARDataset == "" {
		return errors.New("pipeline: SAR dataset is required")
	}
	if err := p.SAR.Validate(); err != nil {
		return err
	}
	if p.Optical.Enabled {
		if p.Optical.Dataset == "" || len(p.Optical.Bands) == 0 {
			return errors.New("pipeline: optical dataset and bands are required")
		}
		if err := p.Optical.Mask.Validate(); err != nil {
			return err
		}
	}
	if p.Output.Format != "" && p.Output.Format != export.FormatGeoTIFF {
		return fmt.Errorf("%w: %q", export.ErrUnsupportedFormat, p.Output.Format)
	}
	if p.Output.Description == "" {
		return errors.New("pipeline: export description is required")
	}
	return nil
}

// Report summarises a run.
type Report struct {
	RunID uuid.UUID
	Grid  raster.Grid

	Counts map[amplitude.Key]int
	Scenes map[amplitude.Key][]string

	OpticalCounts map[amplitude.Period]int
	Optical       map[amplitude.Period]*raster.Raster
	DEMTiles      int

	Terrain terrain.Result
	Change  change.Result
	Masked  *raster.Raster

	ChangeStats raster.Stats
	MaskedStats raster.Stats

	Tasks   []*export.Task
	Elapsed time.Duration

	empty []amplitude.Key
}

// Empty lists the SAR composites that had no scenes.
func (r Report) Empty() []amplitude.Key {
	return r.empty
}

// Run executes the pipeline. Exports are submitted, not awaited: wait on Report.Tasks.
func Run(ctx context.Context, src Sources, sub Submitter, p Params) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	if src == nil || sub == nil {
		return Report{}, errors.New("pipeline: sources and submitter are required")
	}
	start := time.Now()
	rep := Report{RunID: uuid.New()}
	ctx = log.With(ctx, zap.String("run", rep.RunID.String()))
	logger := log.Logger(ctx)

	grid, proj, err := geom.TargetGrid(p.AOI, p.Scale)
	if err != nil {
		return Report{}, fmt.Errorf("pipeline: target grid: %w", err)
	}
	region, err := p.AOI.Project(proj)
	if err != nil {
		return Report{}, fmt.Errorf("pipeline: project AOI: %w", err)
	}
	rep.Grid = grid
	logger.Info("target grid", zap.Stringer("grid", grid), zap.Int("epsg", grid.EPSG))

	if p.Optical.Enabled {
		if err := runOptical(ctx, src, sub, p, grid, &region, &rep); err != nil {
			return Report{}, err
		}
	}

	if err := runTerrain(ctx, src, p, grid, &rep); err != nil {
		return Report{}, err
	}

	sar, err := src.Collection(ctx, p.SARDataset)
	if err != nil {
		return Report{}, fmt.Errorf("pipeline: SAR collection: %w", err)
	}
	comps, err := amplitude.Composite(ctx, sar, p.AOI, p.Pre, p.Post, grid,
		collection.Reproject(raster.Nearest), p.SAR)
	if err != nil {
		return Report{}, err
	}
	rep.Counts, rep.Scenes, rep.empty = comps.Counts, comps.Scenes, comps.Empty()
	for _, k := range amplitude.Keys {
		logger.Info("scene count", zap.String("composite", k.String()), zap.Int("count", comps.Counts[k]))
	}
	if len(rep.empty) > 0 {
		logger.Warn("change will be no-data where a composite is empty", zap.Int("empty", len(rep.empty)))
	}

	res, err := change.Detect(change.Inputs{
		PreAsc:   comps.Get(collection.Ascending, amplitude.Pre),
		PostAsc:  comps.Get(collection.Ascending, amplitude.Post),
		PreDesc:  comps.Get(collection.Descending, amplitude.Pre),
		PostDesc: comps.Get(collection.Descending, amplitude.Post),
	})
	if err != nil {
		return Report{}, err
	}
	rep.Change = res
	rep.ChangeStats = res.Stats()

	masked, err := export.Combine(res.Change, rep.Terrain.SlopeMask, rep.Terrain.CurvatureMask)
	if err != nil {
		return Report{}, err
	}
	rep.Masked = masked
	rep.MaskedStats = masked.Stats(0)
	logger.Info("change detected",
		zap.Int("valid", rep.ChangeStats.Count), zap.Float64("mean_db", rep.ChangeStats.Mean),
		zap.Int("masked_valid", rep.MaskedStats.Count))

	if err := submit(ctx, sub, p, &rep, p.Output.Description, masked, &region); err != nil {
		return Report{}, err
	}
	if p.Output.Unmasked {
		if err := submit(ctx, sub, p, &rep, p.Output.Description+"_unmasked", res.Change, &region); err != nil {
			return Report{}, err
		}
	}
	rep.Elapsed = time.Since(start)
	return rep, nil
}

func runTerrain(ctx context.Context, src Sources, p Params, grid raster.Grid, rep *Report) error {
	dems, err := src.Collection(ctx, p.DEMDataset)
	if err != nil {
		return fmt.Errorf("pipeline: DEM collection: %w", err)
	}
	dems = dems.FilterBounds(p.AOI)
	if dems.Len() == 0 {
		return ErrNoDEM
	}
	rep.DEMTiles = dems.Len()
	// Smoothing and derivatives read past the output grid; mosaic the DEM with enough context
	// that the masks inside it do not see an artificial edge.
	margin, err := p.Terrain.Margin(grid.PixelWidth())
	if err != nil {
		return err
	}
	dem, err := dems.Mosaic(ctx, grid.Buffer(margin), []string{p.DEMBand}, collection.Reproject(raster.Bilinear))
	if err != nil {
		return fmt.Errorf("pipeline: DEM mosaic: %w", err)
	}
	if dem.ValidCount(0) == 0 {
		return ErrNoDEM
	}
	full, err := terrain.Extract(dem, p.Terrain)
	if err != nil {
		return err
	}
	res, err := full.Crop(grid)
	if err != nil {
		return err
	}
	rep.Terrain = res
	log.Logger(ctx).Info("terrain masks built", zap.Int("tiles", dems.Len()),
		zap.Int("slope_pass", passing(res.SlopeMask)), zap.Int("curvature_pass", passing(res.CurvatureMask)))
	return nil
}

func runOptical(ctx context.Context, src Sources, sub Submitter, p Params, grid raster.Grid, region *geom.Region, rep *Report) error {
	opt, err := src.Collection(ctx, p.Optical.Dataset)
	if err != nil {
		return fmt.Errorf("pipeline: optical collection: %w", err)
	}
	masked, err := cloudmask.CloudFilter(opt.FilterBounds(p.AOI), p.Optical.Mask, p.Optical.MaxCloudPercent)
	if err != nil {
		return err
	}
	rep.OpticalCounts = make(map[amplitude.Period]int, 2)
	rep.Optical = make(map[amplitude.Period]*raster.Raster, 2)
	for period, w := range map[amplitude.Period]collection.TimeWindow{amplitude.Pre: p.Pre, amplitude.Post: p.Post} {
		scenes := masked.FilterDate(w)
		img, err := scenes.Median(ctx, grid, p.Optical.Bands, collection.Reproject(raster.Bilinear))
		if err != nil {
			return fmt.Errorf("pipeline: optical %s composite: %w", period, err)
		}
		rep.OpticalCounts[period] = scenes.Len()
		rep.Optical[period] = img
		if scenes.Len() == 0 {
			log.Logger(ctx).Warn("no cloud-free optical scenes", zap.String("period", string(period)))
		}
	}
	if !p.Optical.Export {
		return nil
	}
	for _, period := range []amplitude.Period{amplitude.Pre, amplitude.Post} {
		name := fmt.Sprintf("%s_optical_%s", p.Output.Description, period)
		if err := submit(ctx, sub, p, rep, name, rep.Optical[period], region); err != nil {
			return err
		}
	}
	return nil
}

func submit(ctx context.Context, sub Submitter, p Params, rep *Report, description string, img *raster.Raster, region *geom.Region) error {
	task, err := sub.Submit(ctx, export.Request{
		Description: description,
		Image:       img,
		Region:      region,
		Scale:       p.Scale,
		Format:      p.Output.Format,
	})
	if err != nil {
		return fmt.Errorf("pipeline: submit %s: %w", description, err)
	}
	rep.Tasks = append(rep.Tasks, task)
	return nil
}

func passing(mask *raster.Raster) int {
	b := mask.BandAt(0)
	n := 0
	for j, ok := range b.Valid {
		if ok && b.Data[j] != 0 {
			n++
		}
	}
	return n
}

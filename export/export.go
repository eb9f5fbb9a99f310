// Package export combines the change raster with the terrain masks and writes the result as a
// GeoTIFF to a local directory or an S3 bucket. Exports run asynchronously and are tracked
// through a Task.
package export

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/go-sarslide/geom"
	"github.com/example/go-sarslide/geotiff"
	"github.com/example/go-sarslide/internal/log"
	"github.com/example/go-sarslide/raster"
)

// FormatGeoTIFF is the only accepted file format.
const FormatGeoTIFF = "GeoTIFF"

var (
	// ErrUnsupportedFormat is returned by Submit for any format other than GeoTIFF.
	ErrUnsupportedFormat = errors.New("export: unsupported format")
	// ErrTaskPending is returned by Task.Err while the export is still running.
	ErrTaskPending = errors.New("export: task still running")
)

// Combine keeps a change pixel only where the slope mask and the curvature mask are both 1.
func Combine(change, slopeMask, curvMask *raster.Raster) (*raster.Raster, error) {
	if change == nil || slopeMask == nil || curvMask == nil {
		return nil, errors.New("export: combine: nil input")
	}
	terrain, err := raster.And(slopeMask, curvMask)
	if err != nil {
		return nil, fmt.Errorf("export: combine masks: %w", err)
	}
	out, err := raster.UpdateMask(change, terrain)
	if err != nil {
		return nil, fmt.Errorf("export: apply terrain mask: %w", err)
	}
	return out, nil
}

// Request describes one raster to export.
type Request struct {
	// Description names the output file: <Description>.tif.
	Description string
	Image       *raster.Raster
	// Region clips the export; pixels whose centre is outside are no-data. A nil Region keeps
	// the whole grid.
	Region *geom.Region
	// Scale is the pixel size in metres and must match the image grid.
	Scale  float64
	Format string
}

func (r Request) validate() error {
	if !strings.EqualFold(r.Format, FormatGeoTIFF) && r.Format != "" {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, r.Format)
	}
	if strings.TrimSpace(r.Description) == "" {
		return errors.New("export: description is required")
	}
	if strings.ContainsAny(r.Description, `/\`) {
		return fmt.Errorf("export: description %q must not contain path separators", r.Description)
	}
	if r.Image == nil {
		return errors.New("export: image is required")
	}
	if r.Scale > 0 {
		if px := r.Image.Grid().PixelWidth(); math.Abs(px-r.Scale) > 1e-9 {
			return fmt.Errorf("export: scale %g does not match grid pixel size %g", r.Scale, px)
		}
	}
	return nil
}

// FileName is the object name the request is written to.
func (r Request) FileName() string {
	return r.Description + ".tif"
}

// Destination stores a finished GeoTIFF under name and returns where it ended up.
type Destination interface {
	Put(ctx context.Context, name, localPath string) (string, error)
}

// Task tracks an asynchronous export.
type Task struct {
	ID          uuid.UUID
	Description string

	done     chan struct{}
	err      error
	location string
}

// Done is closed when the export finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the export finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return t.err
	}
}

// Err returns the export result, or ErrTaskPending if it has not finished.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return ErrTaskPending
	}
}

// Location is the final path or URL of a finished export.
func (t *Task) Location() string {
	select {
	case <-t.done:
		return t.location
	default:
		return ""
	}
}

// Exporter submits exports to a destination.
type Exporter struct {
	dest    Destination
	tempDir string

	wg    sync.WaitGroup
	mu    sync.Mutex
	tasks []*Task
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithTempDir sets where GeoTIFFs are staged before being handed to the destination.
func WithTempDir(dir string) Option {
	return func(e *Exporter) {
		if dir != "" {
			e.tempDir = dir
		}
	}
}

// NewExporter returns an Exporter writing to dest.
func NewExporter(dest Destination, opts ...Option) *Exporter {
	e := &Exporter{dest: dest}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit validates req and starts the export in the background. The returned Task carries the
// submission identifier; the write itself is not retried.
func (e *Exporter) Submit(ctx context.Context, req Request) (*Task, error) {
	if e == nil || e.dest == nil {
		return nil, errors.New("export: exporter has no destination")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	task := &Task{ID: uuid.New(), Description: req.Description, done: make(chan struct{})}

	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()

	logger := log.Logger(ctx).With(zap.String("task", task.ID.String()), zap.String("description", req.Description))
	logger.Info("export submitted")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(task.done)
		start := time.Now()
		task.location, task.err = e.run(ctx, req)
		if task.err != nil {
			logger.Error("export failed", zap.Error(task.err))
			return
		}
		logger.Info("export finished", zap.String("location", task.location), zap.Duration("elapsed", time.Since(start)))
	}()
	return task, nil
}

func (e *Exporter) run(ctx context.Context, req Request) (string, error) {
	img := req.Image
	if req.Region != nil {
		img = raster.Clip(img, req.Region.Contains)
	}
	dir, err := os.MkdirTemp(e.tempDir, "sarslide-export-")
	if err != nil {
		return "", fmt.Errorf("export: staging directory: %w", err)
	}
	defer os.RemoveAll(dir)

	staged := filepath.Join(dir, req.FileName())
	if err := geotiff.Write(staged, img); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	loc, err := e.dest.Put(ctx, req.FileName(), staged)
	if err != nil {
		return "", err
	}
	return loc, nil
}

// Tasks returns every task submitted so far.
func (e *Exporter) Tasks() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Task(nil), e.tasks...)
}

// Wait blocks until every submitted export has finished and returns their failures joined.
func (e *Exporter) Wait() error {
	e.wg.Wait()
	var errs []error
	for _, t := range e.Tasks() {
		if t.err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", t.Description, t.ID, t.err))
		}
	}
	return errors.Join(errs...)
}

// Package ingest downloads the single-polarization GeoTIFFs of ASF products and registers them
// in the scene catalog.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/go-sarslide/asf"
	"github.com/example/go-sarslide/asf/model"
	"github.com/example/go-sarslide/catalog"
	"github.com/example/go-sarslide/internal/log"
)

// ErrNoGeoTIFF marks products without a GeoTIFF of the requested polarization, such as
// zipped SAFE GRD products.
var ErrNoGeoTIFF = errors.New("ingest: product has no GeoTIFF for the polarization")

// Downloader fetches product files. *asf.Client implements it.
type Downloader interface {
	DownloadFiles(ctx context.Context, product model.Product, destDir string, opts ...asf.DownloadOption) ([]string, error)
}

// Indexer registers a scene file. *catalog.Catalog implements it.
type Indexer interface {
	IndexFile(ctx context.Context, e catalog.Entry) (catalog.Entry, error)
}

// Options configures Products.
type Options struct {
	Dir          string
	Dataset      string
	Polarization string
	// Units of the downloaded files; RTC GeoTIFFs hold linear gamma0.
	Units catalog.Units
	// Concurrency bounds the products processed at once.
	Concurrency int
	Download    []asf.DownloadOption
}

// Result lists what happened to each product.
type Result struct {
	Indexed []catalog.Entry
	// Skipped holds the IDs of products with no matching GeoTIFF.
	Skipped []string
}

// Products downloads and indexes every product. Per-product failures do not stop the others;
// they are returned together as an asf.BatchError alongside the partial result.
func Products(ctx context.Context, d Downloader, idx Indexer, products []model.Product, opts Options) (Result, error) {
	if opts.Dir == "" || opts.Dataset == "" || opts.Polarization == "" {
		return Result{}, errors.New("ingest: dir, dataset and polarization are required")
	}
	if opts.Units == "" {
		opts.Units = catalog.UnitsLinear
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	var (
		mu   sync.Mutex
		res  Result
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for _, p := range products {
		g.Go(func() error {
			e, err := product(ctx, d, idx, p, opts)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrNoGeoTIFF):
				res.Skipped = append(res.Skipped, p.ID)
			case err != nil:
				errs = append(errs, err)
			default:
				res.Indexed = append(res.Indexed, e)
			}
			return nil
		})
	}
	g.Wait()

	log.Logger(ctx).Info("ingest finished", zap.Int("indexed", len(res.Indexed)),
		zap.Int("skipped", len(res.Skipped)), zap.Int("failed", len(errs)))
	if len(errs) > 0 {
		return res, asf.BatchError{Errors: errs}
	}
	return res, nil
}

func product(ctx context.Context, d Downloader, idx Indexer, p model.Product, opts Options) (catalog.Entry, error) {
	files := p.FilesWithSuffix("_" + opts.Polarization + ".tif")
	if len(files) == 0 {
		log.Logger(ctx).Warn("product not indexable", zap.String("product", p.ID), zap.String("polarization", opts.Polarization))
		return catalog.Entry{}, fmt.Errorf("%w: %s", ErrNoGeoTIFF, p.ID)
	}
	p.Files = files[:1]
	paths, err := d.DownloadFiles(ctx, p, opts.Dir, opts.Download...)
	if err != nil {
		return catalog.Entry{}, err
	}

	img := p.Image(opts.Dataset)
	img.Path = paths[0]
	img.Polarizations = []string{opts.Polarization}
	e, err := idx.IndexFile(ctx, catalog.Entry{
		Image: img,
		Units: opts.Units,
		Bands: []string{opts.Polarization},
	})
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("ingest: index %s: %w", p.ID, err)
	}
	return e, nil
}

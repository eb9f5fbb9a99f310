package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gosuri/uiprogress"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/example/go-sarslide/asf"
	"github.com/example/go-sarslide/asf/download"
	"github.com/example/go-sarslide/catalog"
	"github.com/example/go-sarslide/internal/ingest"
	"github.com/example/go-sarslide/internal/log"
)

func newFetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Download the period's scenes from ASF and index them into the catalog",
		Flags: []cli.Flag{
			periodFlag(),
			flightDirectionFlag(),
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Directory the GeoTIFFs are written to",
				Value: "scenes",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Products downloaded in parallel (defaults to asf.concurrency)",
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Download files again even when they are already on disk",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Disable the progress bars",
			},
		},
		Action: executeFetch,
	}
}

func executeFetch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, params, err := searchSetup(cfg, cmd)
	if err != nil {
		return err
	}
	products, err := client.SearchAll(ctx, params)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		fmt.Fprintln(os.Stdout, "no products found")
		return nil
	}

	dir := cmd.String("dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	cat, err := catalog.Open(ctx, cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()

	concurrency := cfg.ASF.Concurrency
	if n := cmd.Int("concurrency"); n > 0 {
		concurrency = n
	}
	var dl []asf.DownloadOption
	if cfg.ASF.PreferS3 {
		dl = append(dl, asf.WithS3())
	}
	if cmd.Bool("overwrite") {
		dl = append(dl, asf.WithOverwrite())
	}
	if !cmd.Bool("quiet") {
		bars := newProgressBars()
		uiprogress.Start()
		defer uiprogress.Stop()
		dl = append(dl, asf.WithProgress(bars.update))
	}

	res, err := ingest.Products(ctx, client, cat, products, ingest.Options{
		Dir:          dir,
		Dataset:      cfg.SAR.Dataset,
		Polarization: cfg.SAR.Band,
		Concurrency:  concurrency,
		Download:     dl,
	})
	for _, id := range res.Skipped {
		log.Logger(ctx).Warn("product has no GeoTIFF for the band", zap.String("product", id), zap.String("band", cfg.SAR.Band))
	}
	fmt.Fprintf(os.Stdout, "indexed %d of %d products into %s\n", len(res.Indexed), len(products), cfg.SAR.Dataset)
	return err
}

// progressBars keeps one bar per file name; the callback fires from several download
// goroutines.
type progressBars struct {
	mu   sync.Mutex
	bars map[string]*uiprogress.Bar
}

func newProgressBars() *progressBars {
	return &progressBars{bars: make(map[string]*uiprogress.Bar)}
}

func (p *progressBars) update(fp download.FileProgress) {
	if fp.Total <= 0 {
		return
	}
	p.mu.Lock()
	bar, ok := p.bars[fp.FileName]
	if !ok {
		name := fp.FileName
		bar = uiprogress.AddBar(100).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(*uiprogress.Bar) string { return name })
		p.bars[name] = bar
	}
	p.mu.Unlock()
	if fp.Skipped {
		bar.Set(100)
		return
	}
	bar.Set(int(fp.Downloaded * 100 / fp.Total))
}

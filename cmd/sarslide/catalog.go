package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/example/go-sarslide/catalog"
	"github.com/example/go-sarslide/collection"
)

func newIndexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Register a local GeoTIFF in the scene catalog",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dataset", Aliases: []string{"d"}, Usage: "Catalog dataset the image belongs to", Required: true},
			&cli.StringFlag{Name: "id", Usage: "Image identifier (defaults to the file name)"},
			&cli.StringFlag{Name: "time", Aliases: []string{"t"}, Usage: "Acquisition time (RFC 3339 or YYYY-MM-DD)", Required: true},
			&cli.StringFlag{Name: "orbit", Usage: "Orbit pass: ASCENDING or DESCENDING"},
			&cli.StringSliceFlag{Name: "pol", Usage: "Polarization carried by the file (repeatable)"},
			&cli.StringFlag{Name: "mode", Usage: "Instrument mode, e.g. IW"},
			&cli.FloatFlag{Name: "cloud", Usage: "Cloud cover percentage for optical scenes"},
			&cli.StringFlag{Name: "units", Usage: "Pixel units: db, linear or raw", Value: string(catalog.UnitsRaw)},
			&cli.StringSliceFlag{Name: "band", Usage: "Band name in file order (repeatable)"},
		},
		Action: executeIndex,
	}
}

func executeIndex(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("index expects exactly one FILE argument")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := filepath.Abs(cmd.Args().First())
	if err != nil {
		return err
	}
	acquired, err := collection.ParseTime(cmd.String("time"))
	if err != nil {
		return err
	}
	units, err := catalog.ParseUnits(cmd.String("units"))
	if err != nil {
		return err
	}
	id := cmd.String("id")
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	img := collection.Image{
		ID:            id,
		Dataset:       cmd.String("dataset"),
		Path:          path,
		Acquired:      acquired,
		Orbit:         collection.OrbitPass(strings.ToUpper(cmd.String("orbit"))),
		Polarizations: upper(cmd.StringSlice("pol")),
		Mode:          cmd.String("mode"),
		CloudPercent:  cmd.Float("cloud"),
		Properties:    map[string]string{"indexRun": uuid.NewString()},
	}

	cat, err := catalog.Open(ctx, cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()
	e, err := cat.IndexFile(ctx, catalog.Entry{Image: img, Units: units, Bands: cmd.StringSlice("band")})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "indexed %s into %s (bands %s, bounds %v)\n",
		e.ID, e.Dataset, strings.Join(e.Bands, ","), e.Footprint)
	return nil
}

func newScenesCommand() *cli.Command {
	return &cli.Command{
		Name:  "scenes",
		Usage: "List catalog datasets, or the images of one dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dataset", Aliases: []string{"d"}, Usage: "Dataset to list"},
			&cli.StringFlag{Name: "start", Usage: "Only images acquired at or after this time"},
			&cli.StringFlag{Name: "end", Usage: "Only images acquired before this time"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output format: text or json", Value: "text"},
		},
		Action: executeScenes,
	}
}

func executeScenes(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cat, err := catalog.Open(ctx, cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()

	dataset := cmd.String("dataset")
	if dataset == "" {
		counts, err := cat.Datasets(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATASET\tIMAGES")
		for _, name := range names {
			fmt.Fprintf(tw, "%s\t%d\n", name, counts[name])
		}
		return tw.Flush()
	}

	q := catalog.Query{Dataset: dataset}
	if v := cmd.String("start"); v != "" {
		if q.Window.Start, err = collection.ParseTime(v); err != nil {
			return err
		}
	}
	if v := cmd.String("end"); v != "" {
		if q.Window.End, err = collection.ParseTime(v); err != nil {
			return err
		}
	}
	entries, err := cat.List(ctx, q)
	if err != nil {
		return err
	}
	if strings.EqualFold(cmd.String("output"), "json") {
		return writeJSON(os.Stdout, entries)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACQUIRED\tPASS\tPOL\tUNITS\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, formatTime(e.Acquired), e.Orbit, strings.Join(e.Polarizations, "+"), e.Units, e.Path)
	}
	return tw.Flush()
}

func upper(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToUpper(v)
	}
	return out
}

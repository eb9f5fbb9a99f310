package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/example/go-sarslide/amplitude"
	"github.com/example/go-sarslide/catalog"
	"github.com/example/go-sarslide/export"
	"github.com/example/go-sarslide/internal/log"
	"github.com/example/go-sarslide/pipeline"
)

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run the landslide detection pipeline and export the result",
		Action: executeRun,
	}
}

func executeRun(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	dest, err := export.ParseDestination(cfg.Export.Destination, cfg.S3Settings())
	if err != nil {
		return err
	}
	cat, err := catalog.Open(ctx, cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()

	exporter := export.NewExporter(dest)
	rep, err := runPipeline(ctx, cat, exporter, params)
	if err != nil {
		return err
	}
	printReport(os.Stdout, rep)
	for _, task := range rep.Tasks {
		fmt.Fprintf(os.Stdout, "exported %s -> %s\n", task.Description, task.Location())
	}
	log.Logger(ctx).Info("run complete", zap.String("run", rep.RunID.String()), zap.Duration("elapsed", rep.Elapsed))
	return nil
}

// runPipeline runs the pipeline and waits for every export it submitted, including when the
// run fails part way. A run error takes precedence over export failures, which are then logged.
func runPipeline(ctx context.Context, src pipeline.Sources, exporter *export.Exporter, params pipeline.Params) (pipeline.Report, error) {
	rep, runErr := pipeline.Run(ctx, src, exporter, params)
	waitErr := exporter.Wait()
	if runErr != nil {
		if waitErr != nil {
			log.Logger(ctx).Error("exports failed", zap.Error(waitErr))
		}
		return rep, runErr
	}
	if waitErr != nil {
		return rep, fmt.Errorf("export failed: %w", waitErr)
	}
	return rep, nil
}

func printReport(w io.Writer, rep pipeline.Report) {
	fmt.Fprintf(w, "run %s on %s\n", rep.RunID, rep.Grid)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPOSITE\tSCENES")
	for _, k := range amplitude.Keys {
		fmt.Fprintf(tw, "%s\t%d\n", k, rep.Counts[k])
	}
	tw.Flush()
	for _, k := range rep.Empty() {
		fmt.Fprintf(w, "warning: %s composite is empty; change is no-data there\n", k)
	}
	if rep.OpticalCounts != nil {
		fmt.Fprintf(w, "optical scenes: pre %d, post %d\n",
			rep.OpticalCounts[amplitude.Pre], rep.OpticalCounts[amplitude.Post])
	}
	fmt.Fprintf(w, "DEM tiles: %d\n", rep.DEMTiles)
	fmt.Fprintf(w, "change: %d valid pixels, mean %.2f dB, range [%.2f, %.2f]\n",
		rep.ChangeStats.Count, rep.ChangeStats.Mean, rep.ChangeStats.Min, rep.ChangeStats.Max)
	fmt.Fprintf(w, "after terrain masks: %d valid pixels\n", rep.MaskedStats.Count)
}

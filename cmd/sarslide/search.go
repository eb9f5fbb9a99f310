package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/example/go-sarslide/asf"
	"github.com/example/go-sarslide/asf/model"
	"github.com/example/go-sarslide/asf/search"
	"github.com/example/go-sarslide/internal/config"
)

func periodFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "period",
		Aliases: []string{"p"},
		Usage:   "Acquisition period to query: pre or post",
		Value:   "post",
	}
}

func flightDirectionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "flight-direction",
		Usage: "Restrict to ASCENDING or DESCENDING passes",
	}
}

func newSearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "List the ASF scenes covering the AOI in one period",
		Flags: []cli.Flag{
			periodFlag(),
			flightDirectionFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format: text or json",
				Value:   "text",
			},
		},
		Action: executeSearch,
	}
}

func executeSearch(ctx context.Context, cmd *cli.Command) error {
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
	switch strings.ToLower(cmd.String("output")) {
	case "json":
		return writeJSON(os.Stdout, products)
	case "text", "":
		return writeTable(os.Stdout, products)
	default:
		return fmt.Errorf("unknown output format %q", cmd.String("output"))
	}
}

// searchSetup builds the ASF client and the query for the period named on the command line.
func searchSetup(cfg *config.Config, cmd *cli.Command) (*asf.Client, search.Params, error) {
	aoi, err := cfg.LoadAOI()
	if err != nil {
		return nil, search.Params{}, err
	}
	windows, err := cfg.Windows()
	if err != nil {
		return nil, search.Params{}, err
	}
	w := windows[1]
	switch strings.ToLower(cmd.String("period")) {
	case "pre":
		w = windows[0]
	case "post", "":
	default:
		return nil, search.Params{}, fmt.Errorf("unknown period %q (want pre or post)", cmd.String("period"))
	}
	params := cfg.SearchParams(aoi, w)
	if fd := cmd.String("flight-direction"); fd != "" {
		params.FlightDirection = search.FlightDirection(strings.ToUpper(fd))
	}

	client, err := asf.NewClient(cfg.ClientOptions()...)
	if err != nil {
		return nil, search.Params{}, err
	}
	return client, params, nil
}

func writeTable(w io.Writer, products []model.Product) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART\tPASS\tPATH\tPOL\tLEVEL\tSIZE(MB)")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%.1f\n",
			p.ID,
			formatTime(p.StartTime),
			p.FlightDirection,
			p.PathNumber,
			p.Polarization,
			p.ProcessingLevel,
			p.SizeMB,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d products\n", len(products))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

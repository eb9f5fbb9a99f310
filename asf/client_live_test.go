//go:build live

package asf

import (
	"context"
	"testing"
	"time"

	"github.com/example/go-sarslide/asf/search"
	"github.com/example/go-sarslide/collection"
)

const hiroshimaWKT = "POLYGON((132.64 34.38,132.64 34.23,132.83 34.23,132.83 34.38,132.64 34.38))"

func TestLiveSearchHiroshimaGRD(t *testing.T) {
	if testing.Short() {
		t.Skip("live search requires network access")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	start := time.Date(2018, 7, 9, 23, 59, 0, 0, time.UTC)
	end := time.Date(2018, 9, 1, 0, 0, 0, 0, time.UTC)
	params := search.From(search.Sentinel1(search.ProcessingLevelGRDHD, "VH")).
		IntersectsWith(hiroshimaWKT).
		StartTime(start).
		EndTime(end).
		MaxResults(20).
		Build()

	products, err := client.SearchAll(ctx, params)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(products) == 0 {
		t.Fatal("expected Sentinel-1 GRD scenes over Hiroshima")
	}
	for _, p := range products {
		if p.StartTime.Before(start) || p.StartTime.After(end) {
			t.Fatalf("product %s acquired %s outside [%s, %s]", p.ID, p.StartTime, start, end)
		}
		img := p.Image("S1_GRD")
		if img.Orbit != collection.Ascending && img.Orbit != collection.Descending {
			t.Fatalf("product %s has no orbit pass: %q", p.ID, p.FlightDirection)
		}
		if !img.HasPolarization("VH") {
			t.Fatalf("product %s lacks VH: %q", p.ID, p.Polarization)
		}
		if img.Footprint.IsEmpty() {
			t.Fatalf("product %s has no footprint", p.ID)
		}
	}
}

func TestLiveSearchOperaRTCByFlightDirection(t *testing.T) {
	if testing.Short() {
		t.Skip("live search requires network access")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	params := search.From(search.Sentinel1(search.ProcessingLevelRTC, "VH")).
		Dataset(search.DatasetOperaS1).
		IntersectsWith(hiroshimaWKT).
		FlightDirection(search.FlightDirectionAscending).
		MaxResults(5).
		Build()

	products, err := client.SearchAll(ctx, params)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	for _, p := range products {
		if p.FlightDirection != string(search.FlightDirectionAscending) {
			t.Fatalf("product %s is %s", p.ID, p.FlightDirection)
		}
		if len(p.FilesWithSuffix("_VH.tif")) == 0 {
			t.Fatalf("product %s lists no VH GeoTIFF", p.ID)
		}
	}
}

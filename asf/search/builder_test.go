package search

import (
	"testing"
	"time"
)

func TestBuilderSetsFields(t *testing.T) {
	start := time.Date(2018, 7, 9, 23, 59, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	params := ParamsBuilder().
		Platform(PlatformSentinel1B).
		BeamMode(BeamModeIW).
		Polarization("VH").
		ProcessingLevel(ProcessingLevelGRDHD).
		FlightDirection(FlightDirectionDescending).
		RelativeOrbit(163).
		StartTime(start).
		EndTime(end).
		IntersectsWith("POLYGON((132.64 34.38,132.64 34.23,132.83 34.23,132.83 34.38,132.64 34.38))").
		MaxResults(10).
		Set("k", "v").
		Add("k", "v2").
		Build()

	if params.Platform != PlatformSentinel1B {
		t.Fatalf("platform mismatch")
	}
	if params.BeamMode != BeamModeIW {
		t.Fatalf("beam mode mismatch")
	}
	if params.Polarization != "VH" || params.ProcessingLevel != ProcessingLevelGRDHD {
		t.Fatalf("string fields not set")
	}
	if params.FlightDirection != FlightDirectionDescending {
		t.Fatalf("flight direction not set")
	}
	if params.RelativeOrbit != 163 {
		t.Fatalf("relative orbit not set")
	}
	if !params.Start.Equal(start) || !params.End.Equal(end) {
		t.Fatalf("time fields mismatch")
	}
	if params.MaxResults != 10 {
		t.Fatalf("max results not set")
	}
	if got := params.Additional["k"]; len(got) != 2 || got[0] != "v" || got[1] != "v2" {
		t.Fatalf("additional values mismatch: %#v", got)
	}
}

func TestFromKeepsParams(t *testing.T) {
	base := Sentinel1(ProcessingLevelRTC, "VH")
	params := From(base).Dataset(DatasetOperaS1).Build()
	if params.Platform != PlatformSentinel1 || params.BeamMode != BeamModeIW || params.Polarization != "VH" {
		t.Fatalf("base params lost: %+v", params)
	}
	if params.Dataset != DatasetOperaS1 || params.ProcessingLevel != ProcessingLevelRTC {
		t.Fatalf("dataset or level not set: %+v", params)
	}
}

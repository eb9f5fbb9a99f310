package model

import (
	"strings"
	"testing"
	"time"

	"github.com/example/go-sarslide/collection"
)

const operaResponse = `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature",
    "geometry": {"type": "Polygon", "coordinates": [[[132.1,34.0],[133.4,34.0],[133.4,35.1],[132.1,35.1],[132.1,34.0]]]},
    "properties": {
      "sceneName": "OPERA_L2_RTC-S1_T163-348735-IW2_20180706T092219Z",
      "fileID": "OPERA_L2_RTC-S1_T163-348735-IW2_20180706T092219Z-RTC",
      "fileName": "OPERA_L2_RTC-S1_T163-348735-IW2_20180706T092219Z_VV.tif",
      "url": "https://datapool.asf.alaska.edu/RTC/OPERA-S1/OPERA_L2_RTC-S1_T163-348735-IW2_20180706T092219Z_VV.tif",
      "additionalUrls": [
        "https://datapool.asf.alaska.edu/RTC/OPERA-S1/OPERA_L2_RTC-S1_T163-348735-IW2_20180706T092219Z_VH.tif",
        "https://datapool.asf.alaska.edu/RTC/OPERA-S1/OPERA_L2_RTC-S1_T163-348735-IW2_20180706T092219Z_mask.tif"
      ],
      "s3Urls": ["s3://asf-cumulus-prod-opera-products/OPERA_L2_RTC-S1/VV.tif"],
      "platform": "Sentinel-1A",
      "beamModeType": "IW",
      "polarization": "VV+VH",
      "processingLevel": "RTC",
      "flightDirection": "descending",
      "pathNumber": "163",
      "frameNumber": 348735,
      "orbit": 22679,
      "startTime": "2018-07-06T09:22:19Z",
      "stopTime": "2018-07-06T09:22:22.000Z",
      "bytes": "1048576",
      "md5sum": "ABC123",
      "browse": null
    }
  }]
}`

func TestParseFeatureCollection(t *testing.T) {
	products, err := ParseFeatureCollection(strings.NewReader(operaResponse))
	if err != nil {
		t.Fatalf("ParseFeatureCollection: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	p := products[0]
	if p.ID != "OPERA_L2_RTC-S1_T163-348735-IW2_20180706T092219Z" {
		t.Fatalf("unexpected id %q", p.ID)
	}
	if p.PathNumber != 163 || p.FrameNumber != 348735 || p.Orbit != 22679 {
		t.Fatalf("numeric fields not decoded: %+v", p)
	}
	if p.Bytes != 1048576 || p.SizeMB != 1 {
		t.Fatalf("size not decoded: bytes=%d sizeMB=%g", p.Bytes, p.SizeMB)
	}
	if p.FlightDirection != "DESCENDING" || p.BeamMode != "IW" {
		t.Fatalf("unexpected direction/mode: %s %s", p.FlightDirection, p.BeamMode)
	}
	if !p.StopTime.Equal(time.Date(2018, 7, 6, 9, 22, 22, 0, time.UTC)) {
		t.Fatalf("unexpected stop time %s", p.StopTime)
	}
	if p.BrowseURL != "" {
		t.Fatalf("null browse should give an empty URL")
	}
	if len(p.Files) != 3 {
		t.Fatalf("expected main file plus two additional files, got %+v", p.Files)
	}
	if p.Files[0].Checksum != "ABC123" || p.Files[0].ChecksumType != "md5" {
		t.Fatalf("main file checksum missing: %+v", p.Files[0])
	}
	if p.Files[1].Checksum != "" {
		t.Fatalf("additional files carry no checksum: %+v", p.Files[1])
	}

	vh := p.FilesWithSuffix("_vh.tif")
	if len(vh) != 1 || !strings.HasSuffix(vh[0].URL, "_VH.tif") {
		t.Fatalf("unexpected VH files %+v", vh)
	}
}

func TestProductImage(t *testing.T) {
	products, err := ParseFeatureCollection(strings.NewReader(operaResponse))
	if err != nil {
		t.Fatalf("ParseFeatureCollection: %v", err)
	}
	img := products[0].Image("S1_RTC")
	if img.Dataset != "S1_RTC" || img.Orbit != collection.Descending || img.Mode != "IW" {
		t.Fatalf("unexpected image %+v", img)
	}
	if !img.HasPolarization("VH") || !img.HasPolarization("VV") {
		t.Fatalf("polarizations not split: %v", img.Polarizations)
	}
	if img.Footprint.Min[0] != 132.1 || img.Footprint.Max[1] != 35.1 {
		t.Fatalf("unexpected footprint %v", img.Footprint)
	}
	if len(img.Outline) != 1 || len(img.Outline[0]) != 1 || len(img.Outline[0][0]) < 4 {
		t.Fatalf("footprint polygon not kept as outline: %v", img.Outline)
	}
	if img.Properties["pathNumber"] != "163" {
		t.Fatalf("unexpected properties %v", img.Properties)
	}
}

func TestParseTime(t *testing.T) {
	cases := []string{
		"2023-01-01T00:00:00Z",
		"2023-01-01T00:00:00.000Z",
		"2023-01-01T00:00:00.123456",
		time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, tc := range cases {
		if got := ParseTime(tc); got.IsZero() {
			t.Fatalf("ParseTime failed for %s", tc)
		}
	}
	if !ParseTime("yesterday").IsZero() {
		t.Fatalf("expected zero time for garbage input")
	}
}

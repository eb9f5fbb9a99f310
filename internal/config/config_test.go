package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/go-sarslide/asf"
	"github.com/example/go-sarslide/cloudmask"
	"github.com/example/go-sarslide/collection"
	"github.com/example/go-sarslide/export"
	"github.com/example/go-sarslide/raster"
)

const hiroshima = `
aoi:
  coordinates:
    - [132.64, 34.38]
    - [132.64, 34.23]
    - [132.83, 34.23]
    - [132.83, 34.38]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, hiroshima))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}

	if p.Terrain.SlopeThreshold != 0.5 || p.Terrain.CurvatureThreshold != -0.005 {
		t.Errorf("unexpected terrain thresholds: %+v", p.Terrain)
	}
	if p.Terrain.Smoothing != (raster.KernelSpec{Radius: 120, Sigma: 60, Units: raster.UnitsMeters, Normalize: true}) {
		t.Errorf("unexpected DEM kernel: %+v", p.Terrain.Smoothing)
	}
	if p.SAR.Smooth {
		t.Errorf("SAR smoothing must default to off")
	}
	if p.SAR.EdgeThreshold != -30 || p.SAR.Band != "VH" || p.SAR.Mode != "IW" || p.SAR.Concurrency != 2 {
		t.Errorf("unexpected SAR params: %+v", p.SAR)
	}
	wantPre := time.Date(2015, 1, 1, 23, 59, 0, 0, time.UTC)
	if !p.Pre.Start.Equal(wantPre) {
		t.Errorf("pre start %s want %s", p.Pre.Start, wantPre)
	}
	if p.Optical.Mask.QABand != cloudmask.Sentinel2.QABand || p.Optical.MaxCloudPercent != 10 {
		t.Errorf("unexpected optical params: %+v", p.Optical)
	}
	if p.Output.Description != "SAR_amplitude_change" || p.Scale != 10 || p.Output.Unmasked {
		t.Errorf("unexpected output params: %+v scale %g", p.Output, p.Scale)
	}
	if cfg.Catalog.Path != "./data/catalog.db" || cfg.ASF.Timeout != time.Minute {
		t.Errorf("unexpected catalog/asf config: %+v %+v", cfg.Catalog, cfg.ASF)
	}
}

func TestLoadOverrides(t *testing.T) {
	content := hiroshima + `
terrain:
  slope_threshold: 2
sar:
  smoothing:
    enabled: true
    radius: 3
    sigma: 1
    units: pixels
export:
  destination: s3://bucket/runs
  unmasked: true
s3:
  region: ap-northeast-1
  use_path_style: true
logging:
  level: debug
  format: console
`
	t.Setenv("SARSLIDE_SAR_EDGE_THRESHOLD", "-25")
	t.Setenv("SARSLIDE_S3_ACCESS_KEY_ID", "AKIA")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if p.Terrain.SlopeThreshold != 2 {
		t.Errorf("slope threshold %g want 2", p.Terrain.SlopeThreshold)
	}
	if !p.SAR.Smooth || p.SAR.Smoothing.Units != raster.UnitsPixels || p.SAR.Smoothing.Radius != 3 {
		t.Errorf("unexpected SAR smoothing: %+v", p.SAR.Smoothing)
	}
	if p.SAR.EdgeThreshold != -25 {
		t.Errorf("env override ignored: edge threshold %g", p.SAR.EdgeThreshold)
	}
	if !p.Output.Unmasked {
		t.Errorf("unmasked export not enabled")
	}
	s3 := cfg.S3Settings()
	if s3.AccessKeyID != "AKIA" || s3.Region != "ap-northeast-1" || !s3.UsePathStyle {
		t.Errorf("unexpected s3 settings: %+v", s3)
	}
}

func TestAOIFromGeoJSON(t *testing.T) {
	dir := t.TempDir()
	geojson := `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[132.64,34.38],[132.64,34.23],[132.83,34.23],[132.83,34.38],[132.64,34.38]]]}}`
	aoiPath := filepath.Join(dir, "aoi.geojson")
	if err := os.WriteFile(aoiPath, []byte(geojson), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(writeConfig(t, "aoi:\n  file: "+aoiPath+"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	aoi, err := cfg.LoadAOI()
	if err != nil {
		t.Fatalf("LoadAOI failed: %v", err)
	}
	if b := aoi.Bound(); b.Min[0] != 132.64 || b.Max[1] != 34.38 {
		t.Errorf("unexpected bound %v", b)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]string{
		"missing aoi":      "logging:\n  level: info\n",
		"bad format":       hiroshima + "export:\n  format: PNG\n",
		"overlap":          hiroshima + "periods:\n  post:\n    start: 2018-01-01T00:00\n",
		"bad preset":       hiroshima + "optical:\n  preset: modis\n",
		"bad level":        hiroshima + "logging:\n  level: loud\n",
		"open short ring":  "aoi:\n  coordinates:\n    - [132.64, 34.38]\n    - [132.64, 34.23]\n",
		"bad concurrency":  hiroshima + "sar:\n  concurrency: 0\n",
		"bad cloud filter": hiroshima + "optical:\n  max_cloud_percent: 0\n",
	}
	for name, content := range cases {
		cfg, err := Load(writeConfig(t, content))
		if err != nil {
			t.Fatalf("%s: Load failed: %v", name, err)
		}
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateSentinels(t *testing.T) {
	cfg, err := Load(writeConfig(t, hiroshima+"export:\n  format: PNG\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, export.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	cfg, err = Load(writeConfig(t, hiroshima+"periods:\n  pre:\n    end: \"2014-01-01\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := cfg.Params(); !errors.Is(err, collection.ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestASFSettings(t *testing.T) {
	cfg, err := Load(writeConfig(t, hiroshima+"asf:\n  username: alice\n  password: secret\n  timeout: 10s\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if _, err := asf.NewClient(cfg.ClientOptions()...); err != nil {
		t.Fatalf("client options rejected: %v", err)
	}
	aoi, err := cfg.LoadAOI()
	if err != nil {
		t.Fatalf("LoadAOI failed: %v", err)
	}
	windows, err := cfg.Windows()
	if err != nil {
		t.Fatalf("Windows failed: %v", err)
	}
	q, err := cfg.SearchParams(aoi, windows[1]).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if q.Get("dataset") != "OPERA-S1" || q.Get("processingLevel") != "RTC" || q.Get("polarization") != "VH" {
		t.Errorf("unexpected query %v", q)
	}
	if q.Get("start") != "2018-07-09T23:59:00Z" || q.Get("maxResults") != "250" {
		t.Errorf("unexpected window or page size %v", q)
	}
	if !strings.HasPrefix(q.Get("intersectsWith"), "POLYGON") {
		t.Errorf("AOI not encoded as WKT: %q", q.Get("intersectsWith"))
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/go-sarslide/amplitude"
	"github.com/example/go-sarslide/asf"
	"github.com/example/go-sarslide/asf/search"
	"github.com/example/go-sarslide/cloudmask"
	"github.com/example/go-sarslide/collection"
	"github.com/example/go-sarslide/export"
	"github.com/example/go-sarslide/geom"
	"github.com/example/go-sarslide/pipeline"
	"github.com/example/go-sarslide/raster"
	"github.com/example/go-sarslide/terrain"
)

// EnvPrefix prefixes environment overrides: SARSLIDE_SAR_EDGE_THRESHOLD overrides
// sar.edge_threshold.
const EnvPrefix = "SARSLIDE"

// Config represents the complete application configuration
type Config struct {
	AOI     AOIConfig     `mapstructure:"aoi"`
	Terrain TerrainConfig `mapstructure:"terrain"`
	Periods PeriodsConfig `mapstructure:"periods"`
	SAR     SARConfig     `mapstructure:"sar"`
	Optical OpticalConfig `mapstructure:"optical"`
	Export  ExportConfig  `mapstructure:"export"`
	S3      S3Config      `mapstructure:"s3"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	ASF     ASFConfig     `mapstructure:"asf"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AOIConfig holds the area of interest, either as a literal ring or a GeoJSON file.
type AOIConfig struct {
	Coordinates [][]float64 `mapstructure:"coordinates"`
	File        string      `mapstructure:"file"`
}

// KernelConfig describes a Gaussian smoothing kernel.
type KernelConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Radius    float64 `mapstructure:"radius"`
	Sigma     float64 `mapstructure:"sigma"`
	Units     string  `mapstructure:"units"`
	Normalize bool    `mapstructure:"normalize"`
}

// TerrainConfig holds the DEM source and the terrain mask thresholds.
type TerrainConfig struct {
	DEMDataset     string       `mapstructure:"dem_dataset"`
	DEMBand        string       `mapstructure:"dem_band"`
	SlopeThreshold float64      `mapstructure:"slope_threshold"`
	CurvThreshold  float64      `mapstructure:"curv_threshold"`
	Smoothing      KernelConfig `mapstructure:"smoothing"`
}

// WindowConfig is a [start, end) time window.
type WindowConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// PeriodsConfig holds the pre-event and post-event windows.
type PeriodsConfig struct {
	Pre  WindowConfig `mapstructure:"pre"`
	Post WindowConfig `mapstructure:"post"`
}

// SARConfig holds the radar composite settings.
type SARConfig struct {
	Dataset       string       `mapstructure:"dataset"`
	Band          string       `mapstructure:"band"`
	Polarization  string       `mapstructure:"polarization"`
	Mode          string       `mapstructure:"mode"`
	EdgeThreshold float64      `mapstructure:"edge_threshold"`
	Smoothing     KernelConfig `mapstructure:"smoothing"`
	Concurrency   int          `mapstructure:"concurrency"`
}

// OpticalConfig holds the cloud-masked optical composite settings.
type OpticalConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Export          bool     `mapstructure:"export"`
	Dataset         string   `mapstructure:"dataset"`
	Preset          string   `mapstructure:"preset"`
	MaxCloudPercent float64  `mapstructure:"max_cloud_percent"`
	Bands           []string `mapstructure:"bands"`
}

// ExportConfig holds the output settings.
type ExportConfig struct {
	Description string  `mapstructure:"description"`
	Destination string  `mapstructure:"destination"`
	Scale       float64 `mapstructure:"scale"`
	Format      string  `mapstructure:"format"`
	Unmasked    bool    `mapstructure:"unmasked"`
}

// S3Config holds the credentials of an s3:// export destination.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// CatalogConfig holds the scene catalog location.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// ASFConfig holds the ASF search and download settings.
type ASFConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Token            string        `mapstructure:"token"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxResults       int           `mapstructure:"max_results"`
	Dataset          string        `mapstructure:"dataset"`
	ProcessingLevel  string        `mapstructure:"processing_level"`
	Concurrency      int           `mapstructure:"concurrency"`
	PreferS3         bool          `mapstructure:"prefer_s3"`
	S3CredentialsURL string        `mapstructure:"s3_credentials_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An empty path uses the
// defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("aoi.file", "")

	v.SetDefault("terrain.dem_dataset", "SRTMGL1_003")
	v.SetDefault("terrain.dem_band", "elevation")
	v.SetDefault("terrain.slope_threshold", 0.5)
	v.SetDefault("terrain.curv_threshold", -0.005)
	v.SetDefault("terrain.smoothing.radius", 120)
	v.SetDefault("terrain.smoothing.sigma", 60)
	v.SetDefault("terrain.smoothing.units", "meters")
	v.SetDefault("terrain.smoothing.normalize", true)

	v.SetDefault("periods.pre.start", "2015-01-01T23:59")
	v.SetDefault("periods.pre.end", "2018-06-29T23:59")
	v.SetDefault("periods.post.start", "2018-07-09T23:59")
	v.SetDefault("periods.post.end", "2020-05-29T23:59")

	v.SetDefault("sar.dataset", "S1_GRD")
	v.SetDefault("sar.band", "VH")
	v.SetDefault("sar.polarization", "VH")
	v.SetDefault("sar.mode", "IW")
	v.SetDefault("sar.edge_threshold", -30.0)
	v.SetDefault("sar.smoothing.enabled", false)
	v.SetDefault("sar.smoothing.radius", 50)
	v.SetDefault("sar.smoothing.sigma", 20)
	v.SetDefault("sar.smoothing.units", "meters")
	v.SetDefault("sar.smoothing.normalize", true)
	v.SetDefault("sar.concurrency", 2)

	v.SetDefault("optical.enabled", true)
	v.SetDefault("optical.export", false)
	v.SetDefault("optical.dataset", "S2")
	v.SetDefault("optical.preset", "sentinel2")
	v.SetDefault("optical.max_cloud_percent", 10.0)
	v.SetDefault("optical.bands", []string{"B4", "B3", "B2"})

	v.SetDefault("export.description", "SAR_amplitude_change")
	v.SetDefault("export.destination", "./output")
	v.SetDefault("export.scale", 10.0)
	v.SetDefault("export.format", export.FormatGeoTIFF)
	v.SetDefault("export.unmasked", false)

	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.session_token", "")
	v.SetDefault("s3.use_path_style", false)

	v.SetDefault("catalog.path", "./data/catalog.db")

	v.SetDefault("asf.base_url", "https://api.daac.asf.alaska.edu")
	v.SetDefault("asf.token", "")
	v.SetDefault("asf.username", "")
	v.SetDefault("asf.password", "")
	v.SetDefault("asf.timeout", "60s")
	v.SetDefault("asf.max_results", 250)
	v.SetDefault("asf.dataset", search.DatasetOperaS1)
	v.SetDefault("asf.processing_level", search.ProcessingLevelRTC)
	v.SetDefault("asf.concurrency", 2)
	v.SetDefault("asf.prefer_s3", false)
	v.SetDefault("asf.s3_credentials_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if len(c.AOI.Coordinates) == 0 && c.AOI.File == "" {
		return errors.New("aoi.coordinates or aoi.file is required")
	}
	if len(c.AOI.Coordinates) > 0 && c.AOI.File != "" {
		return errors.New("aoi.coordinates and aoi.file are mutually exclusive")
	}
	if c.Terrain.DEMDataset == "" || c.Terrain.DEMBand == "" {
		return errors.New("terrain.dem_dataset and terrain.dem_band are required")
	}
	if c.SAR.Dataset == "" {
		return errors.New("sar.dataset is required")
	}
	if c.SAR.Concurrency < 1 {
		return errors.New("sar.concurrency must be at least 1")
	}
	if c.Optical.Enabled {
		if _, err := cloudmask.Preset(c.Optical.Preset); err != nil {
			return fmt.Errorf("optical.preset: %w", err)
		}
		if c.Optical.MaxCloudPercent <= 0 || c.Optical.MaxCloudPercent > 100 {
			return errors.New("optical.max_cloud_percent must be in (0, 100]")
		}
	}
	if c.Export.Scale <= 0 {
		return errors.New("export.scale must be positive")
	}
	if !strings.EqualFold(c.Export.Format, export.FormatGeoTIFF) {
		return fmt.Errorf("export.format: %w: %q", export.ErrUnsupportedFormat, c.Export.Format)
	}
	if c.Export.Description == "" || c.Export.Destination == "" {
		return errors.New("export.description and export.destination are required")
	}
	if c.Catalog.Path == "" {
		return errors.New("catalog.path is required")
	}
	if c.ASF.MaxResults < 1 {
		return errors.New("asf.max_results must be at least 1")
	}
	if c.ASF.Concurrency < 1 {
		return errors.New("asf.concurrency must be at least 1")
	}
	if c.ASF.Timeout <= 0 {
		return errors.New("asf.timeout must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, console")
	}

	if _, err := c.Windows(); err != nil {
		return err
	}
	if _, err := c.LoadAOI(); err != nil {
		return err
	}
	return nil
}

// LoadAOI builds the AOI from the literal ring or the GeoJSON file.
func (c *Config) LoadAOI() (geom.AOI, error) {
	if c.AOI.File != "" {
		data, err := os.ReadFile(c.AOI.File)
		if err != nil {
			return geom.AOI{}, fmt.Errorf("aoi.file: %w", err)
		}
		aoi, err := geom.ParseGeoJSON(data)
		if err != nil {
			return geom.AOI{}, fmt.Errorf("aoi.file %s: %w", c.AOI.File, err)
		}
		return aoi, nil
	}
	ring := make([][2]float64, len(c.AOI.Coordinates))
	for i, pt := range c.AOI.Coordinates {
		if len(pt) != 2 {
			return geom.AOI{}, fmt.Errorf("aoi.coordinates[%d]: want [lon, lat], got %v", i, pt)
		}
		ring[i] = [2]float64{pt[0], pt[1]}
	}
	aoi, err := geom.NewAOI(ring)
	if err != nil {
		return geom.AOI{}, fmt.Errorf("aoi.coordinates: %w", err)
	}
	return aoi, nil
}

// Windows parses the pre-event and post-event windows and checks their order.
func (c *Config) Windows() ([2]collection.TimeWindow, error) {
	pre, err := collection.ParseWindow(c.Periods.Pre.Start, c.Periods.Pre.End)
	if err != nil {
		return [2]collection.TimeWindow{}, fmt.Errorf("periods.pre: %w", err)
	}
	post, err := collection.ParseWindow(c.Periods.Post.Start, c.Periods.Post.End)
	if err != nil {
		return [2]collection.TimeWindow{}, fmt.Errorf("periods.post: %w", err)
	}
	if err := collection.CheckSequence(pre, post); err != nil {
		return [2]collection.TimeWindow{}, fmt.Errorf("periods: %w", err)
	}
	return [2]collection.TimeWindow{pre, post}, nil
}

func (k KernelConfig) spec() (raster.KernelSpec, error) {
	units, err := raster.ParseUnits(k.Units)
	if err != nil {
		return raster.KernelSpec{}, err
	}
	return raster.KernelSpec{Radius: k.Radius, Sigma: k.Sigma, Units: units, Normalize: k.Normalize}, nil
}

// Params converts the configuration into validated pipeline parameters.
func (c *Config) Params() (pipeline.Params, error) {
	if err := c.Validate(); err != nil {
		return pipeline.Params{}, err
	}
	aoi, err := c.LoadAOI()
	if err != nil {
		return pipeline.Params{}, err
	}
	windows, err := c.Windows()
	if err != nil {
		return pipeline.Params{}, err
	}

	demKernel, err := c.Terrain.Smoothing.spec()
	if err != nil {
		return pipeline.Params{}, fmt.Errorf("terrain.smoothing: %w", err)
	}
	sarKernel, err := c.SAR.Smoothing.spec()
	if err != nil {
		return pipeline.Params{}, fmt.Errorf("sar.smoothing: %w", err)
	}

	p := pipeline.Params{
		AOI:        aoi,
		Pre:        windows[0],
		Post:       windows[1],
		Scale:      c.Export.Scale,
		DEMDataset: c.Terrain.DEMDataset,
		DEMBand:    c.Terrain.DEMBand,
		Terrain: terrain.Params{
			SlopeThreshold:     c.Terrain.SlopeThreshold,
			CurvatureThreshold: c.Terrain.CurvThreshold,
			Smoothing:          demKernel,
		},
		SARDataset: c.SAR.Dataset,
		SAR: amplitude.Params{
			Band:          c.SAR.Band,
			Polarization:  c.SAR.Polarization,
			Mode:          c.SAR.Mode,
			EdgeThreshold: c.SAR.EdgeThreshold,
			Smooth:        c.SAR.Smoothing.Enabled,
			Smoothing:     sarKernel,
			Concurrency:   c.SAR.Concurrency,
		},
		Optical: pipeline.Optical{
			Enabled:         c.Optical.Enabled,
			Export:          c.Optical.Export,
			Dataset:         c.Optical.Dataset,
			MaxCloudPercent: c.Optical.MaxCloudPercent,
			Bands:           c.Optical.Bands,
		},
		Output: pipeline.Output{
			Description: c.Export.Description,
			Format:      export.FormatGeoTIFF,
			Unmasked:    c.Export.Unmasked,
		},
	}
	if c.Optical.Enabled {
		if p.Optical.Mask, err = cloudmask.Preset(c.Optical.Preset); err != nil {
			return pipeline.Params{}, err
		}
	}
	if err := p.Validate(); err != nil {
		return pipeline.Params{}, err
	}
	return p, nil
}

// S3Settings returns the S3 settings of the export destination.
func (c *Config) S3Settings() export.S3Config {
	return export.S3Config{
		Region:          c.S3.Region,
		Endpoint:        c.S3.Endpoint,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		SessionToken:    c.S3.SessionToken,
		UsePathStyle:    c.S3.UsePathStyle,
	}
}

// ClientOptions returns the ASF client options for the configured endpoint and credentials.
func (c *Config) ClientOptions() []asf.Option {
	opts := []asf.Option{
		asf.WithBaseURL(c.ASF.BaseURL),
		asf.WithTimeout(c.ASF.Timeout),
	}
	if c.ASF.Token != "" {
		opts = append(opts, asf.WithAuthToken(c.ASF.Token))
	}
	if c.ASF.Username != "" {
		opts = append(opts, asf.WithBasicAuth(c.ASF.Username, c.ASF.Password))
	}
	if c.ASF.S3CredentialsURL != "" {
		opts = append(opts, asf.WithS3CredentialsURL(c.ASF.S3CredentialsURL))
	}
	return opts
}

// SearchParams returns the ASF query for scenes of the configured polarization over the AOI
// within w.
func (c *Config) SearchParams(aoi geom.AOI, w collection.TimeWindow) search.Params {
	return search.From(search.Sentinel1(c.ASF.ProcessingLevel, c.SAR.Band)).
		Dataset(c.ASF.Dataset).
		IntersectsWith(aoi.WKT()).
		StartTime(w.Start).
		EndTime(w.End).
		MaxResults(c.ASF.MaxResults).
		Build()
}

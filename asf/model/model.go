// Package model holds the scene records returned by the ASF search API and their conversion
// into collection descriptors.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/example/go-sarslide/collection"
)

// Product represents an individual scene/granule returned from the search API.
type Product struct {
	ID              string
	SceneName       string
	FileID          string
	FileName        string
	DownloadURL     string
	AdditionalURLs  []string
	S3URLs          []string
	ProcessingLevel string
	Platform        string
	BeamMode        string
	Polarization    string
	FlightDirection string
	PathNumber      int
	FrameNumber     int
	Orbit           int
	StartTime       time.Time
	StopTime        time.Time
	Bytes           int64
	SizeMB          float64
	MD5Sum          string
	BrowseURL       string
	Footprint       orb.Geometry
	Files           []File
}

// File describes a downloadable file associated with a product.
type File struct {
	URL          string
	Size         int64
	Checksum     string
	ChecksumType string
	Name         string
}

// Polarizations splits the product polarization ("VV+VH", "VV,VH", "VH") into channel names.
func (p Product) Polarizations() []string {
	fields := strings.FieldsFunc(p.Polarization, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToUpper(f))
	}
	return out
}

// FilesWithSuffix returns the files whose name ends in suffix, case-insensitively.
func (p Product) FilesWithSuffix(suffix string) []File {
	suffix = strings.ToLower(suffix)
	var out []File
	for _, f := range p.Files {
		if strings.HasSuffix(strings.ToLower(f.Name), suffix) {
			out = append(out, f)
		}
	}
	return out
}

// Image describes the product as a collection image of dataset, keeping the footprint polygon
// as the outline. Path is left empty; it is set once a file of the product is on disk.
func (p Product) Image(dataset string) collection.Image {
	img := collection.Image{
		ID:            p.ID,
		Dataset:       dataset,
		Acquired:      p.StartTime,
		Orbit:         collection.OrbitPass(strings.ToUpper(p.FlightDirection)),
		Polarizations: p.Polarizations(),
		Mode:          p.BeamMode,
		Properties: map[string]string{
			"platform":        p.Platform,
			"processingLevel": p.ProcessingLevel,
			"pathNumber":      strconv.Itoa(p.PathNumber),
			"frameNumber":     strconv.Itoa(p.FrameNumber),
			"orbit":           strconv.Itoa(p.Orbit),
		},
	}
	if p.Footprint != nil {
		img.Footprint = p.Footprint.Bound()
	}
	switch g := p.Footprint.(type) {
	case orb.Polygon:
		img.Outline = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		img.Outline = g
	}
	return img
}

// ParseFeatureCollection decodes a geojson search response.
func ParseFeatureCollection(r io.Reader) ([]Product, error) {
	var payload featureCollection
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	products := make([]Product, 0, len(payload.Features))
	for _, f := range payload.Features {
		products = append(products, f.product())
	}
	return products, nil
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties featureProps      `json:"properties"`
}

type featureProps struct {
	SceneName       string       `json:"sceneName"`
	FileID          string       `json:"fileID"`
	FileName        string       `json:"fileName"`
	URL             string       `json:"url"`
	AdditionalURLs  []string     `json:"additionalUrls"`
	S3URLs          []string     `json:"s3Urls"`
	Platform        string       `json:"platform"`
	BeamMode        string       `json:"beamMode"`
	BeamModeType    string       `json:"beamModeType"`
	Polarization    string       `json:"polarization"`
	ProcessingLevel string       `json:"processingLevel"`
	FlightDirection string       `json:"flightDirection"`
	PathNumber      numericValue `json:"pathNumber"`
	FrameNumber     numericValue `json:"frameNumber"`
	Orbit           numericValue `json:"orbit"`
	StartTime       string       `json:"startTime"`
	StopTime        string       `json:"stopTime"`
	Bytes           numericValue `json:"bytes"`
	SizeMB          numericValue `json:"sizeMB"`
	MD5Sum          string       `json:"md5sum"`
	Browse          stringList   `json:"browse"`
}

func (f feature) product() Product {
	props := f.Properties
	id := props.SceneName
	if id == "" {
		id = props.FileID
	}
	if id == "" {
		id = strings.TrimSuffix(props.FileName, path.Ext(props.FileName))
	}
	beamMode := props.BeamModeType
	if beamMode == "" {
		beamMode = props.BeamMode
	}
	sizeMB := float64(props.SizeMB)
	if sizeMB == 0 && props.Bytes > 0 {
		sizeMB = float64(props.Bytes) / (1024 * 1024)
	}

	p := Product{
		ID:              id,
		SceneName:       props.SceneName,
		FileID:          props.FileID,
		FileName:        props.FileName,
		DownloadURL:     props.URL,
		AdditionalURLs:  props.AdditionalURLs,
		S3URLs:          props.S3URLs,
		ProcessingLevel: props.ProcessingLevel,
		Platform:        props.Platform,
		BeamMode:        beamMode,
		Polarization:    props.Polarization,
		FlightDirection: strings.ToUpper(props.FlightDirection),
		PathNumber:      int(props.PathNumber),
		FrameNumber:     int(props.FrameNumber),
		Orbit:           int(props.Orbit),
		StartTime:       ParseTime(props.StartTime),
		StopTime:        ParseTime(props.StopTime),
		Bytes:           int64(props.Bytes),
		SizeMB:          sizeMB,
		MD5Sum:          props.MD5Sum,
	}
	if len(props.Browse) > 0 {
		p.BrowseURL = props.Browse[0]
	}
	if f.Geometry != nil {
		p.Footprint = f.Geometry.Geometry()
	}
	p.Files = p.collectFiles()
	return p
}

// collectFiles lists the main file first, with its checksum, then the additional files.
func (p Product) collectFiles() []File {
	var files []File
	seen := make(map[string]struct{})
	add := func(raw string, main bool) {
		if raw == "" {
			return
		}
		if _, ok := seen[raw]; ok {
			return
		}
		seen[raw] = struct{}{}
		f := File{URL: raw, Name: baseName(raw)}
		if main {
			if p.FileName != "" {
				f.Name = p.FileName
			}
			f.Size = p.Bytes
			if p.MD5Sum != "" {
				f.Checksum, f.ChecksumType = p.MD5Sum, "md5"
			}
		}
		files = append(files, f)
	}
	add(p.DownloadURL, true)
	for _, u := range p.AdditionalURLs {
		add(u, false)
	}
	return files
}

func baseName(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		raw = u.Path
	}
	base := path.Base(raw)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// ParseTime accepts the timestamp layouts ASF returns. Unparseable values give the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// numericValue accepts both JSON numbers and numeric strings.
type numericValue float64

func (n *numericValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
		if len(data) == 0 {
			*n = 0
			return nil
		}
	}
	value, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*n = numericValue(value)
	return nil
}

// stringList accepts a single string, a list of strings or null.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		if one == "" {
			*s = nil
		} else {
			*s = stringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

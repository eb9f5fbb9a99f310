package search

// Platform represents a supported satellite platform identifier.
type Platform string

const (
	PlatformSentinel1  Platform = "Sentinel-1"
	PlatformSentinel1A Platform = "Sentinel-1A"
	PlatformSentinel1B Platform = "Sentinel-1B"
	PlatformSentinel1C Platform = "Sentinel-1C"
)

// String returns the underlying string value.
func (p Platform) String() string {
	return string(p)
}

// BeamMode represents a supported beam mode identifier.
type BeamMode string

const (
	BeamModeEW BeamMode = "EW"
	BeamModeIW BeamMode = "IW"
	BeamModeSM BeamMode = "SM"
	BeamModeWV BeamMode = "WV"
)

// String returns the underlying string value.
func (b BeamMode) String() string {
	return string(b)
}

// FlightDirection is the orbit pass of an acquisition.
type FlightDirection string

const (
	FlightDirectionAscending  FlightDirection = "ASCENDING"
	FlightDirectionDescending FlightDirection = "DESCENDING"
)

// String returns the underlying string value.
func (f FlightDirection) String() string {
	return string(f)
}

// Processing levels of Sentinel-1 products relevant to amplitude analysis.
const (
	ProcessingLevelGRDHD = "GRD_HD"
	ProcessingLevelGRDMD = "GRD_MD"
	ProcessingLevelSLC   = "SLC"
	ProcessingLevelRTC   = "RTC"
)

// Datasets understood by the search endpoint.
const (
	DatasetSentinel1 = "SENTINEL-1"
	DatasetOperaS1   = "OPERA-S1"
)

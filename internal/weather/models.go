package weather

import (
	"time"

	"github.com/google/uuid"
)

// Location is a WGS84 point.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Measurement is the normalized quad every station provider produces.
// A nil field means the provider had no usable value this cycle.
type Measurement struct {
	WindAverage *float64 `json:"windAverage"`
	WindGust    *float64 `json:"windGust"`
	WindBearing *float64 `json:"windBearing"`
	Temperature *float64 `json:"temperature"`
}

// HasWind reports whether either wind magnitude is present.
func (m Measurement) HasWind() bool {
	return m.WindAverage != nil || m.WindGust != nil
}

// Complete reports whether all four quantities are present.
func (m Measurement) Complete() bool {
	return m.WindAverage != nil && m.WindGust != nil && m.WindBearing != nil && m.Temperature != nil
}

// IsEmpty reports whether no quantity is present.
func (m Measurement) IsEmpty() bool {
	return !m.HasWind() && m.WindBearing == nil && m.Temperature == nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Station is a physical weather station tracked by the pipeline.
type Station struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	ExternalID   string    `json:"externalId,omitempty"`
	ExternalLink string    `json:"externalLink"`
	Location     Location  `json:"location"`
	Elevation    float64   `json:"elevation"`

	ValidBearings string `json:"validBearings,omitempty"`

	LastUpdate time.Time   `json:"lastUpdate"`
	Current    Measurement `json:"current"`

	IsHighResolution bool `json:"isHighResolution"`
	IsOffline        bool `json:"isOffline"`
	IsError          bool `json:"isError"`
	IsDisabled       bool `json:"isDisabled"`

	// Config carries provider-specific identifiers (trace ids, field names, urls).
	Config map[string]string `json:"config,omitempty"`

	// SessionCookie is rewritten by the credential rotation job and replayed
	// by session based providers.
	SessionCookie string `json:"-"`

	Version int64 `json:"version"`
}

// CurrentView returns the station's current values, or an empty measurement
// once lastUpdate is older than window.
func (s Station) CurrentView(now time.Time, window time.Duration) Measurement {
	if now.Sub(s.LastUpdate) > window {
		return Measurement{}
	}
	return s.Current
}

// ConfigValue returns a provider-specific config value or "".
func (s Station) ConfigValue(key string) string {
	if s.Config == nil {
		return ""
	}
	return s.Config[key]
}

// Reading is one timestamped, append-only telemetry sample.
type Reading struct {
	ID        uuid.UUID `json:"id"`
	StationID uuid.UUID `json:"station"`
	Time      time.Time `json:"time"` // floored to the station's bucket width, UTC
	Measurement
	ExpiresAt time.Time `json:"expiresAt"`
}

// Image is a stored webcam or sounding image.
type Image struct {
	Time     time.Time `json:"time"`
	URL      string    `json:"url"`
	Hash     string    `json:"hash,omitempty"`
	FileSize int       `json:"fileSize,omitempty"`
}

// Cam is a webcam source.
type Cam struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	ExternalID   string            `json:"externalId,omitempty"`
	ExternalLink string            `json:"externalLink"`
	Location     Location          `json:"location"`
	Config       map[string]string `json:"config,omitempty"`

	LastUpdate  time.Time `json:"lastUpdate"`
	CurrentTime time.Time `json:"currentTime"`
	CurrentURL  string    `json:"currentUrl,omitempty"`

	IsDisabled bool  `json:"isDisabled"`
	Version    int64 `json:"version"`
}

// ConfigValue returns a provider-specific config value or "".
func (c Cam) ConfigValue(key string) string {
	if c.Config == nil {
		return ""
	}
	return c.Config[key]
}

// Sounding is an atmospheric sounding location.
type Sounding struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	RaspRegion string    `json:"raspRegion"`
	RaspID     string    `json:"raspId"`
	Location   Location  `json:"location"`
	Images     []Image   `json:"images,omitempty"`
	IsDisabled bool      `json:"isDisabled"`
	Version    int64     `json:"version"`
}

// Output references one fleet-wide JSON export.
type Output struct {
	ID               uuid.UUID `json:"id"`
	Time             time.Time `json:"time"`
	URL              string    `json:"url"`
	IsHighResolution bool      `json:"isHighResolution,omitempty"`
}

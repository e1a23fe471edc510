package weather

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when an optimistic update lost a race.
	ErrVersionConflict = errors.New("version conflict")
)

// StationAdapter abstracts one station provider (holfuy, weatherlink, harvest, ...).
// Scrape must not panic on bad upstream data; any failure is returned as an
// error and treated by the caller as "no data this cycle".
type StationAdapter interface {
	Scrape(ctx context.Context, station Station) (Measurement, error)
}

// BulkStationAdapter is implemented by providers that can fetch every station
// of their type in one call. Stations missing from the result are scraped
// individually.
type BulkStationAdapter interface {
	StationAdapter
	ScrapeAll(ctx context.Context, stations []Station) (map[uuid.UUID]Measurement, error)
}

// CamFrame is one fetched webcam image. Empty Data means nothing new.
type CamFrame struct {
	Time time.Time
	Data []byte
}

// CamAdapter abstracts a webcam provider.
type CamAdapter interface {
	Fetch(ctx context.Context, cam Cam) (CamFrame, error)
}

// SoundingFrame is one fetched sounding chart.
type SoundingFrame struct {
	Time time.Time
	// Label is the local wall-clock time used in the storage path.
	Label string
	Data  []byte
}

// SoundingAdapter abstracts a sounding provider.
type SoundingAdapter interface {
	Fetch(ctx context.Context, sounding Sounding) ([]SoundingFrame, error)
}

// StationFilter narrows ListStations.
type StationFilter struct {
	IncludeDisabled bool
	// HighResolution, when set, selects only stations whose
	// IsHighResolution matches.
	HighResolution *bool
}

// StationStore persists stations, their current state and their readings.
type StationStore interface {
	ListStations(ctx context.Context, filter StationFilter) ([]Station, error)
	GetStation(ctx context.Context, id uuid.UUID) (Station, error)
	// UpdateStationState writes current values, lastUpdate and the latch
	// flags. It fails with a version conflict if station.Version is stale.
	UpdateStationState(ctx context.Context, station Station) error
	MarkOffline(ctx context.Context, ids []uuid.UUID) error
	MarkError(ctx context.Context, ids []uuid.UUID) error

	AppendReading(ctx context.Context, r Reading) error
	// ListReadings returns readings with from <= time <= to. Order is not
	// guaranteed; sort before aggregating.
	ListReadings(ctx context.Context, stationID uuid.UUID, from, to time.Time) ([]Reading, error)
	LatestReading(ctx context.Context, stationID uuid.UUID) (Reading, error)
	PurgeReadings(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// CamStore persists webcams and their image galleries.
type CamStore interface {
	ListCams(ctx context.Context, includeDisabled bool) ([]Cam, error)
	GetCam(ctx context.Context, id uuid.UUID) (Cam, error)
	LatestImage(ctx context.Context, camID uuid.UUID) (Image, error)
	ListImages(ctx context.Context, camID uuid.UUID) ([]Image, error)
	// AddCamImage appends img and moves the cam's current image to it.
	AddCamImage(ctx context.Context, cam Cam, img Image) error
	PurgeCamImages(ctx context.Context, before time.Time) (int64, error)
}

// SoundingStore persists soundings and their daily chart images.
type SoundingStore interface {
	ListSoundings(ctx context.Context, includeDisabled bool) ([]Sounding, error)
	GetSounding(ctx context.Context, id uuid.UUID) (Sounding, error)
	AppendSoundingImages(ctx context.Context, sounding Sounding, imgs []Image) error
	ClearSoundingImages(ctx context.Context, id uuid.UUID) error
}

// OutputStore persists fleet export records.
type OutputStore interface {
	AddOutput(ctx context.Context, o Output) error
	LatestOutput(ctx context.Context, highResolution bool) (Output, error)
}

// Store is the contract the in-memory store and the SQL store satisfy.
type Store interface {
	StationStore
	CamStore
	SoundingStore
	OutputStore
}

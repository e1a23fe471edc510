package export

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-ingest/internal/common"
	"github.com/i474232898/weather-ingest/internal/weather"
)

// Store is what the exporter reads stations from and records outputs in.
type Store interface {
	ListStations(ctx context.Context, filter weather.StationFilter) ([]weather.Station, error)
	AddOutput(ctx context.Context, o weather.Output) error
}

// Storage writes export files.
type Storage interface {
	Save(ctx context.Context, rel string, data []byte) error
}

// Config controls the export cadence and the public URL of written files.
type Config struct {
	// Interval floors the export timestamp and is the staleness window for
	// current values. HighResInterval applies to high resolution exports.
	Interval        time.Duration
	HighResInterval time.Duration
	// URLPrefix is prepended to the relative file path in the Output record.
	URLPrefix string
}

// Exporter writes fleet-wide snapshots of current station state.
type Exporter struct {
	store Store
	files Storage
	cfg   Config
	now   func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(store Store, files Storage, cfg Config) *Exporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.HighResInterval <= 0 {
		cfg.HighResInterval = 2 * time.Minute
	}
	return &Exporter{store: store, files: files, cfg: cfg, now: time.Now}
}

// WithClock replaces the exporter clock.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

type coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type wind struct {
	Average *float64 `json:"average"`
	Gust    *float64 `json:"gust"`
	Bearing *float64 `json:"bearing"`
}

// Row is one station in an export file.
type Row struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Elevation   float64     `json:"elevation"`
	Coordinates coordinates `json:"coordinates"`
	Timestamp   int64       `json:"timestamp"`
	Wind        wind        `json:"wind"`
	Temperature *float64    `json:"temperature"`
}

// Export writes one snapshot file and records it as an Output. With
// highRes only high resolution stations are included.
func (e *Exporter) Export(ctx context.Context, highRes bool) (weather.Output, error) {
	interval := e.cfg.Interval
	filter := weather.StationFilter{}
	if highRes {
		interval = e.cfg.HighResInterval
		filter.HighResolution = &highRes
	}

	now := e.now().UTC()
	ts := common.FloorTime(now, interval)

	stations, err := e.store.ListStations(ctx, filter)
	if err != nil {
		log.Error().Err(err).Str("service", "json").Msg("An error occurred while processing json output")
		return weather.Output{}, fmt.Errorf("list stations: %w", err)
	}

	rows := make([]Row, 0, len(stations))
	for _, st := range stations {
		cur := st.CurrentView(now, interval)
		rows = append(rows, Row{
			ID:          st.ID,
			Name:        st.Name,
			Type:        st.Type,
			Elevation:   st.Elevation,
			Coordinates: coordinates{Lat: st.Location.Lat, Lon: st.Location.Lon},
			Timestamp:   ts.Unix(),
			Wind: wind{
				Average: cur.WindAverage,
				Gust:    cur.WindGust,
				Bearing: cur.WindBearing,
			},
			Temperature: cur.Temperature,
		})
	}
	slices.SortFunc(rows, func(a, b Row) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.Name, b.Name))
	})

	data, err := json.Marshal(rows)
	if err != nil {
		return weather.Output{}, err
	}

	rel := filePath(ts, highRes)
	if err := e.files.Save(ctx, rel, data); err != nil {
		log.Error().Err(err).Str("service", "json").Msg("An error occurred while processing json output")
		return weather.Output{}, fmt.Errorf("write %s: %w", rel, err)
	}
	log.Info().Str("service", "json").Msgf("File created - %s", rel)

	out := weather.Output{
		ID:               uuid.New(),
		Time:             ts,
		URL:              joinURL(e.cfg.URLPrefix, rel),
		IsHighResolution: highRes,
	}
	if err := e.store.AddOutput(ctx, out); err != nil {
		return weather.Output{}, fmt.Errorf("record output: %w", err)
	}
	return out, nil
}

func filePath(ts time.Time, highRes bool) string {
	dir := "data"
	if highRes {
		dir = path.Join(dir, "hr")
	}
	return path.Join(dir, ts.Format("2006/01/02"), fmt.Sprintf("zephyr-scrape-%d.json", ts.Unix()))
}

func joinURL(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return strings.TrimSuffix(prefix, "/") + "/" + rel
}

package health

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// DefaultAllowList holds station types that are alerted on even when a single
// station goes offline, usually because the type has only one station.
var DefaultAllowList = []string{"lpc", "levin", "mpyc", "mfhb", "mrc", "wainui", "pw", "prime", "hw", "wswr", "sp", "wl"}

const testModePrefix = "[TEST MODE - NO ACTION REQUIRED]\n\n"

// Store is the persistence the detector needs.
type Store interface {
	ListStations(ctx context.Context, filter weather.StationFilter) ([]weather.Station, error)
	ListReadings(ctx context.Context, stationID uuid.UUID, from, to time.Time) ([]weather.Reading, error)
	MarkOffline(ctx context.Context, ids []uuid.UUID) error
	MarkError(ctx context.Context, ids []uuid.UUID) error
}

// Notifier delivers an alert message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Config controls the checks and alerting.
type Config struct {
	// Lookback is how far back readings are inspected.
	Lookback time.Duration
	// Staleness is the age after which the newest reading means the
	// scraper has stopped.
	Staleness time.Duration
	// Threshold is the number of newly offline stations of one type that
	// must be exceeded before the type is alerted on. Zero uses the default of 2.
	Threshold int
	// AllowList types are alerted on regardless of Threshold.
	AllowList []string
	// Production disables the test mode banner.
	Production bool
}

// Report describes one check.
type Report struct {
	Checked      int
	NewlyOffline []uuid.UUID
	NewlyError   []uuid.UUID
	// Message is the alert sent, or empty when nothing was sent.
	Message string
}

// Detector finds stations that stopped reporting and latches their flags.
// It only ever sets isOffline and isError; clearing is left to fresh data.
type Detector struct {
	store    Store
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

// NewDetector creates a Detector.
func NewDetector(store Store, notifier Notifier, cfg Config) *Detector {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 6 * time.Hour
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = 60 * time.Minute
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 2
	}
	if cfg.AllowList == nil {
		cfg.AllowList = DefaultAllowList
	}
	return &Detector{store: store, notifier: notifier, cfg: cfg, now: time.Now}
}

// WithClock replaces the detector clock.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// status is the outcome of inspecting one station's recent readings.
type status struct {
	data    bool
	wind    bool
	bearing bool
	temp    bool
}

func (s status) offline() bool { return s.data || s.wind }

func (s status) failing() bool { return s.data || s.wind || s.bearing || s.temp }

// evaluate inspects readings, in any order. Every check fails when the
// newest reading is older than staleness.
func evaluate(readings []weather.Reading, now time.Time, staleness time.Duration) status {
	st := status{data: true, wind: true, bearing: true, temp: true}
	if len(readings) == 0 {
		return st
	}

	newest := readings[0].Time
	for _, r := range readings[1:] {
		if r.Time.After(newest) {
			newest = r.Time
		}
	}
	if now.Sub(newest) > staleness {
		return st
	}

	st.data = false
	for _, r := range readings {
		if r.HasWind() {
			st.wind = false
		}
		if r.WindBearing != nil {
			st.bearing = false
		}
		if r.Temperature != nil {
			st.temp = false
		}
	}
	return st
}

type alertEntry struct {
	typ string
	msg string
}

// Check runs one health pass over all enabled stations.
func (d *Detector) Check(ctx context.Context) (Report, error) {
	stations, err := d.store.ListStations(ctx, weather.StationFilter{})
	if err != nil {
		return Report{}, fmt.Errorf("list stations: %w", err)
	}
	if len(stations) == 0 {
		log.Error().Str("service", "errors").Msg("No stations found.")
		return Report{}, nil
	}

	now := d.now().UTC()
	statuses := make([]status, len(stations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(10)
	for i, st := range stations {
		g.Go(func() error {
			readings, err := d.store.ListReadings(gctx, st.ID, now.Add(-d.cfg.Lookback), now)
			if err != nil {
				return fmt.Errorf("readings for %s: %w", st.ID, err)
			}
			statuses[i] = evaluate(readings, now, d.cfg.Staleness)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("service", "errors").Msg("An error occurred while checking for station errors")
		return Report{}, err
	}

	report := Report{Checked: len(stations)}
	var entries []alertEntry
	for i, st := range stations {
		s := statuses[i]

		if s.offline() && !st.IsOffline {
			report.NewlyOffline = append(report.NewlyOffline, st.ID)

			header := "ERROR: Data scraper has stopped.\n"
			if !s.data {
				header = "ERROR: No wind avg/gust data.\n"
			}
			entries = append(entries, alertEntry{
				typ: st.Type,
				msg: fmt.Sprintf("%sName: %s\nURL: %s\nDatabase ID: %s\n", header, st.Name, st.ExternalLink, st.ID),
			})
		}
		if s.failing() && !st.IsError {
			report.NewlyError = append(report.NewlyError, st.ID)
		}
	}

	if len(report.NewlyOffline) > 0 {
		if err := d.store.MarkOffline(ctx, report.NewlyOffline); err != nil {
			return report, fmt.Errorf("mark offline: %w", err)
		}
	}
	if len(report.NewlyError) > 0 {
		if err := d.store.MarkError(ctx, report.NewlyError); err != nil {
			return report, fmt.Errorf("mark error: %w", err)
		}
	}

	if msg := d.message(entries, now); msg != "" {
		if err := d.notifier.Notify(ctx, msg); err != nil {
			log.Error().Err(err).Str("service", "errors").Msg("failed to send alert")
		} else {
			report.Message = msg
		}
	}

	log.Info().Str("service", "errors").
		Msgf("Checked for errors - %d stations newly offline.", len(report.NewlyOffline))
	return report, nil
}

// message groups entries by type, in order of first appearance, keeping only
// types over the threshold or on the allow list.
func (d *Detector) message(entries []alertEntry, now time.Time) string {
	var order []string
	groups := make(map[string][]string)
	for _, e := range entries {
		if _, ok := groups[e.typ]; !ok {
			order = append(order, e.typ)
		}
		groups[e.typ] = append(groups[e.typ], e.msg)
	}

	var body strings.Builder
	for _, typ := range order {
		msgs := groups[typ]
		if len(msgs) <= d.cfg.Threshold && !slices.Contains(d.cfg.AllowList, typ) {
			continue
		}
		body.WriteString("\n" + strings.ToUpper(typ) + "\n\n")
		body.WriteString(strings.Join(msgs, "\n"))
	}
	if body.Len() == 0 {
		return ""
	}

	msg := fmt.Sprintf("Scheduled check ran successfully at %s\n%s", now.Format("2006-01-02T15:04:05.000Z07:00"), body.String())
	if !d.cfg.Production {
		msg = testModePrefix + msg
	}
	return msg
}

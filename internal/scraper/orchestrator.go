package scraper

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// Sources lists what should be scraped.
type Sources interface {
	ListStations(ctx context.Context, filter weather.StationFilter) ([]weather.Station, error)
	LatestReading(ctx context.Context, stationID uuid.UUID) (weather.Reading, error)
	ListCams(ctx context.Context, includeDisabled bool) ([]weather.Cam, error)
	ListSoundings(ctx context.Context, includeDisabled bool) ([]weather.Sounding, error)
}

// StationProcessor stores one scraped measurement.
type StationProcessor interface {
	ProcessStationData(ctx context.Context, st weather.Station, m weather.Measurement) error
}

// CamProcessor stores one fetched webcam frame.
type CamProcessor interface {
	Process(ctx context.Context, cam weather.Cam, frame weather.CamFrame) error
}

// SoundingProcessor stores the day's sounding charts.
type SoundingProcessor interface {
	ProcessSounding(ctx context.Context, s weather.Sounding, frames []weather.SoundingFrame) error
}

// Config controls the fan-out.
type Config struct {
	// Concurrency bounds in-flight calls within one provider type.
	Concurrency int
	// CallTimeout bounds a single station or cam call.
	CallTimeout time.Duration
	// SoundingTimeout bounds fetching all charts of one sounding.
	SoundingTimeout time.Duration
	// MissedAfter is how old a station's latest reading must be before the
	// missed-station pass scrapes it again.
	MissedAfter time.Duration
}

// Summary counts the outcome of one run. Skipped sources had no adapter.
type Summary struct {
	Types     int
	Succeeded int
	Failed    int
	Skipped   int
}

type tally struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

func (t *tally) summary(types int) Summary {
	return Summary{
		Types:     types,
		Succeeded: int(t.succeeded.Load()),
		Failed:    int(t.failed.Load()),
		Skipped:   int(t.skipped.Load()),
	}
}

// Orchestrator fans scrapes out across provider types. Type groups run
// concurrently, each with its own limiter, and every per-source call is
// isolated: a failure or panic never aborts its siblings.
type Orchestrator struct {
	cfg       Config
	registry  *Registry
	sources   Sources
	stations  StationProcessor
	cams      CamProcessor
	soundings SoundingProcessor
	now       func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config, registry *Registry, sources Sources, stations StationProcessor, cams CamProcessor, soundings SoundingProcessor) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.SoundingTimeout <= 0 {
		cfg.SoundingTimeout = 5 * time.Minute
	}
	if cfg.MissedAfter <= 0 {
		cfg.MissedAfter = 10 * time.Minute
	}
	return &Orchestrator{
		cfg:       cfg,
		registry:  registry,
		sources:   sources,
		stations:  stations,
		cams:      cams,
		soundings: soundings,
		now:       time.Now,
	}
}

// RunStations scrapes every enabled station of the given resolution.
func (o *Orchestrator) RunStations(ctx context.Context, highRes bool) (Summary, error) {
	stations, err := o.sources.ListStations(ctx, weather.StationFilter{HighResolution: &highRes})
	if err != nil {
		return Summary{}, fmt.Errorf("list stations: %w", err)
	}
	if len(stations) == 0 {
		log.Error().Str("service", "station").Msg("No stations found.")
		return Summary{}, nil
	}
	return o.scrapeStations(ctx, "station", stations), nil
}

// RunMissedStations re-scrapes normal resolution stations whose latest
// reading is missing or older than MissedAfter.
func (o *Orchestrator) RunMissedStations(ctx context.Context) (Summary, error) {
	highRes := false
	stations, err := o.sources.ListStations(ctx, weather.StationFilter{HighResolution: &highRes})
	if err != nil {
		return Summary{}, fmt.Errorf("list stations: %w", err)
	}
	if len(stations) == 0 {
		log.Error().Str("service", "miss").Msg("No stations found.")
		return Summary{}, nil
	}

	now := o.now()
	var missed []weather.Station
	for _, st := range stations {
		r, err := o.sources.LatestReading(ctx, st.ID)
		switch {
		case errors.Is(err, weather.ErrNotFound):
			missed = append(missed, st)
		case err != nil:
			log.Warn().Err(err).Str("service", "miss").Str("type", st.Type).Msgf("latest reading lookup failed - %s", st.Name)
		case now.Sub(r.Time) > o.cfg.MissedAfter:
			missed = append(missed, st)
		}
	}

	if len(missed) == 0 {
		log.Info().Str("service", "miss").Msg("Data is up to date.")
		return Summary{}, nil
	}
	return o.scrapeStations(ctx, "miss", missed), nil
}

func (o *Orchestrator) scrapeStations(ctx context.Context, service string, stations []weather.Station) Summary {
	groups := groupByType(stations, func(st weather.Station) string { return st.Type })
	log.Info().Str("service", service).Msgf("----- Station: scraping %d types -----", len(groups))

	var t tally
	eachGroup(groups, func(typ string, group []weather.Station) {
		defer guard(service, typ, func() { t.failed.Add(1) })

		adapter, ok := o.registry.Station(typ)
		if !ok {
			log.Error().Str("service", service).Str("type", typ).Msgf("Station scraper does not exist for: %s", typ)
			t.skipped.Add(int64(len(group)))
			return
		}

		log.Info().Str("service", service).Str("type", typ).
			Msgf("----- Station: scraping %s, %d stations -----", typ, len(group))

		g := new(errgroup.Group)
		g.SetLimit(o.cfg.Concurrency)

		pending := group
		if bulk, ok := adapter.(weather.BulkStationAdapter); ok {
			pending = o.scrapeBulk(ctx, service, typ, bulk, group, g, &t)
		}

		for _, st := range pending {
			g.Go(func() error {
				defer guard(service, typ, func() { t.failed.Add(1) })

				callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
				m, err := scrapeSafely(callCtx, adapter, st)
				cancel()
				o.record(ctx, service, st, m, err, &t)
				return nil
			})
		}
		_ = g.Wait()

		log.Info().Str("service", service).Str("type", typ).Msgf("----- Station finished: %s -----", typ)
	})

	return t.summary(len(groups))
}

// scrapeBulk records every station the bulk call returned and hands back the
// rest for the per-station path. Recording shares the type's limiter.
func (o *Orchestrator) scrapeBulk(ctx context.Context, service, typ string, bulk weather.BulkStationAdapter, group []weather.Station, g *errgroup.Group, t *tally) []weather.Station {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	results, err := scrapeAllSafely(callCtx, bulk, group)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("service", service).Str("type", typ).Msgf("%s bulk scrape failed, falling back", typ)
		return group
	}

	var rest []weather.Station
	for _, st := range group {
		m, ok := results[st.ID]
		if !ok {
			rest = append(rest, st)
			continue
		}
		g.Go(func() error {
			defer guard(service, typ, func() { t.failed.Add(1) })
			o.record(ctx, service, st, m, nil, t)
			return nil
		})
	}
	return rest
}

// record stores a measurement. A failed scrape still writes an all-null
// reading so the gap is visible, and counts as failed.
func (o *Orchestrator) record(ctx context.Context, service string, st weather.Station, m weather.Measurement, scrapeErr error, t *tally) {
	if scrapeErr != nil {
		log.Warn().Err(scrapeErr).Str("service", service).Str("type", st.Type).
			Msgf("%s error - %s", st.Type, sourceLabel(st.ExternalID, st.Name))
		m = weather.Measurement{}
	}

	if err := o.stations.ProcessStationData(ctx, st, m); err != nil {
		log.Error().Err(err).Str("service", service).Str("type", st.Type).
			Msgf("%s attempted but failed to save - %s", st.Type, sourceLabel(st.ExternalID, st.Name))
		t.failed.Add(1)
		return
	}
	if scrapeErr != nil {
		t.failed.Add(1)
		return
	}

	weather.LogUpdated(st)
	t.succeeded.Add(1)
}

// RunCams fetches every enabled webcam.
func (o *Orchestrator) RunCams(ctx context.Context) (Summary, error) {
	cams, err := o.sources.ListCams(ctx, false)
	if err != nil {
		return Summary{}, fmt.Errorf("list cams: %w", err)
	}
	if len(cams) == 0 {
		log.Error().Str("service", "cam").Msg("No webcams found.")
		return Summary{}, nil
	}

	groups := groupByType(cams, func(c weather.Cam) string { return c.Type })
	log.Info().Str("service", "cam").Msgf("----- Webcam: scraping %d types -----", len(groups))

	var t tally
	eachGroup(groups, func(typ string, group []weather.Cam) {
		defer guard("cam", typ, func() { t.failed.Add(1) })

		adapter, ok := o.registry.Cam(typ)
		if !ok {
			log.Error().Str("service", "cam").Str("type", typ).Msgf("Webcam scraper does not exist for: %s", typ)
			t.skipped.Add(int64(len(group)))
			return
		}

		log.Info().Str("service", "cam").Str("type", typ).
			Msgf("----- Webcam: scraping %s, %d cams -----", typ, len(group))

		g := new(errgroup.Group)
		g.SetLimit(o.cfg.Concurrency)
		for _, cam := range group {
			g.Go(func() error {
				defer guard("cam", typ, func() { t.failed.Add(1) })

				callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
				frame, err := fetchCamSafely(callCtx, adapter, cam)
				cancel()
				if err != nil {
					log.Warn().Err(err).Str("service", "cam").Str("type", typ).
						Msgf("%s error - %s", typ, sourceLabel(cam.ExternalID, cam.Name))
					t.failed.Add(1)
					return nil
				}
				if err := o.cams.Process(ctx, cam, frame); err != nil {
					log.Error().Err(err).Str("service", "cam").Str("type", typ).
						Msgf("%s image save failed - %s", typ, sourceLabel(cam.ExternalID, cam.Name))
					t.failed.Add(1)
					return nil
				}
				t.succeeded.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		log.Info().Str("service", "cam").Str("type", typ).Msgf("----- Webcam finished: %s -----", typ)
	})

	return t.summary(len(groups)), nil
}

// RunSoundings fetches the day's charts for every enabled sounding.
func (o *Orchestrator) RunSoundings(ctx context.Context) (Summary, error) {
	soundings, err := o.sources.ListSoundings(ctx, false)
	if err != nil {
		return Summary{}, fmt.Errorf("list soundings: %w", err)
	}
	if len(soundings) == 0 {
		log.Error().Str("service", "sounding").Msg("No soundings found.")
		return Summary{}, nil
	}

	groups := groupByType(soundings, func(s weather.Sounding) string { return s.Type })
	log.Info().Str("service", "sounding").Msgf("----- Sounding: scraping %d soundings -----", len(soundings))

	var t tally
	eachGroup(groups, func(typ string, group []weather.Sounding) {
		defer guard("sounding", typ, func() { t.failed.Add(1) })

		adapter, ok := o.registry.Sounding(typ)
		if !ok {
			log.Error().Str("service", "sounding").Str("type", typ).Msgf("Sounding scraper does not exist for: %s", typ)
			t.skipped.Add(int64(len(group)))
			return
		}

		g := new(errgroup.Group)
		g.SetLimit(o.cfg.Concurrency)
		for _, s := range group {
			g.Go(func() error {
				defer guard("sounding", typ, func() { t.failed.Add(1) })

				callCtx, cancel := context.WithTimeout(ctx, o.cfg.SoundingTimeout)
				frames, err := fetchSoundingSafely(callCtx, adapter, s)
				cancel()
				if err != nil {
					log.Warn().Err(err).Str("service", "sounding").Str("type", typ).
						Msgf("%s error - %s", typ, s.Name)
					t.failed.Add(1)
					return nil
				}
				if err := o.soundings.ProcessSounding(ctx, s, frames); err != nil {
					log.Error().Err(err).Str("service", "sounding").Str("type", typ).
						Msgf("%s image save failed - %s", typ, s.Name)
					t.failed.Add(1)
					return nil
				}
				t.succeeded.Add(1)
				return nil
			})
		}
		_ = g.Wait()
	})

	log.Info().Str("service", "sounding").Msg("----- Soundings finished -----")
	return t.summary(len(groups)), nil
}

func groupByType[T any](items []T, typeOf func(T) string) map[string][]T {
	groups := make(map[string][]T)
	for _, it := range items {
		typ := typeOf(it)
		groups[typ] = append(groups[typ], it)
	}
	return groups
}

// eachGroup runs fn for every group concurrently and waits for all of them.
func eachGroup[T any](groups map[string][]T, fn func(typ string, group []T)) {
	var wg sync.WaitGroup
	for typ, group := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(typ, group)
		}()
	}
	wg.Wait()
}

// guard recovers a panic, logs it and calls onPanic. Use with defer.
func guard(service, typ string, onPanic func()) {
	if r := recover(); r != nil {
		log.Error().Str("service", service).Str("type", typ).
			Str("stack", string(debug.Stack())).
			Msgf("%s scraper panicked: %v", typ, r)
		onPanic()
	}
}

func scrapeSafely(ctx context.Context, a weather.StationAdapter, st weather.Station) (m weather.Measurement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scraper panicked: %v", r)
		}
	}()
	return a.Scrape(ctx, st)
}

func scrapeAllSafely(ctx context.Context, a weather.BulkStationAdapter, stations []weather.Station) (res map[uuid.UUID]weather.Measurement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bulk scraper panicked: %v", r)
		}
	}()
	return a.ScrapeAll(ctx, stations)
}

func fetchCamSafely(ctx context.Context, a weather.CamAdapter, cam weather.Cam) (f weather.CamFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cam scraper panicked: %v", r)
		}
	}()
	return a.Fetch(ctx, cam)
}

func fetchSoundingSafely(ctx context.Context, a weather.SoundingAdapter, s weather.Sounding) (f []weather.SoundingFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sounding scraper panicked: %v", r)
		}
	}()
	return a.Fetch(ctx, s)
}

func sourceLabel(externalID, name string) string {
	if externalID != "" {
		return externalID
	}
	return name
}

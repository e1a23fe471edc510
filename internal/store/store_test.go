package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// seedableStore is what both store implementations expose to tests.
type seedableStore interface {
	weather.Store
	CreateStation(ctx context.Context, st weather.Station) (weather.Station, error)
	CreateCam(ctx context.Context, c weather.Cam) (weather.Cam, error)
	CreateSounding(ctx context.Context, snd weather.Sounding) (weather.Sounding, error)
}

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// runStoreSuite exercises the weather.Store contract against s. s must be empty.
func runStoreSuite(t *testing.T, s seedableStore) {
	t.Run("stations", func(t *testing.T) { testStations(t, s) })
	t.Run("readings", func(t *testing.T) { testReadings(t, s) })
	t.Run("cams", func(t *testing.T) { testCams(t, s) })
	t.Run("soundings", func(t *testing.T) { testSoundings(t, s) })
	t.Run("outputs", func(t *testing.T) { testOutputs(t, s) })
}

func testStations(t *testing.T, s seedableStore) {
	ctx := context.Background()

	hr := true
	seed := []weather.Station{
		{Name: "Levin", Type: "harvest", LastUpdate: base, Config: map[string]string{"siteId": "12"}},
		{Name: "Akaroa", Type: "harvest", LastUpdate: base, IsHighResolution: true},
		{Name: "Mt Cheeseman", Type: "holfuy", ExternalID: "101", LastUpdate: base},
		{Name: "Old", Type: "gw", LastUpdate: base, IsDisabled: true},
	}
	var ids []uuid.UUID
	for _, st := range seed {
		created, err := s.CreateStation(ctx, st)
		if err != nil {
			t.Fatalf("CreateStation: %v", err)
		}
		ids = append(ids, created.ID)
	}

	list, err := s.ListStations(ctx, weather.StationFilter{})
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 enabled stations, got %d", len(list))
	}
	wantOrder := []string{"Akaroa", "Levin", "Mt Cheeseman"}
	for i, name := range wantOrder {
		if list[i].Name != name {
			t.Fatalf("station %d: expected %q, got %q", i, name, list[i].Name)
		}
	}
	if list[1].ConfigValue("siteId") != "12" {
		t.Fatalf("expected config to round trip, got %v", list[1].Config)
	}

	highRes, err := s.ListStations(ctx, weather.StationFilter{HighResolution: &hr})
	if err != nil {
		t.Fatalf("ListStations high-res: %v", err)
	}
	if len(highRes) != 1 || highRes[0].Name != "Akaroa" {
		t.Fatalf("expected only Akaroa, got %+v", highRes)
	}

	all, err := s.ListStations(ctx, weather.StationFilter{IncludeDisabled: true})
	if err != nil {
		t.Fatalf("ListStations all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 stations including disabled, got %d", len(all))
	}

	st, err := s.GetStation(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetStation: %v", err)
	}
	st.Current = weather.Measurement{WindAverage: weather.Float(12), WindGust: weather.Float(20)}
	st.LastUpdate = base.Add(time.Minute)
	if err := s.UpdateStationState(ctx, st); err != nil {
		t.Fatalf("UpdateStationState: %v", err)
	}

	// st still carries the old version.
	if err := s.UpdateStationState(ctx, st); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	got, err := s.GetStation(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetStation: %v", err)
	}
	if got.Current.WindAverage == nil || *got.Current.WindAverage != 12 {
		t.Fatalf("expected wind average 12, got %v", got.Current.WindAverage)
	}
	if got.Current.WindBearing != nil {
		t.Fatalf("expected nil bearing, got %v", *got.Current.WindBearing)
	}
	if !got.LastUpdate.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected lastUpdate %v, got %v", base.Add(time.Minute), got.LastUpdate)
	}

	if err := s.MarkOffline(ctx, []uuid.UUID{ids[0]}); err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}
	if err := s.MarkError(ctx, []uuid.UUID{ids[0], ids[2]}); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	latched, _ := s.GetStation(ctx, ids[0])
	if !latched.IsOffline || !latched.IsError {
		t.Fatalf("expected both latches set, got offline=%v error=%v", latched.IsOffline, latched.IsError)
	}
	if latched.Version <= got.Version {
		t.Fatalf("expected latch to bump version past %d, got %d", got.Version, latched.Version)
	}
	other, _ := s.GetStation(ctx, ids[2])
	if other.IsOffline || !other.IsError {
		t.Fatalf("expected only error latch on station 3, got offline=%v error=%v", other.IsOffline, other.IsError)
	}

	if _, err := s.GetStation(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	missing := weather.Station{ID: uuid.New()}
	if err := s.UpdateStationState(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown station, got %v", err)
	}
}

func testReadings(t *testing.T, s seedableStore) {
	ctx := context.Background()

	st, err := s.CreateStation(ctx, weather.Station{Name: "Readings", Type: "wl", LastUpdate: base})
	if err != nil {
		t.Fatalf("CreateStation: %v", err)
	}

	if _, err := s.LatestReading(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any reading, got %v", err)
	}

	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * 10 * time.Minute)
		r := weather.Reading{
			ID:          uuid.New(),
			StationID:   st.ID,
			Time:        ts,
			Measurement: weather.Measurement{WindAverage: weather.Float(float64(i))},
			ExpiresAt:   ts.Add(time.Hour),
		}
		if err := s.AppendReading(ctx, r); err != nil {
			t.Fatalf("AppendReading: %v", err)
		}
	}

	got, err := s.ListReadings(ctx, st.ID, base.Add(10*time.Minute), base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 readings in inclusive range, got %d", len(got))
	}

	latest, err := s.LatestReading(ctx, st.ID)
	if err != nil {
		t.Fatalf("LatestReading: %v", err)
	}
	if !latest.Time.Equal(base.Add(40 * time.Minute)) {
		t.Fatalf("expected latest at +40m, got %v", latest.Time)
	}
	if latest.WindAverage == nil || *latest.WindAverage != 4 {
		t.Fatalf("expected wind average 4, got %v", latest.WindAverage)
	}
	if latest.WindGust != nil {
		t.Fatalf("expected nil gust, got %v", *latest.WindGust)
	}

	// expiries are +60..+100m; everything expiring before +85m goes.
	removed, err := s.PurgeReadings(ctx, base.Add(85*time.Minute))
	if err != nil {
		t.Fatalf("PurgeReadings: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 readings purged, got %d", removed)
	}
	left, _ := s.ListReadings(ctx, st.ID, base, base.Add(time.Hour))
	if len(left) != 2 {
		t.Fatalf("expected 2 readings left, got %d", len(left))
	}
}

func testCams(t *testing.T, s seedableStore) {
	ctx := context.Background()

	c, err := s.CreateCam(ctx, weather.Cam{
		Name:       "Tekapo",
		Type:       "static",
		LastUpdate: base,
		Config:     map[string]string{"url": "http://example.com/cam.jpg"},
	})
	if err != nil {
		t.Fatalf("CreateCam: %v", err)
	}

	if _, err := s.LatestImage(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty gallery, got %v", err)
	}

	first := weather.Image{Time: base, URL: "cams/static/1/a.jpg", Hash: "aa", FileSize: 10}
	c.LastUpdate = base
	if err := s.AddCamImage(ctx, c, first); err != nil {
		t.Fatalf("AddCamImage: %v", err)
	}
	if err := s.AddCamImage(ctx, c, first); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict on stale cam, got %v", err)
	}

	c, err = s.GetCam(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCam: %v", err)
	}
	if c.CurrentURL != first.URL || !c.CurrentTime.Equal(first.Time) {
		t.Fatalf("expected current image %q at %v, got %q at %v", first.URL, first.Time, c.CurrentURL, c.CurrentTime)
	}
	if c.ConfigValue("url") == "" {
		t.Fatalf("expected config url to round trip")
	}

	second := weather.Image{Time: base.Add(10 * time.Minute), URL: "cams/static/1/b.jpg", Hash: "bb", FileSize: 20}
	if err := s.AddCamImage(ctx, c, second); err != nil {
		t.Fatalf("AddCamImage: %v", err)
	}

	latest, err := s.LatestImage(ctx, c.ID)
	if err != nil {
		t.Fatalf("LatestImage: %v", err)
	}
	if latest.Hash != "bb" || latest.FileSize != 20 {
		t.Fatalf("expected second image as latest, got %+v", latest)
	}

	removed, err := s.PurgeCamImages(ctx, base)
	if err != nil {
		t.Fatalf("PurgeCamImages: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 image purged, got %d", removed)
	}
	imgs, _ := s.ListImages(ctx, c.ID)
	if len(imgs) != 1 || imgs[0].URL != second.URL {
		t.Fatalf("expected only second image left, got %+v", imgs)
	}

	cams, err := s.ListCams(ctx, false)
	if err != nil {
		t.Fatalf("ListCams: %v", err)
	}
	if len(cams) != 1 {
		t.Fatalf("expected 1 cam, got %d", len(cams))
	}
}

func testSoundings(t *testing.T, s seedableStore) {
	ctx := context.Background()

	snd, err := s.CreateSounding(ctx, weather.Sounding{Name: "Wanaka", Type: "rasp", RaspRegion: "canterbury", RaspID: "wanaka"})
	if err != nil {
		t.Fatalf("CreateSounding: %v", err)
	}

	imgs := []weather.Image{
		{Time: base, URL: "soundings/canterbury/wanaka/0900.png"},
		{Time: base.Add(time.Hour), URL: "soundings/canterbury/wanaka/1000.png"},
	}
	if err := s.AppendSoundingImages(ctx, snd, imgs); err != nil {
		t.Fatalf("AppendSoundingImages: %v", err)
	}
	if err := s.AppendSoundingImages(ctx, snd, imgs); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict on stale sounding, got %v", err)
	}

	got, err := s.GetSounding(ctx, snd.ID)
	if err != nil {
		t.Fatalf("GetSounding: %v", err)
	}
	if len(got.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(got.Images))
	}

	if err := s.ClearSoundingImages(ctx, snd.ID); err != nil {
		t.Fatalf("ClearSoundingImages: %v", err)
	}
	list, err := s.ListSoundings(ctx, false)
	if err != nil {
		t.Fatalf("ListSoundings: %v", err)
	}
	if len(list) != 1 || len(list[0].Images) != 0 {
		t.Fatalf("expected one sounding with no images, got %+v", list)
	}

	if err := s.ClearSoundingImages(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testOutputs(t *testing.T, s seedableStore) {
	ctx := context.Background()

	if _, err := s.LatestOutput(ctx, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no outputs, got %v", err)
	}

	outputs := []weather.Output{
		{Time: base, URL: "data/a.json"},
		{Time: base.Add(10 * time.Minute), URL: "data/b.json"},
		{Time: base.Add(12 * time.Minute), URL: "data/hr/c.json", IsHighResolution: true},
	}
	for _, o := range outputs {
		if err := s.AddOutput(ctx, o); err != nil {
			t.Fatalf("AddOutput: %v", err)
		}
	}

	latest, err := s.LatestOutput(ctx, false)
	if err != nil {
		t.Fatalf("LatestOutput: %v", err)
	}
	if latest.URL != "data/b.json" {
		t.Fatalf("expected data/b.json, got %s", latest.URL)
	}

	hr, err := s.LatestOutput(ctx, true)
	if err != nil {
		t.Fatalf("LatestOutput high-res: %v", err)
	}
	if hr.URL != "data/hr/c.json" {
		t.Fatalf("expected data/hr/c.json, got %s", hr.URL)
	}
}

package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-ingest/internal/weather"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = weather.ErrNotFound
	// ErrVersionConflict is returned when an optimistic update lost a race.
	ErrVersionConflict = weather.ErrVersionConflict
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
type MemoryStore struct {
	mu sync.RWMutex

	stations  map[uuid.UUID]weather.Station
	readings  map[uuid.UUID][]weather.Reading
	cams      map[uuid.UUID]weather.Cam
	camImages map[uuid.UUID][]weather.Image
	soundings map[uuid.UUID]weather.Sounding
	outputs   []weather.Output

	// retention configuration
	maxHistory int // max number of readings per station
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		stations:   make(map[uuid.UUID]weather.Station),
		readings:   make(map[uuid.UUID][]weather.Reading),
		cams:       make(map[uuid.UUID]weather.Cam),
		camImages:  make(map[uuid.UUID][]weather.Image),
		soundings:  make(map[uuid.UUID]weather.Sounding),
		maxHistory: maxHistory,
	}
}

// CreateStation inserts a station, assigning an id if it has none.
func (s *MemoryStore) CreateStation(_ context.Context, st weather.Station) (weather.Station, error) {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	st.Config = maps.Clone(st.Config)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations[st.ID] = st
	return st, nil
}

// ListStations returns stations matching filter.
func (s *MemoryStore) ListStations(_ context.Context, filter weather.StationFilter) ([]weather.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Station
	for _, st := range s.stations {
		if st.IsDisabled && !filter.IncludeDisabled {
			continue
		}
		if filter.HighResolution != nil && st.IsHighResolution != *filter.HighResolution {
			continue
		}
		result = append(result, cloneStation(st))
	}
	slices.SortFunc(result, func(a, b weather.Station) int {
		return strings.Compare(a.Type+"\x00"+a.Name, b.Type+"\x00"+b.Name)
	})
	return result, nil
}

// GetStation returns one station.
func (s *MemoryStore) GetStation(_ context.Context, id uuid.UUID) (weather.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stations[id]
	if !ok {
		return weather.Station{}, ErrNotFound
	}
	return cloneStation(st), nil
}

// UpdateStationState writes the station's mutable state if its version matches.
func (s *MemoryStore) UpdateStationState(_ context.Context, st weather.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.stations[st.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != st.Version {
		return ErrVersionConflict
	}

	cur.LastUpdate = st.LastUpdate
	cur.Current = st.Current
	cur.IsOffline = st.IsOffline
	cur.IsError = st.IsError
	cur.Version++
	s.stations[st.ID] = cur
	return nil
}

// MarkOffline sets the offline latch on every station in ids.
func (s *MemoryStore) MarkOffline(_ context.Context, ids []uuid.UUID) error {
	return s.latch(ids, func(st *weather.Station) { st.IsOffline = true })
}

// MarkError sets the error latch on every station in ids.
func (s *MemoryStore) MarkError(_ context.Context, ids []uuid.UUID) error {
	return s.latch(ids, func(st *weather.Station) { st.IsError = true })
}

func (s *MemoryStore) latch(ids []uuid.UUID, set func(*weather.Station)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		st, ok := s.stations[id]
		if !ok {
			continue
		}
		set(&st)
		st.Version++
		s.stations[id] = st
	}
	return nil
}

// AppendReading appends a reading and enforces the per-station history cap.
func (s *MemoryStore) AppendReading(_ context.Context, r weather.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[r.StationID]; !ok {
		return ErrNotFound
	}

	history := append(s.readings[r.StationID], r)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history) > s.maxHistory {
		over := len(history) - s.maxHistory
		history = history[over:]
	}
	s.readings[r.StationID] = history
	return nil
}

// ListReadings returns a station's readings between from and to (inclusive),
// in insertion order.
func (s *MemoryStore) ListReadings(_ context.Context, stationID uuid.UUID, from, to time.Time) ([]weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Reading
	for _, r := range s.readings[stationID] {
		if !r.Time.Before(from) && !r.Time.After(to) {
			result = append(result, r)
		}
	}
	return result, nil
}

// LatestReading returns the most recent reading for a station.
func (s *MemoryStore) LatestReading(_ context.Context, stationID uuid.UUID) (weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.readings[stationID]
	if len(history) == 0 {
		return weather.Reading{}, ErrNotFound
	}
	latest := history[0]
	for _, r := range history[1:] {
		if r.Time.After(latest.Time) {
			latest = r
		}
	}
	return latest, nil
}

// PurgeReadings drops readings whose expiry is before expiredBefore.
func (s *MemoryStore) PurgeReadings(_ context.Context, expiredBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, history := range s.readings {
		kept := history[:0]
		for _, r := range history {
			if !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(expiredBefore) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		s.readings[id] = kept
	}
	return removed, nil
}

// CreateCam inserts a webcam, assigning an id if it has none.
func (s *MemoryStore) CreateCam(_ context.Context, c weather.Cam) (weather.Cam, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Config = maps.Clone(c.Config)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cams[c.ID] = c
	return c, nil
}

// ListCams returns webcams, optionally including disabled ones.
func (s *MemoryStore) ListCams(_ context.Context, includeDisabled bool) ([]weather.Cam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Cam
	for _, c := range s.cams {
		if c.IsDisabled && !includeDisabled {
			continue
		}
		c.Config = maps.Clone(c.Config)
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b weather.Cam) int {
		return strings.Compare(a.Type+"\x00"+a.Name, b.Type+"\x00"+b.Name)
	})
	return result, nil
}

// GetCam returns one webcam.
func (s *MemoryStore) GetCam(_ context.Context, id uuid.UUID) (weather.Cam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cams[id]
	if !ok {
		return weather.Cam{}, ErrNotFound
	}
	c.Config = maps.Clone(c.Config)
	return c, nil
}

// LatestImage returns the newest image of a webcam.
func (s *MemoryStore) LatestImage(_ context.Context, camID uuid.UUID) (weather.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	imgs := s.camImages[camID]
	if len(imgs) == 0 {
		return weather.Image{}, ErrNotFound
	}
	latest := imgs[0]
	for _, img := range imgs[1:] {
		if img.Time.After(latest.Time) {
			latest = img
		}
	}
	return latest, nil
}

// ListImages returns a webcam's gallery in insertion order.
func (s *MemoryStore) ListImages(_ context.Context, camID uuid.UUID) ([]weather.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.camImages[camID]), nil
}

// AddCamImage appends img and updates the cam's current image.
func (s *MemoryStore) AddCamImage(_ context.Context, c weather.Cam, img weather.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.cams[c.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != c.Version {
		return ErrVersionConflict
	}

	cur.LastUpdate = c.LastUpdate
	cur.CurrentTime = img.Time
	cur.CurrentURL = img.URL
	cur.Version++
	s.cams[c.ID] = cur
	s.camImages[c.ID] = append(s.camImages[c.ID], img)
	return nil
}

// PurgeCamImages removes gallery entries taken at or before before.
func (s *MemoryStore) PurgeCamImages(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, imgs := range s.camImages {
		kept := imgs[:0]
		for _, img := range imgs {
			if !img.Time.After(before) {
				removed++
				continue
			}
			kept = append(kept, img)
		}
		s.camImages[id] = kept
	}
	return removed, nil
}

// CreateSounding inserts a sounding, assigning an id if it has none.
func (s *MemoryStore) CreateSounding(_ context.Context, snd weather.Sounding) (weather.Sounding, error) {
	if snd.ID == uuid.Nil {
		snd.ID = uuid.New()
	}
	snd.Images = slices.Clone(snd.Images)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.soundings[snd.ID] = snd
	return snd, nil
}

// ListSoundings returns soundings, optionally including disabled ones.
func (s *MemoryStore) ListSoundings(_ context.Context, includeDisabled bool) ([]weather.Sounding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Sounding
	for _, snd := range s.soundings {
		if snd.IsDisabled && !includeDisabled {
			continue
		}
		snd.Images = slices.Clone(snd.Images)
		result = append(result, snd)
	}
	slices.SortFunc(result, func(a, b weather.Sounding) int {
		return strings.Compare(a.RaspRegion+"\x00"+a.RaspID, b.RaspRegion+"\x00"+b.RaspID)
	})
	return result, nil
}

// GetSounding returns one sounding.
func (s *MemoryStore) GetSounding(_ context.Context, id uuid.UUID) (weather.Sounding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snd, ok := s.soundings[id]
	if !ok {
		return weather.Sounding{}, ErrNotFound
	}
	snd.Images = slices.Clone(snd.Images)
	return snd, nil
}

// AppendSoundingImages appends imgs if the sounding's version matches.
func (s *MemoryStore) AppendSoundingImages(_ context.Context, snd weather.Sounding, imgs []weather.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.soundings[snd.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != snd.Version {
		return ErrVersionConflict
	}
	cur.Images = append(slices.Clone(cur.Images), imgs...)
	cur.Version++
	s.soundings[snd.ID] = cur
	return nil
}

// ClearSoundingImages drops every image of a sounding.
func (s *MemoryStore) ClearSoundingImages(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.soundings[id]
	if !ok {
		return ErrNotFound
	}
	cur.Images = nil
	cur.Version++
	s.soundings[id] = cur
	return nil
}

// AddOutput records a fleet export.
func (s *MemoryStore) AddOutput(_ context.Context, o weather.Output) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, o)
	return nil
}

// LatestOutput returns the most recent export of the given resolution.
func (s *MemoryStore) LatestOutput(_ context.Context, highResolution bool) (weather.Output, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest weather.Output
		found  bool
	)
	for _, o := range s.outputs {
		if o.IsHighResolution != highResolution {
			continue
		}
		if !found || o.Time.After(latest.Time) {
			latest = o
			found = true
		}
	}
	if !found {
		return weather.Output{}, ErrNotFound
	}
	return latest, nil
}

func cloneStation(st weather.Station) weather.Station {
	st.Config = maps.Clone(st.Config)
	return st
}


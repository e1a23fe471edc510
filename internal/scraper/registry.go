package scraper

import (
	"sort"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// Registry holds the adapters for each provider type key. Adapters are
// registered once at startup; lookups after that are safe from any goroutine.
type Registry struct {
	stations  map[string]weather.StationAdapter
	cams      map[string]weather.CamAdapter
	soundings map[string]weather.SoundingAdapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		stations:  make(map[string]weather.StationAdapter),
		cams:      make(map[string]weather.CamAdapter),
		soundings: make(map[string]weather.SoundingAdapter),
	}
}

// RegisterStation adds a station adapter, replacing any previous one for typ.
func (r *Registry) RegisterStation(typ string, a weather.StationAdapter) {
	r.stations[typ] = a
}

// RegisterCam adds a webcam adapter, replacing any previous one for typ.
func (r *Registry) RegisterCam(typ string, a weather.CamAdapter) {
	r.cams[typ] = a
}

// RegisterSounding adds a sounding adapter, replacing any previous one for typ.
func (r *Registry) RegisterSounding(typ string, a weather.SoundingAdapter) {
	r.soundings[typ] = a
}

// Station retrieves a station adapter by provider type.
func (r *Registry) Station(typ string) (weather.StationAdapter, bool) {
	a, ok := r.stations[typ]
	return a, ok
}

// Cam retrieves a webcam adapter by provider type.
func (r *Registry) Cam(typ string) (weather.CamAdapter, bool) {
	a, ok := r.cams[typ]
	return a, ok
}

// Sounding retrieves a sounding adapter by provider type.
func (r *Registry) Sounding(typ string) (weather.SoundingAdapter, bool) {
	a, ok := r.soundings[typ]
	return a, ok
}

// StationTypes returns the registered station types, sorted.
func (r *Registry) StationTypes() []string {
	return sortedKeys(r.stations)
}

// CamTypes returns the registered webcam types, sorted.
func (r *Registry) CamTypes() []string {
	return sortedKeys(r.cams)
}

// SoundingTypes returns the registered sounding types, sorted.
func (r *Registry) SoundingTypes() []string {
	return sortedKeys(r.soundings)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// HolfuyAdapter scrapes holfuy stations. The keyed bulk API is preferred;
// stations it does not return are read from the public widget endpoint, which
// needs the session cookie handed out by the station page.
type HolfuyAdapter struct {
	requester
	apiKey  string
	apiURL  string
	siteURL string
}

// NewHolfuyAdapter creates the holfuy adapter.
func NewHolfuyAdapter(cfg HTTPClientConfig, apiKey string) *HolfuyAdapter {
	return &HolfuyAdapter{
		requester: newRequester("holfuy", cfg),
		apiKey:    apiKey,
		apiURL:    "https://api.holfuy.com/live/",
		siteURL:   "https://holfuy.com",
	}
}

type holfuyBulkResponse struct {
	Measurements []struct {
		StationID flexString `json:"stationId"`
		Wind      *struct {
			Speed     *float64 `json:"speed"`
			Gust      *float64 `json:"gust"`
			Direction *float64 `json:"direction"`
		} `json:"wind"`
		Temperature *float64 `json:"temperature"`
	} `json:"measurements"`
}

// ScrapeAll reads every station the bulk API knows about in one request.
func (a *HolfuyAdapter) ScrapeAll(ctx context.Context, stations []weather.Station) (map[uuid.UUID]weather.Measurement, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("holfuy api key is not configured")
	}

	values := url.Values{}
	values.Set("pw", a.apiKey)
	values.Set("m", "JSON")
	values.Set("tu", "C")
	values.Set("su", "km/h")
	values.Set("s", "all")

	var payload holfuyBulkResponse
	if err := a.getJSON(ctx, a.apiURL+"?"+values.Encode(), nil, &payload); err != nil {
		return nil, err
	}

	byExternal := make(map[string]weather.Measurement, len(payload.Measurements))
	for _, m := range payload.Measurements {
		var data weather.Measurement
		if m.Wind != nil {
			data.WindAverage = m.Wind.Speed
			data.WindGust = m.Wind.Gust
			data.WindBearing = m.Wind.Direction
		}
		data.Temperature = m.Temperature
		byExternal[string(m.StationID)] = data
	}

	result := make(map[uuid.UUID]weather.Measurement)
	for _, st := range stations {
		if data, ok := byExternal[st.ExternalID]; ok {
			result[st.ID] = data
		}
	}
	return result, nil
}

// Scrape reads one station through the widget endpoint. Without a session
// cookie the station reports no data rather than an error.
func (a *HolfuyAdapter) Scrape(ctx context.Context, st weather.Station) (weather.Measurement, error) {
	if st.ExternalID == "" {
		return weather.Measurement{}, fmt.Errorf("%w: holfuy station %s has no external id", errBadSourceID, st.ID)
	}

	if a.httpCfg.Client == nil {
		return weather.Measurement{}, errNoHTTPClient
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return weather.Measurement{}, err
	}
	// a copy so the jar stays private to this station
	session := a.requester
	client := *a.httpCfg.Client
	client.Jar = jar
	session.httpCfg.Client = &client

	pageURL := fmt.Sprintf("%s/en/weather/%s", a.siteURL, url.PathEscape(st.ExternalID))
	if _, _, err := session.get(ctx, pageURL, nil); err != nil {
		return weather.Measurement{}, err
	}

	u, err := url.Parse(a.siteURL)
	if err != nil {
		return weather.Measurement{}, err
	}
	if len(jar.Cookies(u)) == 0 {
		return weather.Measurement{}, nil
	}

	var payload struct {
		Speed       *float64 `json:"speed"`
		Gust        *float64 `json:"gust"`
		Dir         *float64 `json:"dir"`
		Temperature *float64 `json:"temperature"`
	}
	dataURL := fmt.Sprintf("%s/puget/mjso.php?k=%s", a.siteURL, url.QueryEscape(st.ExternalID))
	if err := session.getJSON(ctx, dataURL, http.Header{"Referer": {pageURL}}, &payload); err != nil {
		return weather.Measurement{}, err
	}

	return weather.Measurement{
		WindAverage: payload.Speed,
		WindGust:    payload.Gust,
		WindBearing: payload.Dir,
		Temperature: payload.Temperature,
	}, nil
}

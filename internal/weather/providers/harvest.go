package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// Station config keys holding "<graphId>_<traceId>" pairs for each quantity.
const (
	HarvestWindAverageKey   = "windAverageId"
	HarvestWindGustKey      = "windGustId"
	HarvestWindDirectionKey = "windDirectionId"
	HarvestTemperatureKey   = "temperatureId"
)

const (
	harvestWindow   = 40 * time.Minute
	harvestSitesTTL = 5 * time.Minute
)

// HarvestAdapter reads harvest.com stations. Each of the four quantities is a
// separate trace sub-query. Sites exposed to the keyed API are read through
// it; the rest go through the public graph endpoint. ExternalID is
// "<siteId>_<configId>".
type HarvestAdapter struct {
	requester
	apiKey   string
	apiURL   string
	graphURL string
	now      func() time.Time

	mu       sync.Mutex
	sites    []string
	sitesExp time.Time
	sitesReq singleflight.Group
}

// NewHarvestAdapter creates the harvest adapter. apiKey may be empty, in
// which case only the graph endpoint is used.
func NewHarvestAdapter(cfg HTTPClientConfig, apiKey string) *HarvestAdapter {
	return &HarvestAdapter{
		requester: newRequester("harvest", cfg),
		apiKey:    apiKey,
		apiURL:    "https://live.harvest.com/api.php",
		graphURL:  "https://data1.harvest.com//php/site_graph_functions.php",
		now:       time.Now,
	}
}

// Scrape reads one station.
func (a *HarvestAdapter) Scrape(ctx context.Context, st weather.Station) (weather.Measurement, error) {
	ids := strings.Split(st.ExternalID, "_")
	if len(ids) != 2 {
		return weather.Measurement{}, fmt.Errorf("%w: harvest station %s has id %q", errBadSourceID, st.Name, st.ExternalID)
	}
	siteID, configID := ids[0], ids[1]

	if a.apiKey != "" {
		sites, err := a.apiSites(ctx)
		if err != nil {
			log.Warn().Err(err).Str("service", "station").Str("type", "harvest").Msg("harvest site list error")
		} else if slices.Contains(sites, siteID) {
			return a.scrapeAPI(ctx, st)
		}
	}

	return a.scrapeGraph(ctx, st, siteID, configID), nil
}

type harvestSiteList struct {
	Sites []struct {
		SiteID flexString `json:"site_id"`
	} `json:"sites"`
	Links struct {
		Next any `json:"next"`
	} `json:"_links"`
}

// apiSites returns the sites visible to the API key, cached for a few minutes.
// Concurrent misses share one fetch.
func (a *HarvestAdapter) apiSites(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	sites, exp := a.sites, a.sitesExp
	a.mu.Unlock()
	if sites != nil && a.now().Before(exp) {
		return sites, nil
	}

	v, err, _ := a.sitesReq.Do("sites", func() (any, error) {
		a.mu.Lock()
		if a.sites != nil && a.now().Before(a.sitesExp) {
			defer a.mu.Unlock()
			return a.sites, nil
		}
		a.mu.Unlock()

		sites, err := a.fetchSites(ctx)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.sites = sites
		a.sitesExp = a.now().Add(harvestSitesTTL)
		a.mu.Unlock()
		return sites, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (a *HarvestAdapter) fetchSites(ctx context.Context) ([]string, error) {
	var sites []string
	for _, start := range []string{"", "200"} {
		values := url.Values{}
		values.Set("output_type", "application/json")
		values.Set("command_type", "get_user_site_list")
		values.Set("api_key", a.apiKey)
		if start != "" {
			values.Set("start", start)
		}

		var page harvestSiteList
		if err := a.getJSON(ctx, a.apiURL+"?"+values.Encode(), nil, &page); err != nil {
			return nil, err
		}
		for _, s := range page.Sites {
			sites = append(sites, string(s.SiteID))
		}
		if page.Links.Next == nil {
			break
		}
	}

	if sites == nil {
		sites = []string{}
	}
	return sites, nil
}

func (a *HarvestAdapter) scrapeAPI(ctx context.Context, st weather.Station) (weather.Measurement, error) {
	var data weather.Measurement
	for _, t := range harvestQuantities(&data) {
		_, traceID, ok := strings.Cut(st.ConfigValue(t.key), "_")
		if !ok {
			continue
		}

		values := url.Values{}
		values.Set("output_type", "application/json")
		values.Set("command_type", "get_data")
		values.Set("api_key", a.apiKey)
		values.Set("trace_id", traceID)

		var payload struct {
			Data []struct {
				UnixTime  string   `json:"unix_time"`
				DataValue *float64 `json:"data_value"`
			} `json:"data"`
		}
		if err := a.getJSON(ctx, a.apiURL+"?"+values.Encode(), nil, &payload); err != nil {
			return weather.Measurement{}, err
		}
		if len(payload.Data) != 1 {
			continue
		}
		row := payload.Data[0]
		unix, err := strconv.ParseInt(strings.TrimSuffix(row.UnixTime, ".000"), 10, 64)
		if err != nil {
			continue
		}
		// skip stale values
		if a.now().Sub(time.Unix(unix, 0)) >= harvestWindow {
			continue
		}
		*t.dst = row.DataValue
	}
	return data, nil
}

type harvestQuantity struct {
	key string
	dst **float64
}

func harvestQuantities(m *weather.Measurement) []harvestQuantity {
	return []harvestQuantity{
		{HarvestWindAverageKey, &m.WindAverage},
		{HarvestWindGustKey, &m.WindGust},
		{HarvestWindDirectionKey, &m.WindBearing},
		{HarvestTemperatureKey, &m.Temperature},
	}
}

type harvestPoint struct {
	DataValue *float64 `json:"data_value"`
}

// scrapeGraph issues one graph sub-query per configured trace. A failed
// sub-query only loses that quantity.
func (a *HarvestAdapter) scrapeGraph(ctx context.Context, st weather.Station, siteID, configID string) weather.Measurement {
	var data weather.Measurement
	for _, t := range harvestQuantities(&data) {
		graphID, traceID, ok := strings.Cut(st.ConfigValue(t.key), "_")
		if !ok {
			continue
		}
		v, err := a.graphValue(ctx, siteID, configID, graphID, traceID, st.SessionCookie)
		if err != nil {
			log.Warn().Err(err).Str("service", "station").Str("type", "harvest").
				Msgf("harvest error data value - %s / %s / %s", siteID, graphID, traceID)
			continue
		}
		*t.dst = v
	}
	return data
}

func (a *HarvestAdapter) graphValue(ctx context.Context, siteID, configID, graphID, traceID, cookie string) (*float64, error) {
	const layout = "2006-01-02T15:04:00.000"
	to := a.now().UTC()
	from := to.Add(-harvestWindow)

	form := url.Values{}
	form.Set("config_id", configID)
	form.Set("trace_id", traceID)
	form.Set("graph_id", graphID)
	form.Set("start_date", from.Format(layout))
	form.Set("start_date_stats", from.Format(layout))
	form.Set("end_date", to.Format(layout))

	u := fmt.Sprintf("%s?retrieve_trace=&req_ref=%s_%s_%s", a.graphURL, siteID, configID, graphID)
	resp, err := a.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, u, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	points, err := harvestGraphPoints(raw)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	return points[len(points)-1].DataValue, nil
}

// harvestGraphPoints handles both response shapes: an array of series or an
// object keyed by series number.
func harvestGraphPoints(raw json.RawMessage) ([]harvestPoint, error) {
	type series struct {
		Data []harvestPoint `json:"data"`
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var arr []series
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, err
		}
		if len(arr) == 0 {
			return nil, nil
		}
		return arr[0].Data, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for _, key := range []string{"1", "2", "3"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		var s series
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, err
		}
		if s.Data != nil {
			return s.Data, nil
		}
	}
	return nil, nil
}

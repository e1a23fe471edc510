package providers

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// Station config keys naming the Hilltop measurement for each quantity.
const (
	HilltopWindAverageKey = "windAverageField"
	HilltopWindGustKey    = "windGustField"
	HilltopWindBearingKey = "windBearingField"
	HilltopTemperatureKey = "temperatureField"
)

// hilltopZone is NZST without daylight saving; the server expects it.
var hilltopZone = time.FixedZone("NZST", 12*60*60)

// HilltopAdapter reads a Hilltop XML server (Greater Wellington). One
// request is made per configured measurement over the last 30 minutes and the
// newest <I1> value wins. ExternalID is the Hilltop site name.
type HilltopAdapter struct {
	requester
	baseURL string
	now     func() time.Time
}

// NewHilltopAdapter creates the gw adapter.
func NewHilltopAdapter(cfg HTTPClientConfig) *HilltopAdapter {
	return &HilltopAdapter{
		requester: newRequester("gw", cfg),
		baseURL:   "https://hilltop.gw.govt.nz/Data.hts/",
		now:       time.Now,
	}
}

// Scrape reads one station.
func (a *HilltopAdapter) Scrape(ctx context.Context, st weather.Station) (weather.Measurement, error) {
	if st.ExternalID == "" {
		return weather.Measurement{}, fmt.Errorf("%w: gw station %s has no site", errBadSourceID, st.ID)
	}

	const layout = "2006-01-02 15:04:05"
	to := a.now().In(hilltopZone)
	from := to.Add(-30 * time.Minute)

	var data weather.Measurement
	fields := []struct {
		key string
		dst **float64
	}{
		{HilltopWindAverageKey, &data.WindAverage},
		{HilltopWindGustKey, &data.WindGust},
		{HilltopWindBearingKey, &data.WindBearing},
		{HilltopTemperatureKey, &data.Temperature},
	}

	for _, f := range fields {
		measurement := st.ConfigValue(f.key)
		if measurement == "" {
			continue
		}

		values := url.Values{}
		values.Set("Service", "Hilltop")
		values.Set("Request", "GetData")
		values.Set("Site", st.ExternalID)
		values.Set("From", from.Format(layout))
		values.Set("To", to.Format(layout))
		values.Set("Measurement", measurement)

		body, _, err := a.get(ctx, a.baseURL+"?"+values.Encode(), nil)
		if err != nil {
			return weather.Measurement{}, err
		}
		v, err := lastHilltopValue(body)
		if err != nil {
			return weather.Measurement{}, fmt.Errorf("parse %s for %s: %w", measurement, st.ExternalID, err)
		}
		*f.dst = v
	}

	return data, nil
}

// lastHilltopValue returns the last numeric <I1> value in the document.
func lastHilltopValue(body []byte) (*float64, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var last *float64
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return last, nil
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "I1" {
			continue
		}
		var raw string
		if err := dec.DecodeElement(&raw, &start); err != nil {
			return nil, err
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			last = weather.Float(v)
		}
	}
}

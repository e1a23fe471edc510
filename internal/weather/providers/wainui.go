package providers

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/i474232898/weather-ingest/internal/common"
	"github.com/i474232898/weather-ingest/internal/weather"
)

// WainuiAdapter scrapes a hand-maintained HTML weather page by looking for
// fixed marker strings around each value. The page reports no gust.
type WainuiAdapter struct {
	requester
	pageURL string
}

// NewWainuiAdapter creates the wainui adapter.
func NewWainuiAdapter(cfg HTTPClientConfig) *WainuiAdapter {
	return &WainuiAdapter{
		requester: newRequester("wainui", cfg),
		pageURL:   "http://mcgavin.no-ip.info/weather/wainui/index.html",
	}
}

const (
	wainuiValueStart  = "<td><b>"
	wainuiDegree      = "&#176;"
	wainuiValueEnd    = "</b></td>"
	wainuiBearingMark = "<td><b>Wind Direction</b> (average 1 minute)</td>"
	wainuiSpeedMark   = "<td><b>Wind Speed</b> (average 1 minute)</td>"
	wainuiTempMark    = "<td><b>Temperature</b></td>"
)

// Scrape reads the page. A station may override the page with Config["url"].
func (a *WainuiAdapter) Scrape(ctx context.Context, st weather.Station) (weather.Measurement, error) {
	pageURL := a.pageURL
	if v := st.ConfigValue("url"); v != "" {
		pageURL = v
	}

	body, header, err := a.get(ctx, pageURL, nil)
	if err != nil {
		return weather.Measurement{}, err
	}

	r, err := charset.NewReader(bytes.NewReader(body), header.Get("Content-Type"))
	if err != nil {
		return weather.Measurement{}, err
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return weather.Measurement{}, err
	}

	return parseWainui(string(decoded)), nil
}

func parseWainui(page string) weather.Measurement {
	var data weather.Measurement
	if page == "" {
		return data
	}

	if raw, ok := markedValue(page, wainuiBearingMark, wainuiDegree); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			data.WindBearing = weather.Float(v)
		}
	}

	if raw, ok := markedValue(page, wainuiSpeedMark, wainuiValueEnd); ok {
		raw = strings.TrimSpace(strings.Replace(raw, "km/h", "", 1))
		if common.HasAny(raw, "calm") {
			data.WindAverage = weather.Float(0)
		} else if v, err := strconv.ParseFloat(raw, 64); err == nil {
			data.WindAverage = weather.Float(v)
		}
	}

	if raw, ok := markedValue(page, wainuiTempMark, wainuiDegree); ok {
		// temperatures carry a leading sign or padding character
		if len(raw) > 0 && (raw[0] == '+' || raw[0] == ' ') {
			raw = strings.TrimSpace(raw[1:])
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			data.Temperature = weather.Float(v)
		}
	}

	return data
}

// markedValue returns the text between the first value cell after marker and
// end.
func markedValue(page, marker, end string) (string, bool) {
	i := strings.Index(page, marker)
	if i < 0 {
		return "", false
	}
	rest := page[i+len(marker):]
	j := strings.Index(rest, wainuiValueStart)
	if j < 0 {
		return "", false
	}
	rest = rest[j+len(wainuiValueStart):]
	k := strings.Index(rest, end)
	if k < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:k]), true
}

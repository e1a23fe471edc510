package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/i474232898/weather-ingest/internal/common"
	"github.com/i474232898/weather-ingest/internal/weather"
)

// WeatherLinkAdapter reads the WeatherLink bulletin endpoint. It replays the
// session cookie stored on the station; the cookie itself is refreshed
// elsewhere.
type WeatherLinkAdapter struct {
	requester
	baseURL string
}

// NewWeatherLinkAdapter creates the WeatherLink adapter.
func NewWeatherLinkAdapter(cfg HTTPClientConfig) *WeatherLinkAdapter {
	return &WeatherLinkAdapter{
		requester: newRequester("wl", cfg),
		baseURL:   "https://www.weatherlink.com",
	}
}

type weatherLinkResponse struct {
	OMaiaData []struct {
		LogicalSensor []struct {
			ProductName    string `json:"productName"`
			SensorDataType []struct {
				SensorDataName string   `json:"sensorDataName"`
				DataValue      *float64 `json:"dataValue"`
			} `json:"sensorDataType"`
		} `json:"logicalSensor"`
	} `json:"oMaiaData"`
}

// Scrape reads one station. Wind is reported in mph and temperature in
// Fahrenheit upstream.
func (a *WeatherLinkAdapter) Scrape(ctx context.Context, st weather.Station) (weather.Measurement, error) {
	if st.ExternalID == "" {
		return weather.Measurement{}, fmt.Errorf("%w: weatherlink station %s has no external id", errBadSourceID, st.ID)
	}

	var payload weatherLinkResponse
	u := fmt.Sprintf("%s/bulletin/data/%s", a.baseURL, url.PathEscape(st.ExternalID))
	if err := a.getJSON(ctx, u, http.Header{"Cookie": {st.SessionCookie}}, &payload); err != nil {
		return weather.Measurement{}, err
	}

	var data weather.Measurement
	if len(payload.OMaiaData) != 1 {
		return data, nil
	}
	for _, sensor := range payload.OMaiaData[0].LogicalSensor {
		if sensor.ProductName != "Temp/Hum" {
			continue
		}
		for _, t := range sensor.SensorDataType {
			if t.DataValue == nil {
				continue
			}
			v := *t.DataValue
			switch t.SensorDataName {
			case "10 Min Avg Wind Speed":
				data.WindAverage = weather.Float(mphToKmh(v))
			case "10 Min High Wind Speed":
				data.WindGust = weather.Float(mphToKmh(v))
			case "10 Min Scalar Avg Wind Direction":
				data.WindBearing = weather.Float(v)
			case "Temp":
				data.Temperature = weather.Float(fahrenheitToCelsius(v))
			}
		}
		break
	}
	return data, nil
}

func mphToKmh(v float64) float64 {
	return common.RoundTo(v*1.609, 1)
}

func fahrenheitToCelsius(v float64) float64 {
	return common.RoundTo((v-32)*5/9, 1)
}

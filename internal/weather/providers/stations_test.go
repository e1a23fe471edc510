package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-ingest/internal/weather"
)

func TestHolfuyScrapeAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pw") != "secret" {
			t.Errorf("expected api key, got %q", r.URL.Query().Get("pw"))
		}
		fmt.Fprint(w, `{"measurements":[
			{"stationId":101,"wind":{"speed":12.5,"gust":20,"direction":270},"temperature":8.1},
			{"stationId":"102","wind":{"speed":null}}
		]}`)
	}))
	defer srv.Close()

	a := NewHolfuyAdapter(testHTTPConfig(), "secret")
	a.apiURL = srv.URL

	known := weather.Station{ID: uuid.New(), ExternalID: "101"}
	partial := weather.Station{ID: uuid.New(), ExternalID: "102"}
	missing := weather.Station{ID: uuid.New(), ExternalID: "999"}

	got, err := a.ScrapeAll(context.Background(), []weather.Station{known, partial, missing})
	if err != nil {
		t.Fatalf("ScrapeAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 stations in bulk result, got %d", len(got))
	}
	m := got[known.ID]
	if !floatEquals(m.WindAverage, 12.5) || !floatEquals(m.WindGust, 20) || !floatEquals(m.WindBearing, 270) || !floatEquals(m.Temperature, 8.1) {
		t.Fatalf("unexpected measurement %+v", m)
	}
	if !got[partial.ID].IsEmpty() {
		t.Fatalf("expected empty measurement for partial station, got %+v", got[partial.ID])
	}
	if _, ok := got[missing.ID]; ok {
		t.Fatal("expected missing station to be left for the individual path")
	}
}

func TestHolfuyScrapeAllWithoutKey(t *testing.T) {
	a := NewHolfuyAdapter(testHTTPConfig(), "")
	if _, err := a.ScrapeAll(context.Background(), nil); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestHolfuySessionReplay(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/en/weather/101", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "abc", Path: "/"})
		fmt.Fprint(w, "<html></html>")
	})
	mux.HandleFunc("/puget/mjso.php", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("PHPSESSID")
		if err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"speed":10,"gust":15,"dir":90,"temperature":4}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewHolfuyAdapter(testHTTPConfig(), "")
	a.siteURL = srv.URL

	m, err := a.Scrape(context.Background(), weather.Station{ID: uuid.New(), ExternalID: "101"})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !m.Complete() || *m.WindAverage != 10 || *m.WindBearing != 90 {
		t.Fatalf("unexpected measurement %+v", m)
	}
}

func TestHolfuyWithoutSessionCookieReportsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/puget") {
			t.Error("widget endpoint should not be called without a session")
		}
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	a := NewHolfuyAdapter(testHTTPConfig(), "")
	a.siteURL = srv.URL

	m, err := a.Scrape(context.Background(), weather.Station{ID: uuid.New(), ExternalID: "101"})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !m.IsEmpty() {
		t.Fatalf("expected empty measurement, got %+v", m)
	}
}

func TestWeatherLinkScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bulletin/data/abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Cookie") != "session=xyz" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"oMaiaData":[{"logicalSensor":[
			{"productName":"Other","sensorDataType":[{"sensorDataName":"Temp","dataValue":1000}]},
			{"productName":"Temp/Hum","sensorDataType":[
				{"sensorDataName":"10 Min Avg Wind Speed","dataValue":10},
				{"sensorDataName":"10 Min High Wind Speed","dataValue":20},
				{"sensorDataName":"10 Min Scalar Avg Wind Direction","dataValue":180},
				{"sensorDataName":"Temp","dataValue":50}
			]}
		]}]}`)
	}))
	defer srv.Close()

	a := NewWeatherLinkAdapter(testHTTPConfig())
	a.baseURL = srv.URL

	m, err := a.Scrape(context.Background(), weather.Station{ID: uuid.New(), ExternalID: "abc", SessionCookie: "session=xyz"})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !floatEquals(m.WindAverage, 16.1) {
		t.Fatalf("expected 10 mph as 16.1 km/h, got %v", m.WindAverage)
	}
	if !floatEquals(m.WindGust, 32.2) {
		t.Fatalf("expected 20 mph as 32.2 km/h, got %v", m.WindGust)
	}
	if !floatEquals(m.WindBearing, 180) {
		t.Fatalf("expected bearing 180, got %v", m.WindBearing)
	}
	if !floatEquals(m.Temperature, 10) {
		t.Fatalf("expected 50F as 10C, got %v", m.Temperature)
	}
}

func TestWeatherLinkExpiredSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewWeatherLinkAdapter(testHTTPConfig())
	a.baseURL = srv.URL

	if _, err := a.Scrape(context.Background(), weather.Station{ID: uuid.New(), ExternalID: "abc"}); err == nil {
		t.Fatal("expected error for rejected session")
	}
}

const wainuiPage = `<html><body><table>
<tr><td><b>Wind Direction</b> (average 1 minute)</td><td><b>225&#176;</b></td></tr>
<tr><td><b>Wind Speed</b> (average 1 minute)</td><td><b>14 km/h</b></td></tr>
<tr><td><b>Temperature</b></td><td><b>+12.4&#176;C</b></td></tr>
</table></body></html>`

func TestParseWainui(t *testing.T) {
	m := parseWainui(wainuiPage)
	if !floatEquals(m.WindBearing, 225) {
		t.Fatalf("expected bearing 225, got %v", m.WindBearing)
	}
	if !floatEquals(m.WindAverage, 14) {
		t.Fatalf("expected average 14, got %v", m.WindAverage)
	}
	if !floatEquals(m.Temperature, 12.4) {
		t.Fatalf("expected temperature 12.4, got %v", m.Temperature)
	}
	if m.WindGust != nil {
		t.Fatalf("expected no gust, got %v", *m.WindGust)
	}

	calm := parseWainui(strings.Replace(wainuiPage, "14 km/h", "CALM", 1))
	if !floatEquals(calm.WindAverage, 0) {
		t.Fatalf("expected CALM as 0, got %v", calm.WindAverage)
	}

	if !parseWainui("<html></html>").IsEmpty() {
		t.Fatal("expected nothing from a page without markers")
	}
}

func TestWainuiScrapeDecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		fmt.Fprint(w, wainuiPage)
	}))
	defer srv.Close()

	a := NewWainuiAdapter(testHTTPConfig())
	a.pageURL = srv.URL

	m, err := a.Scrape(context.Background(), weather.Station{ID: uuid.New()})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !floatEquals(m.WindAverage, 14) {
		t.Fatalf("expected average 14, got %v", m.WindAverage)
	}
}

func TestHarvestGraphScrape(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("end_date"); got != "2024-03-01T10:00:00.000" {
			t.Errorf("unexpected end_date %q", got)
		}
		if got := r.PostForm.Get("start_date"); got != "2024-03-01T09:20:00.000" {
			t.Errorf("unexpected start_date %q", got)
		}

		switch r.PostForm.Get("trace_id") {
		case "1":
			fmt.Fprint(w, `[{"data":[{"data_value":5},{"data_value":7}]}]`)
		case "2":
			fmt.Fprint(w, `{"2":{"data":[{"data_value":12}]}}`)
		case "3":
			fmt.Fprint(w, `{"1":{"data":[{"data_value":300}]}}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	a := NewHarvestAdapter(testHTTPConfig(), "")
	a.graphURL = srv.URL
	a.now = func() time.Time { return now }

	st := weather.Station{
		ID:         uuid.New(),
		Name:       "Levin",
		ExternalID: "10_20",
		Config: map[string]string{
			HarvestWindAverageKey:   "30_1",
			HarvestWindGustKey:      "30_2",
			HarvestWindDirectionKey: "31_3",
			HarvestTemperatureKey:   "32_4",
		},
	}

	m, err := a.Scrape(context.Background(), st)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !floatEquals(m.WindAverage, 7) {
		t.Fatalf("expected last average value 7, got %v", m.WindAverage)
	}
	if !floatEquals(m.WindGust, 12) {
		t.Fatalf("expected gust 12, got %v", m.WindGust)
	}
	if !floatEquals(m.WindBearing, 300) {
		t.Fatalf("expected bearing 300, got %v", m.WindBearing)
	}
	if m.Temperature != nil {
		t.Fatalf("expected failed temperature sub-query to be nil, got %v", *m.Temperature)
	}
}

func TestHarvestAPIScrape(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fresh := now.Add(-5 * time.Minute).Unix()
	stale := now.Add(-41 * time.Minute).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("command_type") {
		case "get_user_site_list":
			fmt.Fprint(w, `{"sites":[{"site_id":"10"},{"site_id":11}]}`)
		case "get_data":
			switch q.Get("trace_id") {
			case "1":
				fmt.Fprintf(w, `{"data":[{"unix_time":"%d.000","data_value":9}]}`, fresh)
			case "2":
				fmt.Fprintf(w, `{"data":[{"unix_time":"%d.000","data_value":30}]}`, stale)
			default:
				fmt.Fprint(w, `{"data":[]}`)
			}
		}
	}))
	defer srv.Close()

	a := NewHarvestAdapter(testHTTPConfig(), "key")
	a.apiURL = srv.URL
	a.graphURL = srv.URL + "/graph-should-not-be-used"
	a.now = func() time.Time { return now }

	st := weather.Station{
		ID:         uuid.New(),
		ExternalID: "10_20",
		Config: map[string]string{
			HarvestWindAverageKey: "30_1",
			HarvestWindGustKey:    "30_2",
		},
	}

	m, err := a.Scrape(context.Background(), st)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !floatEquals(m.WindAverage, 9) {
		t.Fatalf("expected fresh average 9, got %v", m.WindAverage)
	}
	if m.WindGust != nil {
		t.Fatalf("expected stale gust dropped, got %v", *m.WindGust)
	}
}

func TestHarvestSiteListFetchedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"sites":[{"site_id":"10"}]}`)
	}))
	defer srv.Close()

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewHarvestAdapter(testHTTPConfig(), "key")
	a.apiURL = srv.URL
	a.now = func() time.Time { return now }

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sites, err := a.apiSites(context.Background())
			if err != nil || len(sites) != 1 || sites[0] != "10" {
				t.Errorf("unexpected sites %v: %v", sites, err)
			}
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one site list request, got %d", n)
	}

	now = now.Add(harvestSitesTTL)
	if _, err := a.apiSites(context.Background()); err != nil {
		t.Fatalf("apiSites: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected refetch after expiry, got %d requests", n)
	}
}

func TestHarvestRejectsBadExternalID(t *testing.T) {
	a := NewHarvestAdapter(testHTTPConfig(), "")
	if _, err := a.Scrape(context.Background(), weather.Station{ExternalID: "nounderscore"}); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestHilltopScrape(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("Site") != "Mana Island" {
			t.Errorf("unexpected site %q", q.Get("Site"))
		}
		if q.Get("To") != "2024-03-01 12:00:00" {
			t.Errorf("expected To in NZST, got %q", q.Get("To"))
		}
		switch q.Get("Measurement") {
		case "Wind Speed":
			fmt.Fprint(w, `<?xml version="1.0"?><Hilltop><Measurement><Data>
				<E><T>2024-03-01T11:40:00</T><I1>20.5</I1></E>
				<E><T>2024-03-01T11:50:00</T><I1>22.1</I1></E>
			</Data></Measurement></Hilltop>`)
		case "Air Temperature":
			fmt.Fprint(w, `<Hilltop><Measurement><Data><E><I1>-1.5</I1></E></Data></Measurement></Hilltop>`)
		default:
			fmt.Fprint(w, `<Hilltop><Error>No data</Error></Hilltop>`)
		}
	}))
	defer srv.Close()

	a := NewHilltopAdapter(testHTTPConfig())
	a.baseURL = srv.URL
	a.now = func() time.Time { return now }

	st := weather.Station{
		ID:         uuid.New(),
		ExternalID: "Mana Island",
		Config: map[string]string{
			HilltopWindAverageKey: "Wind Speed",
			HilltopWindGustKey:    "Wind Gust",
			HilltopTemperatureKey: "Air Temperature",
		},
	}

	m, err := a.Scrape(context.Background(), st)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !floatEquals(m.WindAverage, 22.1) {
		t.Fatalf("expected last value 22.1, got %v", m.WindAverage)
	}
	if m.WindGust != nil {
		t.Fatalf("expected no gust, got %v", *m.WindGust)
	}
	if m.WindBearing != nil {
		t.Fatal("expected unconfigured bearing to stay nil")
	}
	if !floatEquals(m.Temperature, -1.5) {
		t.Fatalf("expected temperature -1.5, got %v", m.Temperature)
	}
}

func TestHilltopBrokenStationsDoNotTripHealthySibling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Site") != "Mana Island" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `<Hilltop><Measurement><Data><E><I1>12.5</I1></E></Data></Measurement></Hilltop>`)
	}))
	defer srv.Close()

	a := NewHilltopAdapter(testHTTPConfig())
	a.baseURL = srv.URL

	cfg := map[string]string{HilltopWindAverageKey: "Wind Speed"}
	for i := 0; i < 12; i++ {
		st := weather.Station{ID: uuid.New(), ExternalID: fmt.Sprintf("Gone %d", i), Config: cfg}
		m, _ := a.Scrape(context.Background(), st)
		if m.WindAverage != nil {
			t.Fatalf("expected no data for broken station %d", i)
		}
	}

	m, err := a.Scrape(context.Background(), weather.Station{ID: uuid.New(), ExternalID: "Mana Island", Config: cfg})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !floatEquals(m.WindAverage, 12.5) {
		t.Fatalf("expected healthy station to be read, got %v", m.WindAverage)
	}
}

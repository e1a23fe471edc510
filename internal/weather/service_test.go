package weather_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-ingest/internal/store"
	"github.com/i474232898/weather-ingest/internal/weather"
)

func newService(t *testing.T, now time.Time) (*weather.Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore(0)
	svc := weather.NewService(mem, weather.ServiceConfig{
		Limits:    weather.DefaultLimits(),
		Retention: 24 * time.Hour,
	}).WithClock(func() time.Time { return now })
	return svc, mem
}

func TestProcessStationDataFloorsReadingTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 7, 31, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name    string
		highRes bool
		want    time.Time
	}{
		{name: "standard", highRes: false, want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{name: "high resolution", highRes: true, want: time.Date(2024, 3, 1, 10, 6, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mem := newService(t, now)
			st, _ := mem.CreateStation(ctx, weather.Station{Name: "A", Type: "wl", IsHighResolution: tt.highRes})

			if err := svc.ProcessStationData(ctx, st, weather.Measurement{WindAverage: weather.Float(10)}); err != nil {
				t.Fatalf("ProcessStationData: %v", err)
			}

			r, err := mem.LatestReading(ctx, st.ID)
			if err != nil {
				t.Fatalf("LatestReading: %v", err)
			}
			if !r.Time.Equal(tt.want) {
				t.Fatalf("expected reading at %v, got %v", tt.want, r.Time)
			}
			if !r.ExpiresAt.Equal(tt.want.Add(24 * time.Hour)) {
				t.Fatalf("expected expiry a day later, got %v", r.ExpiresAt)
			}
		})
	}
}

func TestProcessStationDataClearsLatches(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	svc, mem := newService(t, now)

	st, _ := mem.CreateStation(ctx, weather.Station{Name: "A", Type: "wl", IsOffline: true, IsError: true})

	// wind without temperature clears offline only
	if err := svc.ProcessStationData(ctx, st, weather.Measurement{WindAverage: weather.Float(5), WindGust: weather.Float(8)}); err != nil {
		t.Fatalf("ProcessStationData: %v", err)
	}
	got, _ := mem.GetStation(ctx, st.ID)
	if got.IsOffline {
		t.Fatal("expected offline cleared")
	}
	if !got.IsError {
		t.Fatal("expected error latch to stay set")
	}
	if !got.LastUpdate.Equal(now) {
		t.Fatalf("expected lastUpdate %v, got %v", now, got.LastUpdate)
	}

	full := weather.Measurement{
		WindAverage: weather.Float(5),
		WindGust:    weather.Float(8),
		WindBearing: weather.Float(200),
		Temperature: weather.Float(12),
	}
	if err := svc.ProcessStationData(ctx, got, full); err != nil {
		t.Fatalf("ProcessStationData: %v", err)
	}
	got, _ = mem.GetStation(ctx, st.ID)
	if got.IsError || got.IsOffline {
		t.Fatalf("expected both latches cleared, got offline=%v error=%v", got.IsOffline, got.IsError)
	}
}

func TestProcessStationDataDiscardsOutOfRange(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	svc, mem := newService(t, now)

	st, _ := mem.CreateStation(ctx, weather.Station{Name: "A", Type: "wl", IsOffline: true})

	if err := svc.ProcessStationData(ctx, st, weather.Measurement{WindAverage: weather.Float(600)}); err != nil {
		t.Fatalf("ProcessStationData: %v", err)
	}

	r, _ := mem.LatestReading(ctx, st.ID)
	if r.WindAverage != nil {
		t.Fatalf("expected out of range average dropped, got %v", *r.WindAverage)
	}
	got, _ := mem.GetStation(ctx, st.ID)
	if !got.IsOffline {
		t.Fatal("expected offline latch to stay set without valid wind")
	}
}

func TestProcessStationDataRetriesAfterConflict(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	svc, mem := newService(t, now)

	st, _ := mem.CreateStation(ctx, weather.Station{Name: "A", Type: "wl", IsOffline: true})

	// the health check latches the station after st was loaded
	if err := mem.MarkError(ctx, []uuid.UUID{st.ID}); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	if err := svc.ProcessStationData(ctx, st, weather.Measurement{WindAverage: weather.Float(7)}); err != nil {
		t.Fatalf("expected conflict to be retried, got %v", err)
	}

	got, _ := mem.GetStation(ctx, st.ID)
	if got.IsOffline {
		t.Fatal("expected offline cleared")
	}
	if !got.IsError {
		t.Fatal("expected concurrent error latch to survive the retry")
	}
	if got.Current.WindAverage == nil || *got.Current.WindAverage != 7 {
		t.Fatalf("expected current average 7, got %v", got.Current.WindAverage)
	}
}

func TestProcessStationDataUnknownStation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, time.Now())

	err := svc.ProcessStationData(ctx, weather.Station{ID: uuid.New()}, weather.Measurement{})
	if !errors.Is(err, weather.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

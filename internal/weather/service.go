package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-ingest/internal/common"
)

// ServiceConfig controls how scraped values are normalized and stored.
type ServiceConfig struct {
	Limits Limits

	// BucketWidth floors reading timestamps for normal stations,
	// HighResBucketWidth for high resolution ones.
	BucketWidth        time.Duration
	HighResBucketWidth time.Duration

	// Retention is added to a reading's time to get its expiry.
	Retention time.Duration
}

// Service normalizes scraped values, updates station current-state and
// appends readings.
type Service struct {
	store StationStore
	cfg   ServiceConfig
	now   func() time.Time
}

// NewService creates a new Service.
func NewService(store StationStore, cfg ServiceConfig) *Service {
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = 10 * time.Minute
	}
	if cfg.HighResBucketWidth <= 0 {
		cfg.HighResBucketWidth = 2 * time.Minute
	}
	return &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// WithClock replaces the service clock. Used by tests and replays.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// BucketWidth returns the reading resolution used for a station.
func (s *Service) BucketWidth(st Station) time.Duration {
	if st.IsHighResolution {
		return s.cfg.HighResBucketWidth
	}
	return s.cfg.BucketWidth
}

// ProcessStationData validates m, appends a reading and updates the
// station's current state. The latch flags are only ever cleared here:
// isOffline when wind data arrives, isError when all four values arrive.
func (s *Service) ProcessStationData(ctx context.Context, st Station, m Measurement) error {
	data := s.cfg.Limits.Validate(m)
	now := s.now().UTC()

	ts := common.FloorTime(now, s.BucketWidth(st))
	reading := Reading{
		ID:          uuid.New(),
		StationID:   st.ID,
		Time:        ts,
		Measurement: data,
	}
	if s.cfg.Retention > 0 {
		reading.ExpiresAt = ts.Add(s.cfg.Retention)
	}

	if err := s.store.AppendReading(ctx, reading); err != nil {
		return fmt.Errorf("append reading for %s: %w", st.ID, err)
	}

	err := s.store.UpdateStationState(ctx, applyState(st, data, now))
	if errors.Is(err, ErrVersionConflict) {
		// Someone else (usually the health check) touched the station; reload
		// and apply on top of their write.
		fresh, getErr := s.store.GetStation(ctx, st.ID)
		if getErr != nil {
			return fmt.Errorf("reload station %s: %w", st.ID, getErr)
		}
		err = s.store.UpdateStationState(ctx, applyState(fresh, data, now))
	}
	if err != nil {
		return fmt.Errorf("update station %s: %w", st.ID, err)
	}

	return nil
}

func applyState(st Station, data Measurement, now time.Time) Station {
	st.LastUpdate = now
	st.Current = data
	if data.HasWind() {
		st.IsOffline = false
	}
	if data.Complete() {
		st.IsError = false
	}
	return st
}

// LogUpdated writes the standard "data updated" line for a station.
func LogUpdated(st Station) {
	ev := log.Info().Str("service", "station").Str("type", st.Type)
	if st.ExternalID != "" {
		ev = ev.Str("externalId", st.ExternalID)
	}
	ev.Msgf("%s data updated", st.Type)
}

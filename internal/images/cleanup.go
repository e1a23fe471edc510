package images

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// CleanupStore is the persistence the cleaner needs.
type CleanupStore interface {
	PurgeCamImages(ctx context.Context, before time.Time) (int64, error)
	PurgeReadings(ctx context.Context, expiredBefore time.Time) (int64, error)
	ListSoundings(ctx context.Context, includeDisabled bool) ([]weather.Sounding, error)
	ClearSoundingImages(ctx context.Context, id uuid.UUID) error
}

// FileRemover deletes stored files.
type FileRemover interface {
	RemoveOlderThan(ctx context.Context, dir string, cutoff time.Time) (int, error)
	RemoveAll(ctx context.Context, dir string) error
}

// Cleaner enforces retention on images and readings.
type Cleaner struct {
	store     CleanupStore
	files     FileRemover
	retention time.Duration
	now       func() time.Time
}

// NewCleaner creates a Cleaner. Cam images older than retention are removed;
// zero uses 24 hours.
func NewCleaner(store CleanupStore, files FileRemover, retention time.Duration) *Cleaner {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Cleaner{store: store, files: files, retention: retention, now: time.Now}
}

// Run removes old cam images and expired readings. Both steps always run.
func (c *Cleaner) Run(ctx context.Context) error {
	imgErr := c.RemoveOldImages(ctx)
	readErr := c.PurgeReadings(ctx)
	if imgErr != nil {
		return imgErr
	}
	return readErr
}

// RemoveOldImages drops cam gallery entries and files older than retention.
func (c *Cleaner) RemoveOldImages(ctx context.Context) error {
	cutoff := c.now().Add(-c.retention).UTC()

	n, err := c.store.PurgeCamImages(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Str("service", "cleanup").Msg("An error occured while removing old images")
		return fmt.Errorf("purge cam images: %w", err)
	}

	files, err := c.files.RemoveOlderThan(ctx, "cams", cutoff)
	if err != nil {
		log.Error().Err(err).Str("service", "cleanup").Msg("An error occured while removing old image files")
		return fmt.Errorf("remove cam files: %w", err)
	}

	log.Info().Str("service", "cleanup").Int64("records", n).Int("files", files).Msg("old images removed")
	return nil
}

// PurgeReadings drops readings past their expiry.
func (c *Cleaner) PurgeReadings(ctx context.Context) error {
	n, err := c.store.PurgeReadings(ctx, c.now().UTC())
	if err != nil {
		log.Error().Err(err).Str("service", "cleanup").Msg("An error occured while purging readings")
		return fmt.Errorf("purge readings: %w", err)
	}
	log.Info().Str("service", "cleanup").Int64("readings", n).Msg("expired readings removed")
	return nil
}

// ResetSoundings clears every sounding's charts, records and files, ahead of
// the daily fetch.
func (c *Cleaner) ResetSoundings(ctx context.Context) error {
	soundings, err := c.store.ListSoundings(ctx, true)
	if err != nil {
		return fmt.Errorf("list soundings: %w", err)
	}
	if len(soundings) == 0 {
		log.Error().Str("service", "sounding").Msg("No soundings found.")
		return nil
	}

	for _, s := range soundings {
		if err := c.store.ClearSoundingImages(ctx, s.ID); err != nil {
			log.Error().Err(err).Str("service", "sounding").Msg("An error occured while removing old soundings")
			return fmt.Errorf("clear sounding %s: %w", s.ID, err)
		}
		if s.RaspRegion == "" || s.RaspID == "" {
			continue
		}
		if err := c.files.RemoveAll(ctx, path.Join("soundings", s.RaspRegion, s.RaspID)); err != nil {
			log.Error().Err(err).Str("service", "sounding").Msg("An error occured while removing old soundings")
			return fmt.Errorf("remove sounding files %s: %w", s.ID, err)
		}
	}
	return nil
}

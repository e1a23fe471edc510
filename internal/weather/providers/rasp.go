package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// RASP forecast charts are published for these local hours.
const (
	raspFirstHour = 9
	raspLastHour  = 19
)

// RaspAdapter downloads the day's RASP sounding charts for a location.
type RaspAdapter struct {
	requester
	baseURL string
	now     func() time.Time
}

// NewRaspAdapter creates the rasp sounding adapter.
func NewRaspAdapter(cfg HTTPClientConfig) *RaspAdapter {
	return &RaspAdapter{
		requester: newRequester("rasp", cfg),
		baseURL:   "http://rasp.nz/rasp/regions",
		now:       time.Now,
	}
}

// Fetch returns one frame per hour that could be downloaded. A missing hour
// is logged and skipped; an error is returned only when every hour failed.
func (a *RaspAdapter) Fetch(ctx context.Context, s weather.Sounding) ([]weather.SoundingFrame, error) {
	if s.RaspRegion == "" || s.RaspID == "" {
		return nil, fmt.Errorf("%w: sounding %s has no rasp region/id", errBadSourceID, s.Name)
	}

	today := a.now().In(NZ)
	var (
		frames  []weather.SoundingFrame
		lastErr error
	)
	for hour := raspFirstHour; hour <= raspLastHour; hour++ {
		if ctx.Err() != nil {
			return frames, ctx.Err()
		}

		local := time.Date(today.Year(), today.Month(), today.Day(), hour, 0, 0, 0, NZ)
		data, err := a.fetchHour(ctx, s, local)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("service", "sounding").
				Msgf("rasp soundings error - %s - %s - %02d", s.RaspRegion, s.RaspID, hour)
			continue
		}
		frames = append(frames, weather.SoundingFrame{
			Time:  local.UTC(),
			Label: local.Format("2006-01-02T15:04:05"),
			Data:  data,
		})
	}

	if len(frames) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return frames, nil
}

// fetchHour tries the "+0" (today) region path first, then the bare region.
func (a *RaspAdapter) fetchHour(ctx context.Context, s weather.Sounding, local time.Time) ([]byte, error) {
	file := fmt.Sprintf("%s/%s/sounding%s.curr.%02d00lst.w2.png",
		local.Format("2006"), local.Format("20060102"), s.RaspID, local.Hour())

	data, err := a.getImage(ctx, fmt.Sprintf("%s/%s+0/%s", a.baseURL, s.RaspRegion, file), "image/png")
	if err == nil {
		return data, nil
	}
	return a.getImage(ctx, fmt.Sprintf("%s/%s/%s", a.baseURL, s.RaspRegion, file), "image/png")
}

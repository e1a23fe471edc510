package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-ingest/internal/weather"
)

var validate = validator.New()

// snapshotWindow is how far back the current endpoint averages readings.
const snapshotWindow = 30 * time.Minute

// Reader is the read side of the store the API serves from.
type Reader interface {
	ListStations(ctx context.Context, filter weather.StationFilter) ([]weather.Station, error)
	GetStation(ctx context.Context, id uuid.UUID) (weather.Station, error)
	ListReadings(ctx context.Context, stationID uuid.UUID, from, to time.Time) ([]weather.Reading, error)
	LatestOutput(ctx context.Context, highResolution bool) (weather.Output, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, store Reader) {
	v1 := app.Group("/api/v1")

	v1.Get("/stations/current", func(c *fiber.Ctx) error {
		at := time.Now().UTC()
		if s := c.Query("time"); s != "" {
			t, err := parseTime(s)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			at = t
		}

		ctx := c.UserContext()
		stations, err := store.ListStations(ctx, weather.StationFilter{})
		if err != nil {
			log.Error().Err(err).Msg("list stations")
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list stations")
		}

		result := make([]stationSnapshot, 0, len(stations))
		for _, st := range stations {
			readings, err := store.ListReadings(ctx, st.ID, at.Add(-snapshotWindow), at)
			if err != nil {
				log.Error().Err(err).Str("station", st.ID.String()).Msg("list readings")
				return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch readings")
			}
			avg := weather.SnapshotAverage(readings)
			result = append(result, stationSnapshot{
				ID:          st.ID,
				Name:        st.Name,
				Type:        st.Type,
				Location:    st.Location,
				WindAverage: avg.WindAverage,
				WindBearing: avg.WindBearing,
			})
		}

		return c.JSON(fiber.Map{
			"time":     at,
			"stations": result,
		})
	})

	v1.Get("/stations/:id/data", func(c *fiber.Ctx) error {
		var req dataQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ctx := c.UserContext()
		id := uuid.MustParse(req.ID)
		st, err := store.GetStation(ctx, id)
		if err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "station not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch station")
		}

		readings, err := store.ListReadings(ctx, id, req.From, req.To)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch readings")
		}
		weather.SortReadings(readings)

		width := time.Duration(req.Bucket) * time.Minute
		buckets := weather.Aggregate(readings, width)
		if buckets == nil {
			buckets = []weather.Bucket{}
		}

		return c.JSON(fiber.Map{
			"station": st,
			"from":    req.From,
			"to":      req.To,
			"bucket":  req.Bucket,
			"data":    buckets,
		})
	})

	v1.Get("/outputs/latest", func(c *fiber.Ctx) error {
		highRes := c.QueryBool("hr", false)
		out, err := store.LatestOutput(c.UserContext(), highRes)
		if err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no output recorded yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch output")
		}
		return c.JSON(out)
	})
}

type stationSnapshot struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Location    weather.Location `json:"location"`
	WindAverage *float64         `json:"windAverage"`
	WindBearing *float64         `json:"windBearing"`
}

// dataQuery holds the path and query parameters of the data endpoint.
type dataQuery struct {
	ID     string    `validate:"required,uuid"`
	From   time.Time `validate:"required"`
	To     time.Time `validate:"required,gtefield=From"`
	Bucket int       `validate:"min=1,max=1440"`
}

func (q *dataQuery) bind(c *fiber.Ctx) error {
	q.ID = c.Params("id")
	q.Bucket = c.QueryInt("bucket", 30)

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	q.From = from
	q.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}

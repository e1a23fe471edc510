package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/weather-ingest/internal/weather"
)

//go:embed schema.sql
var schema string

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLStore implements weather.Store on Postgres or SQLite. Queries use $n
// placeholders in ascending order so the same text runs on both drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL connects to the database, verifies the connection and creates the
// tables if they are missing.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time avoids "database is locked" under fan-out
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates any missing tables and indexes.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

const stationColumns = `id, name, type, external_id, external_link, lat, lon, elevation,
	valid_bearings, last_update, current_average, current_gust, current_bearing,
	current_temperature, is_high_resolution, is_offline, is_error, is_disabled,
	config, session_cookie, version`

// CreateStation inserts a station, assigning an id if it has none.
func (s *SQLStore) CreateStation(ctx context.Context, st weather.Station) (weather.Station, error) {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	cfg, err := encodeConfig(st.Config)
	if err != nil {
		return weather.Station{}, err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO stations (`+stationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		st.ID, st.Name, st.Type, st.ExternalID, st.ExternalLink, st.Location.Lat, st.Location.Lon, st.Elevation,
		st.ValidBearings, st.LastUpdate.UTC(), st.Current.WindAverage, st.Current.WindGust, st.Current.WindBearing,
		st.Current.Temperature, st.IsHighResolution, st.IsOffline, st.IsError, st.IsDisabled,
		cfg, st.SessionCookie, st.Version,
	)
	if err != nil {
		return weather.Station{}, fmt.Errorf("failed to insert station: %w", err)
	}
	return st, nil
}

// ListStations returns stations matching filter, ordered by type then name.
func (s *SQLStore) ListStations(ctx context.Context, filter weather.StationFilter) ([]weather.Station, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeDisabled {
		where = append(where, "is_disabled = FALSE")
	}
	if filter.HighResolution != nil {
		args = append(args, *filter.HighResolution)
		where = append(where, fmt.Sprintf("is_high_resolution = $%d", len(args)))
	}

	query := `SELECT ` + stationColumns + ` FROM stations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY type, name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var result []weather.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// GetStation returns one station.
func (s *SQLStore) GetStation(ctx context.Context, id uuid.UUID) (weather.Station, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = $1`, id)
	st, err := scanStation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Station{}, ErrNotFound
	}
	return st, err
}

// UpdateStationState writes the station's mutable state if its version matches.
func (s *SQLStore) UpdateStationState(ctx context.Context, st weather.Station) error {
	res, err := s.db.ExecContext(ctx, `UPDATE stations SET
		last_update = $1, current_average = $2, current_gust = $3, current_bearing = $4,
		current_temperature = $5, is_offline = $6, is_error = $7, version = version + 1
		WHERE id = $8 AND version = $9`,
		st.LastUpdate.UTC(), st.Current.WindAverage, st.Current.WindGust, st.Current.WindBearing,
		st.Current.Temperature, st.IsOffline, st.IsError, st.ID, st.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update station: %w", err)
	}
	return versionOutcome(ctx, s.db, res, "stations", st.ID)
}

// MarkOffline sets the offline latch on every station in ids.
func (s *SQLStore) MarkOffline(ctx context.Context, ids []uuid.UUID) error {
	return s.latch(ctx, "is_offline", ids)
}

// MarkError sets the error latch on every station in ids.
func (s *SQLStore) MarkError(ctx context.Context, ids []uuid.UUID) error {
	return s.latch(ctx, "is_error", ids)
}

func (s *SQLStore) latch(ctx context.Context, column string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE stations SET ` + column + ` = TRUE, version = version + 1 WHERE id = $1`
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("failed to set %s on %s: %w", column, id, err)
			}
		}
		return nil
	})
}

// AppendReading inserts a reading.
func (s *SQLStore) AppendReading(ctx context.Context, r weather.Reading) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO station_readings
		(id, station_id, observed_at, wind_average, wind_gust, wind_bearing, temperature, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.StationID, r.Time.UTC(), r.WindAverage, r.WindGust, r.WindBearing, r.Temperature,
		nullTime(r.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// ListReadings returns a station's readings between from and to (inclusive),
// ascending by time.
func (s *SQLStore) ListReadings(ctx context.Context, stationID uuid.UUID, from, to time.Time) ([]weather.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, station_id, observed_at, wind_average, wind_gust,
		wind_bearing, temperature, expires_at
		FROM station_readings
		WHERE station_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at ASC`,
		stationID, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var result []weather.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// LatestReading returns the most recent reading for a station.
func (s *SQLStore) LatestReading(ctx context.Context, stationID uuid.UUID) (weather.Reading, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, station_id, observed_at, wind_average, wind_gust,
		wind_bearing, temperature, expires_at
		FROM station_readings
		WHERE station_id = $1
		ORDER BY observed_at DESC
		LIMIT 1`, stationID)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Reading{}, ErrNotFound
	}
	return r, err
}

// PurgeReadings deletes readings whose expiry is before expiredBefore.
func (s *SQLStore) PurgeReadings(ctx context.Context, expiredBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM station_readings WHERE expires_at IS NOT NULL AND expires_at < $1`,
		expiredBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired readings: %w", err)
	}
	return res.RowsAffected()
}

const camColumns = `id, name, type, external_id, external_link, lat, lon, config,
	last_update, current_image_time, current_url, is_disabled, version`

// CreateCam inserts a webcam, assigning an id if it has none.
func (s *SQLStore) CreateCam(ctx context.Context, c weather.Cam) (weather.Cam, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cfg, err := encodeConfig(c.Config)
	if err != nil {
		return weather.Cam{}, err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO cams (`+camColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Name, c.Type, c.ExternalID, c.ExternalLink, c.Location.Lat, c.Location.Lon, cfg,
		c.LastUpdate.UTC(), nullTime(c.CurrentTime), c.CurrentURL, c.IsDisabled, c.Version,
	)
	if err != nil {
		return weather.Cam{}, fmt.Errorf("failed to insert cam: %w", err)
	}
	return c, nil
}

// ListCams returns webcams ordered by type then name.
func (s *SQLStore) ListCams(ctx context.Context, includeDisabled bool) ([]weather.Cam, error) {
	query := `SELECT ` + camColumns + ` FROM cams`
	if !includeDisabled {
		query += ` WHERE is_disabled = FALSE`
	}
	query += ` ORDER BY type, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query cams: %w", err)
	}
	defer rows.Close()

	var result []weather.Cam
	for rows.Next() {
		c, err := scanCam(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// GetCam returns one webcam.
func (s *SQLStore) GetCam(ctx context.Context, id uuid.UUID) (weather.Cam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+camColumns+` FROM cams WHERE id = $1`, id)
	c, err := scanCam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Cam{}, ErrNotFound
	}
	return c, err
}

// LatestImage returns the newest image of a webcam.
func (s *SQLStore) LatestImage(ctx context.Context, camID uuid.UUID) (weather.Image, error) {
	var img weather.Image
	err := s.db.QueryRowContext(ctx, `SELECT captured_at, url, hash, file_size
		FROM cam_images WHERE cam_id = $1
		ORDER BY captured_at DESC LIMIT 1`, camID,
	).Scan(&img.Time, &img.URL, &img.Hash, &img.FileSize)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Image{}, ErrNotFound
	}
	if err != nil {
		return weather.Image{}, fmt.Errorf("failed to query latest image: %w", err)
	}
	img.Time = img.Time.UTC()
	return img, nil
}

// ListImages returns a webcam's gallery ascending by time.
func (s *SQLStore) ListImages(ctx context.Context, camID uuid.UUID) ([]weather.Image, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT captured_at, url, hash, file_size
		FROM cam_images WHERE cam_id = $1 ORDER BY captured_at ASC`, camID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var result []weather.Image
	for rows.Next() {
		var img weather.Image
		if err := rows.Scan(&img.Time, &img.URL, &img.Hash, &img.FileSize); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		img.Time = img.Time.UTC()
		result = append(result, img)
	}
	return result, rows.Err()
}

// AddCamImage appends img and updates the cam's current image if the cam's
// version matches.
func (s *SQLStore) AddCamImage(ctx context.Context, c weather.Cam, img weather.Image) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE cams SET
			last_update = $1, current_image_time = $2, current_url = $3, version = version + 1
			WHERE id = $4 AND version = $5`,
			c.LastUpdate.UTC(), img.Time.UTC(), img.URL, c.ID, c.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update cam: %w", err)
		}
		if err := versionOutcome(ctx, tx, res, "cams", c.ID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO cam_images (id, cam_id, captured_at, url, hash, file_size)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), c.ID, img.Time.UTC(), img.URL, img.Hash, img.FileSize,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cam image: %w", err)
		}
		return nil
	})
}

// PurgeCamImages removes gallery entries taken at or before before.
func (s *SQLStore) PurgeCamImages(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cam_images WHERE captured_at <= $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete cam images: %w", err)
	}
	return res.RowsAffected()
}

// CreateSounding inserts a sounding, assigning an id if it has none.
func (s *SQLStore) CreateSounding(ctx context.Context, snd weather.Sounding) (weather.Sounding, error) {
	if snd.ID == uuid.Nil {
		snd.ID = uuid.New()
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO soundings
			(id, name, type, rasp_region, rasp_id, lat, lon, is_disabled, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			snd.ID, snd.Name, snd.Type, snd.RaspRegion, snd.RaspID, snd.Location.Lat, snd.Location.Lon,
			snd.IsDisabled, snd.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sounding: %w", err)
		}
		return insertSoundingImages(ctx, tx, snd.ID, snd.Images)
	})
	if err != nil {
		return weather.Sounding{}, err
	}
	return snd, nil
}

// ListSoundings returns soundings ordered by region then id.
func (s *SQLStore) ListSoundings(ctx context.Context, includeDisabled bool) ([]weather.Sounding, error) {
	query := `SELECT id, name, type, rasp_region, rasp_id, lat, lon, is_disabled, version FROM soundings`
	if !includeDisabled {
		query += ` WHERE is_disabled = FALSE`
	}
	query += ` ORDER BY rasp_region, rasp_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query soundings: %w", err)
	}

	var result []weather.Sounding
	for rows.Next() {
		snd, err := scanSounding(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, snd)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// images are loaded after the cursor is closed; sqlite runs on one connection
	for i := range result {
		imgs, err := s.soundingImages(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Images = imgs
	}
	return result, nil
}

// GetSounding returns one sounding with its images.
func (s *SQLStore) GetSounding(ctx context.Context, id uuid.UUID) (weather.Sounding, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, type, rasp_region, rasp_id, lat, lon, is_disabled, version
		FROM soundings WHERE id = $1`, id)
	snd, err := scanSounding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Sounding{}, ErrNotFound
	}
	if err != nil {
		return weather.Sounding{}, err
	}
	snd.Images, err = s.soundingImages(ctx, id)
	if err != nil {
		return weather.Sounding{}, err
	}
	return snd, nil
}

// AppendSoundingImages appends imgs if the sounding's version matches.
func (s *SQLStore) AppendSoundingImages(ctx context.Context, snd weather.Sounding, imgs []weather.Image) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE soundings SET version = version + 1 WHERE id = $1 AND version = $2`,
			snd.ID, snd.Version)
		if err != nil {
			return fmt.Errorf("failed to update sounding: %w", err)
		}
		if err := versionOutcome(ctx, tx, res, "soundings", snd.ID); err != nil {
			return err
		}
		return insertSoundingImages(ctx, tx, snd.ID, imgs)
	})
}

// ClearSoundingImages drops every image of a sounding.
func (s *SQLStore) ClearSoundingImages(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE soundings SET version = version + 1 WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to update sounding: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sounding_images WHERE sounding_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete sounding images: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) soundingImages(ctx context.Context, id uuid.UUID) ([]weather.Image, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT captured_at, url FROM sounding_images
		WHERE sounding_id = $1 ORDER BY captured_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query sounding images: %w", err)
	}
	defer rows.Close()

	var imgs []weather.Image
	for rows.Next() {
		var img weather.Image
		if err := rows.Scan(&img.Time, &img.URL); err != nil {
			return nil, fmt.Errorf("failed to scan sounding image: %w", err)
		}
		img.Time = img.Time.UTC()
		imgs = append(imgs, img)
	}
	return imgs, rows.Err()
}

func insertSoundingImages(ctx context.Context, tx *sql.Tx, id uuid.UUID, imgs []weather.Image) error {
	for _, img := range imgs {
		_, err := tx.ExecContext(ctx, `INSERT INTO sounding_images (id, sounding_id, captured_at, url)
			VALUES ($1, $2, $3, $4)`, uuid.New(), id, img.Time.UTC(), img.URL)
		if err != nil {
			return fmt.Errorf("failed to insert sounding image: %w", err)
		}
	}
	return nil
}

// AddOutput records a fleet export.
func (s *SQLStore) AddOutput(ctx context.Context, o weather.Output) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO outputs (id, output_time, url, is_high_resolution)
		VALUES ($1, $2, $3, $4)`, o.ID, o.Time.UTC(), o.URL, o.IsHighResolution)
	if err != nil {
		return fmt.Errorf("failed to insert output: %w", err)
	}
	return nil
}

// LatestOutput returns the most recent export of the given resolution.
func (s *SQLStore) LatestOutput(ctx context.Context, highResolution bool) (weather.Output, error) {
	var o weather.Output
	err := s.db.QueryRowContext(ctx, `SELECT id, output_time, url, is_high_resolution
		FROM outputs WHERE is_high_resolution = $1
		ORDER BY output_time DESC LIMIT 1`, highResolution,
	).Scan(&o.ID, &o.Time, &o.URL, &o.IsHighResolution)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Output{}, ErrNotFound
	}
	if err != nil {
		return weather.Output{}, fmt.Errorf("failed to query latest output: %w", err)
	}
	o.Time = o.Time.UTC()
	return o, nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// versionOutcome turns a zero-row versioned update into ErrNotFound or
// ErrVersionConflict.
func versionOutcome(ctx context.Context, q queryRower, res sql.Result, table string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrVersionConflict
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStation(row scanner) (weather.Station, error) {
	var (
		st  weather.Station
		cfg string
	)
	err := row.Scan(
		&st.ID, &st.Name, &st.Type, &st.ExternalID, &st.ExternalLink, &st.Location.Lat, &st.Location.Lon,
		&st.Elevation, &st.ValidBearings, &st.LastUpdate, &st.Current.WindAverage, &st.Current.WindGust,
		&st.Current.WindBearing, &st.Current.Temperature, &st.IsHighResolution, &st.IsOffline, &st.IsError,
		&st.IsDisabled, &cfg, &st.SessionCookie, &st.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return weather.Station{}, err
		}
		return weather.Station{}, fmt.Errorf("failed to scan station: %w", err)
	}
	st.LastUpdate = st.LastUpdate.UTC()
	st.Config, err = decodeConfig(cfg)
	return st, err
}

func scanReading(row scanner) (weather.Reading, error) {
	var (
		r       weather.Reading
		expires sql.NullTime
	)
	err := row.Scan(&r.ID, &r.StationID, &r.Time, &r.WindAverage, &r.WindGust, &r.WindBearing,
		&r.Temperature, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return weather.Reading{}, err
		}
		return weather.Reading{}, fmt.Errorf("failed to scan reading: %w", err)
	}
	r.Time = r.Time.UTC()
	if expires.Valid {
		r.ExpiresAt = expires.Time.UTC()
	}
	return r, nil
}

func scanCam(row scanner) (weather.Cam, error) {
	var (
		c       weather.Cam
		cfg     string
		current sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.ExternalID, &c.ExternalLink, &c.Location.Lat,
		&c.Location.Lon, &cfg, &c.LastUpdate, &current, &c.CurrentURL, &c.IsDisabled, &c.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return weather.Cam{}, err
		}
		return weather.Cam{}, fmt.Errorf("failed to scan cam: %w", err)
	}
	c.LastUpdate = c.LastUpdate.UTC()
	if current.Valid {
		c.CurrentTime = current.Time.UTC()
	}
	c.Config, err = decodeConfig(cfg)
	return c, err
}

func scanSounding(row scanner) (weather.Sounding, error) {
	var snd weather.Sounding
	err := row.Scan(&snd.ID, &snd.Name, &snd.Type, &snd.RaspRegion, &snd.RaspID, &snd.Location.Lat,
		&snd.Location.Lon, &snd.IsDisabled, &snd.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return weather.Sounding{}, err
		}
		return weather.Sounding{}, fmt.Errorf("failed to scan sounding: %w", err)
	}
	return snd, nil
}

func encodeConfig(cfg map[string]string) (string, error) {
	if len(cfg) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(b), nil
}

func decodeConfig(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var cfg map[string]string
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

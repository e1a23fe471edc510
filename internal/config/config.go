package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Schedule holds the cron spec of every periodic job.
type Schedule struct {
	Stations        string `validate:"required"`
	HighResStations string `validate:"required"`
	MissedStations  string `validate:"required"`
	Cams            string `validate:"required"`
	Soundings       string `validate:"required"`
	Health          string `validate:"required"`
	Export          string `validate:"required"`
	HighResExport   string `validate:"required"`
	Cleanup         string `validate:"required"`
}

type AppConfig struct {
	Env      string `validate:"oneof=development production test"`
	LogLevel string `validate:"oneof=trace debug info warn error"`
	Port     string `validate:"required,numeric"`

	// StoreDriver selects the persistence backend. DatabaseURL is the DSN
	// for postgres, or the file path for sqlite3.
	StoreDriver string `validate:"oneof=memory postgres sqlite3"`
	DatabaseURL string `validate:"required_unless=StoreDriver memory"`

	HTTPTimeout    time.Duration `validate:"gt=0"`
	Concurrency    int           `validate:"min=1,max=100"`
	MaxRetries     int           `validate:"min=0,max=10"`
	CallTimeout    time.Duration `validate:"gt=0"`
	MissedAfter    time.Duration `validate:"gt=0"`
	BreakerTrigger int           `validate:"min=1"`

	ReadingRetention   time.Duration `validate:"gt=0"`
	BucketWidth        time.Duration `validate:"gt=0"`
	HighResBucketWidth time.Duration `validate:"gt=0"`
	StaleWindow        time.Duration `validate:"gt=0"`
	HighResStaleWindow time.Duration `validate:"gt=0"`

	HealthLookback  time.Duration `validate:"gt=0"`
	HealthStaleness time.Duration `validate:"gt=0"`
	AlertThreshold  int           `validate:"min=1"`
	AlertAllowList  []string

	WindMax float64 `validate:"gt=0"`
	TempMin float64
	TempMax float64 `validate:"gtfield=TempMin"`

	ImageMaxWidth  int           `validate:"min=1"`
	ImageQuality   int           `validate:"min=1,max=100"`
	ImageRetention time.Duration `validate:"gt=0"`
	DedupCamTypes  []string

	PublicDir        string `validate:"required"`
	FileServerPrefix string

	Schedule Schedule
	Timezone *time.Location `validate:"required"`

	HolfuyKey     string
	HarvestAPIKey string

	EmailJSServiceID  string
	EmailJSTemplateID string
	EmailJSPublicKey  string
	EmailJSPrivateKey string
}

// Production reports whether the process runs in production.
func (c *AppConfig) Production() bool {
	return c.Env == "production"
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msgf("No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Env = getenvDefault("APP_ENV", "development")
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.Port = getenvDefault("PORT", "8080")

	cfg.StoreDriver = getenvDefault("STORE_DRIVER", "memory")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.Concurrency = getenvInt("SCRAPE_CONCURRENCY", 5)
	cfg.MaxRetries = getenvInt("HTTP_MAX_RETRIES", 0)
	cfg.BreakerTrigger = getenvInt("BREAKER_FAILURES", 10)
	cfg.AlertThreshold = getenvInt("ALERT_THRESHOLD", 2)
	cfg.ImageMaxWidth = getenvInt("IMAGE_MAX_WIDTH", 600)
	cfg.ImageQuality = getenvInt("IMAGE_QUALITY", 80)

	durations := []struct {
		dst *time.Duration
		key string
		def string
	}{
		{&cfg.HTTPTimeout, "HTTP_TIMEOUT", "30s"},
		{&cfg.CallTimeout, "SCRAPE_CALL_TIMEOUT", "30s"},
		{&cfg.MissedAfter, "MISSED_AFTER", "10m"},
		{&cfg.ReadingRetention, "READING_RETENTION", "720h"},
		{&cfg.BucketWidth, "BUCKET_WIDTH", "10m"},
		{&cfg.HighResBucketWidth, "HIGHRES_BUCKET_WIDTH", "2m"},
		{&cfg.StaleWindow, "STALE_WINDOW", "10m"},
		{&cfg.HighResStaleWindow, "HIGHRES_STALE_WINDOW", "2m"},
		{&cfg.HealthLookback, "HEALTH_LOOKBACK", "6h"},
		{&cfg.HealthStaleness, "HEALTH_STALENESS", "60m"},
		{&cfg.ImageRetention, "IMAGE_RETENTION", "24h"},
	}
	for _, d := range durations {
		v, err := getenvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	floats := []struct {
		dst *float64
		key string
		def float64
	}{
		{&cfg.WindMax, "WIND_MAX", 500},
		{&cfg.TempMin, "TEMP_MIN", -40},
		{&cfg.TempMax, "TEMP_MAX", 60},
	}
	for _, f := range floats {
		v, err := getenvFloat(f.key, f.def)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	cfg.AlertAllowList = getenvList("ALERT_ALLOW_LIST", nil)
	cfg.DedupCamTypes = getenvList("DEDUP_CAM_TYPES", nil)

	cfg.PublicDir = getenvDefault("PUBLIC_DIR", "public")
	cfg.FileServerPrefix = getenvDefault("FILE_SERVER_PREFIX", "http://localhost:"+cfg.Port+"/")

	cfg.Schedule = Schedule{
		Stations:        getenvDefault("CRON_STATIONS", "*/10 * * * *"),
		HighResStations: getenvDefault("CRON_STATIONS_HR", "*/2 * * * *"),
		MissedStations:  getenvDefault("CRON_MISSED", "5-59/10 * * * *"),
		Cams:            getenvDefault("CRON_CAMS", "*/10 * * * *"),
		Soundings:       getenvDefault("CRON_SOUNDINGS", "30 7 * * *"),
		Health:          getenvDefault("CRON_HEALTH", "0 */6 * * *"),
		Export:          getenvDefault("CRON_EXPORT", "*/10 * * * *"),
		HighResExport:   getenvDefault("CRON_EXPORT_HR", "*/2 * * * *"),
		Cleanup:         getenvDefault("CRON_CLEANUP", "5 0 * * *"),
	}

	tz := getenvDefault("SCHEDULER_TIMEZONE", "Pacific/Auckland")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TIMEZONE: %w", err)
	}
	cfg.Timezone = loc

	cfg.HolfuyKey = os.Getenv("HOLFUY_KEY")
	cfg.HarvestAPIKey = os.Getenv("HARVEST_API_KEY")

	cfg.EmailJSServiceID = os.Getenv("EMAILJS_SERVICE_ID")
	cfg.EmailJSTemplateID = os.Getenv("EMAILJS_TEMPLATE_ID")
	cfg.EmailJSPublicKey = os.Getenv("EMAILJS_PUBLIC_KEY")
	cfg.EmailJSPrivateKey = os.Getenv("EMAILJS_PRIVATE_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and every cron spec.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	specs := map[string]string{
		"CRON_STATIONS":    c.Schedule.Stations,
		"CRON_STATIONS_HR": c.Schedule.HighResStations,
		"CRON_MISSED":      c.Schedule.MissedStations,
		"CRON_CAMS":        c.Schedule.Cams,
		"CRON_SOUNDINGS":   c.Schedule.Soundings,
		"CRON_HEALTH":      c.Schedule.Health,
		"CRON_EXPORT":      c.Schedule.Export,
		"CRON_EXPORT_HR":   c.Schedule.HighResExport,
		"CRON_CLEANUP":     c.Schedule.Cleanup,
	}
	for key, spec := range specs {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, spec, err)
		}
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

// getenvList splits a comma separated value, dropping blanks.
func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

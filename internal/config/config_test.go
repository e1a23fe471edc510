package config

import (
	"slices"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDriver != "memory" || cfg.Concurrency != 5 || cfg.MaxRetries != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.BucketWidth != 10*time.Minute || cfg.HighResBucketWidth != 2*time.Minute {
		t.Fatalf("unexpected bucket widths %v %v", cfg.BucketWidth, cfg.HighResBucketWidth)
	}
	if cfg.HealthStaleness != time.Hour || cfg.AlertThreshold != 2 {
		t.Fatalf("unexpected health defaults %v %d", cfg.HealthStaleness, cfg.AlertThreshold)
	}
	if cfg.Timezone.String() != "Pacific/Auckland" {
		t.Fatalf("expected Pacific/Auckland, got %s", cfg.Timezone)
	}
	if cfg.Production() {
		t.Fatal("expected development by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", "/tmp/weather.db")
	t.Setenv("SCRAPE_CONCURRENCY", "8")
	t.Setenv("HEALTH_STALENESS", "45m")
	t.Setenv("WIND_MAX", "300")
	t.Setenv("ALERT_ALLOW_LIST", "wl, wainui,,")
	t.Setenv("CRON_STATIONS", "*/5 * * * *")
	t.Setenv("SCHEDULER_TIMEZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Production() || cfg.StoreDriver != "sqlite3" || cfg.DatabaseURL != "/tmp/weather.db" {
		t.Fatalf("unexpected store config %+v", cfg)
	}
	if cfg.Concurrency != 8 || cfg.HealthStaleness != 45*time.Minute || cfg.WindMax != 300 {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if !slices.Equal(cfg.AlertAllowList, []string{"wl", "wainui"}) {
		t.Fatalf("unexpected allow list %v", cfg.AlertAllowList)
	}
	if cfg.Schedule.Stations != "*/5 * * * *" || cfg.Timezone != time.UTC {
		t.Fatalf("unexpected schedule %+v %v", cfg.Schedule, cfg.Timezone)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "STORE_DRIVER", "mongo"},
		{"missing dsn", "STORE_DRIVER", "postgres"},
		{"bad duration", "BUCKET_WIDTH", "ten minutes"},
		{"bad float", "TEMP_MAX", "hot"},
		{"bad cron", "CRON_CAMS", "every ten minutes"},
		{"bad timezone", "SCHEDULER_TIMEZONE", "Mars/Olympus"},
		{"inverted temps", "TEMP_MAX", "-50"},
		{"zero concurrency", "SCRAPE_CONCURRENCY", "0"},
		{"zero alert threshold", "ALERT_THRESHOLD", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%q to be rejected", tt.key, tt.val)
			}
		})
	}
}

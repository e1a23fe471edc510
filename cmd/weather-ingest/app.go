package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-ingest/internal/config"
	"github.com/i474232898/weather-ingest/internal/export"
	"github.com/i474232898/weather-ingest/internal/health"
	"github.com/i474232898/weather-ingest/internal/images"
	"github.com/i474232898/weather-ingest/internal/scheduler"
	"github.com/i474232898/weather-ingest/internal/scraper"
	"github.com/i474232898/weather-ingest/internal/storage"
	"github.com/i474232898/weather-ingest/internal/store"
	"github.com/i474232898/weather-ingest/internal/weather"
	"github.com/i474232898/weather-ingest/internal/weather/providers"
)

// app holds every long-lived component, wired from config.
type app struct {
	cfg   *config.AppConfig
	store weather.Store
	close func() error
	ping  func(context.Context) error

	orchestrator *scraper.Orchestrator
	detector     *health.Detector
	exporter     *export.Exporter
	cleaner      *images.Cleaner
}

func setupLogging(cfg *config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Production() {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func openStore(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg}
	switch cfg.StoreDriver {
	case store.DriverPostgres, store.DriverSQLite:
		s, err := store.OpenSQL(ctx, cfg.StoreDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.store, a.close, a.ping = s, s.Close, s.Ping
		log.Info().Str("driver", cfg.StoreDriver).Msg("initialized SQL store")
	default:
		a.store = store.NewMemoryStore(0)
		a.close = func() error { return nil }
		a.ping = func(context.Context) error { return nil }
		log.Info().Msg("initialized in-memory store")
	}
	return a, nil
}

// newApp opens the store and wires every component.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.HTTPTimeout}
	httpCfg := providers.DefaultHTTPClientConfig(client)
	httpCfg.Backoff.MaxRetries = cfg.MaxRetries
	httpCfg.BreakerFailures = uint32(cfg.BreakerTrigger)

	registry := scraper.NewRegistry()
	registry.RegisterStation("holfuy", providers.NewHolfuyAdapter(httpCfg, cfg.HolfuyKey))
	registry.RegisterStation("wl", providers.NewWeatherLinkAdapter(httpCfg))
	registry.RegisterStation("wainui", providers.NewWainuiAdapter(httpCfg))
	registry.RegisterStation("harvest", providers.NewHarvestAdapter(httpCfg, cfg.HarvestAPIKey))
	registry.RegisterStation("gw", providers.NewHilltopAdapter(httpCfg))
	registry.RegisterCam("harvest", providers.NewHarvestCamAdapter(httpCfg))
	registry.RegisterCam("static", providers.NewStaticCamAdapter(httpCfg))
	registry.RegisterCam("cwu", providers.NewCWUCamAdapter(httpCfg))
	registry.RegisterSounding("rasp", providers.NewRaspAdapter(httpCfg))

	service := weather.NewService(a.store, weather.ServiceConfig{
		Limits: weather.Limits{
			WindMin: 0,
			WindMax: cfg.WindMax,
			TempMin: cfg.TempMin,
			TempMax: cfg.TempMax,
		},
		BucketWidth:        cfg.BucketWidth,
		HighResBucketWidth: cfg.HighResBucketWidth,
		Retention:          cfg.ReadingRetention,
	})

	disk := storage.NewDisk(cfg.PublicDir)
	pipeline := images.NewPipeline(a.store, disk, images.Config{
		MaxWidth:   cfg.ImageMaxWidth,
		Quality:    cfg.ImageQuality,
		DedupTypes: cfg.DedupCamTypes,
	})

	a.orchestrator = scraper.New(scraper.Config{
		Concurrency: cfg.Concurrency,
		CallTimeout: cfg.CallTimeout,
		MissedAfter: cfg.MissedAfter,
	}, registry, a.store, service, pipeline, pipeline)

	var notifier health.Notifier = health.LogNotifier{}
	mail := health.EmailJSConfig{
		ServiceID:  cfg.EmailJSServiceID,
		TemplateID: cfg.EmailJSTemplateID,
		PublicKey:  cfg.EmailJSPublicKey,
		PrivateKey: cfg.EmailJSPrivateKey,
	}
	if mail.Configured() {
		notifier = health.NewEmailJSNotifier(client, mail)
	} else {
		log.Warn().Str("service", "errors").Msg("EmailJS not configured; alerts are logged only")
	}
	a.detector = health.NewDetector(a.store, notifier, health.Config{
		Lookback:   cfg.HealthLookback,
		Staleness:  cfg.HealthStaleness,
		Threshold:  cfg.AlertThreshold,
		AllowList:  cfg.AlertAllowList,
		Production: cfg.Production(),
	})

	a.exporter = export.NewExporter(a.store, disk, export.Config{
		Interval:        cfg.StaleWindow,
		HighResInterval: cfg.HighResStaleWindow,
		URLPrefix:       cfg.FileServerPrefix,
	})
	a.cleaner = images.NewCleaner(a.store, disk, cfg.ImageRetention)

	return a, nil
}

func summarize(run func(context.Context) (scraper.Summary, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := run(ctx)
		return err
	}
}

// jobs returns every periodic job with its schedule.
func (a *app) jobs() []scheduler.Job {
	sched := a.cfg.Schedule
	return []scheduler.Job{
		{Name: "stations", Spec: sched.Stations, Run: summarize(func(ctx context.Context) (scraper.Summary, error) {
			return a.orchestrator.RunStations(ctx, false)
		})},
		{Name: "stations-hr", Spec: sched.HighResStations, Run: summarize(func(ctx context.Context) (scraper.Summary, error) {
			return a.orchestrator.RunStations(ctx, true)
		})},
		{Name: "missed", Spec: sched.MissedStations, Run: summarize(a.orchestrator.RunMissedStations)},
		{Name: "cams", Spec: sched.Cams, Run: summarize(a.orchestrator.RunCams)},
		{Name: "soundings", Spec: sched.Soundings, Run: func(ctx context.Context) error {
			if err := a.cleaner.ResetSoundings(ctx); err != nil {
				return err
			}
			_, err := a.orchestrator.RunSoundings(ctx)
			return err
		}},
		{Name: "health", Spec: sched.Health, Run: func(ctx context.Context) error {
			_, err := a.detector.Check(ctx)
			return err
		}},
		{Name: "export", Spec: sched.Export, Run: func(ctx context.Context) error {
			_, err := a.exporter.Export(ctx, false)
			return err
		}},
		{Name: "export-hr", Spec: sched.HighResExport, Run: func(ctx context.Context) error {
			_, err := a.exporter.Export(ctx, true)
			return err
		}},
		{Name: "cleanup", Spec: sched.Cleanup, Run: a.cleaner.Run},
	}
}

func (a *app) job(name string) (scheduler.Job, error) {
	var names []string
	for _, j := range a.jobs() {
		if j.Name == name {
			return j, nil
		}
		names = append(names, j.Name)
	}
	return scheduler.Job{}, fmt.Errorf("unknown job %q (want one of %s)", name, strings.Join(names, ", "))
}

// bootstrap loads config, sets up logging and wires the app.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg)
	return newApp(ctx, cfg)
}

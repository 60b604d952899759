package main

import (
	"context"
	"log/slog"

	"imgmigrate/internal/backend"
	"imgmigrate/internal/config"
	"imgmigrate/internal/fetch"
	"imgmigrate/internal/metrics"
	"imgmigrate/internal/migrate"
	"imgmigrate/internal/report"
	"imgmigrate/internal/scan"
	"imgmigrate/internal/settings"
	"imgmigrate/internal/store"
)

// app is the wired object graph shared by the scan and migrate commands.
type app struct {
	cfg      *config.Config
	store    *store.Store
	settings *settings.Provider
	backend  *backend.Client
	scanner  *scan.Service
	migrator *migrate.Migrator
	mailer   *report.Mailer
	metrics  *metrics.Recorder
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.DB.Driver, cfg.DB.DSN, store.Options{
		TablePrefix:    cfg.DB.TablePrefix,
		SettingsPrefix: cfg.DB.SettingsPrefix,
	})
}

func openApp(cfg *config.Config) (*app, error) {
	policy, err := migrate.DefaultUploadPolicy().WithScaleFactor(cfg.Migrate.ScaleFactor)
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	// Forum settings win over the local config file.
	provider := settings.NewProvider(st, settings.NewConfigSource(cfg))
	client := backend.NewClient(provider, backend.Options{
		Timeout:        cfg.Backend.Timeout,
		ConnectTimeout: cfg.Backend.ConnectTimeout,
	})
	fetcher := fetch.New(fetch.Config{
		MaxBytes:       cfg.Fetch.MaxBytes,
		Timeout:        cfg.Fetch.Timeout,
		ConnectTimeout: cfg.Fetch.ConnectTimeout,
		TempDir:        cfg.Fetch.TempDir,
		UserAgent:      cfg.Fetch.UserAgent,
	})
	recorder := metrics.NewRecorder()

	return &app{
		cfg:      cfg,
		store:    st,
		settings: provider,
		backend:  client,
		scanner:  scan.NewService(st, provider, cfg.Scan.Concurrency),
		migrator: migrate.New(fetcher, client, st, policy, cfg.ForumURL, migrate.WithObserver(recorder)),
		mailer: report.NewMailer(report.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}),
		metrics: recorder,
	}, nil
}

func withApp(cfg *config.Config, fn func(*app) error) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) checkDeps() checkDeps {
	return checkDeps{
		scanner:  a.scanner,
		posts:    a.store,
		migrator: a.migrator,
		backend:  a.backend,
		reports:  a.mailer,
		metrics:  a.metrics,
		forumURL: a.cfg.ForumURL,
	}
}

// pushMetrics sends run counters to the Pushgateway when one is configured.
func (a *app) pushMetrics(ctx context.Context) {
	if err := a.metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
		slog.Warn("metrics push failed", "error", err)
	}
}

package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ticket-drop-alerts/internal/alerting"
	"ticket-drop-alerts/internal/api"
	"ticket-drop-alerts/internal/config"
	"ticket-drop-alerts/internal/fetcher"
	"ticket-drop-alerts/internal/metrics"
	"ticket-drop-alerts/internal/monitor"
	"ticket-drop-alerts/internal/scheduler"
	"ticket-drop-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.QuoteFetcher {
	return fetcher.NewScrapeClient(fetcher.ScrapeOptions{
		BaseURL:   a.Config.Scraper.BaseURL,
		Timeout:   a.Config.Scraper.RequestTimeout,
		UserAgent: a.Config.Scraper.UserAgent,
		Source:    a.Config.Scraper.Source,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newMonitor(store *storage.Store, m *metrics.Metrics) *monitor.Monitor {
	return monitor.New(store, store, a.newFetcher(), a.newNotifier(), store, m, a.Logger, monitor.Options{
		EventTimeout: a.Config.Scheduler.EventTimeout,
		MinDropPct:   decimal.NewFromFloat(a.Config.Alerting.MinDropPct),
		LockKey:      a.Config.Scheduler.AdvisoryLockKey,
	})
}

// Run executes the long-running monitoring service: scheduler plus, when
// enabled, the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.Config.Database.DSN == "" {
		return errors.New("database.dsn is required to run the monitoring service")
	}

	if err := storage.Migrate(a.Config.Database); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New(prometheus.DefaultRegisterer)
	mon := a.newMonitor(store, m)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		OnSkip:       func() { m.CyclesSkipped.Inc() },
	}, a.Logger)

	var apiServer *http.Server
	if a.Config.API.Enabled {
		server := api.NewServer(store, store, mon, store, a.Config.App.Venue, a.Logger)
		apiServer = &http.Server{
			Addr:    a.Config.API.ListenAddr,
			Handler: server.Router(),
		}
		go func() {
			a.Logger.Info().Str("addr", apiServer.Addr).Msg("http api listening")
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error().Err(err).Msg("http api terminated")
			}
		}()
	}

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting price monitoring")
	sched.Start(mon.Tick)

	<-ctx.Done()

	a.Logger.Info().Msg("shutting down")
	sched.Stop()

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("http api shutdown failed")
		}
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// CheckOptions configure a one-off event check.
type CheckOptions struct {
	Event string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Event   string
	Section string
	Limit   int
}

// DropsOptions configure the drops command.
type DropsOptions struct {
	Hours int
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Event     string
	Section   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

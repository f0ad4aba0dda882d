// Package bootstrap assembles the report and sensor services from settings.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/metrics"
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/services/chart"
	"github.com/genesis-labs/genesis-api/pkg/services/config"
	"github.com/genesis-labs/genesis-api/pkg/services/document"
	"github.com/genesis-labs/genesis-api/pkg/services/export"
	"github.com/genesis-labs/genesis-api/pkg/services/report"
	"github.com/genesis-labs/genesis-api/pkg/services/sensors"
	"github.com/genesis-labs/genesis-api/pkg/store/abot"
	sensorstore "github.com/genesis-labs/genesis-api/pkg/store/sensors"
	sqlstore "github.com/genesis-labs/genesis-api/pkg/store/sql"
	"github.com/genesis-labs/genesis-api/pkg/store/sql/migrations"
	"github.com/rs/zerolog"
)

type Options struct {
	// Migrate applies pending schema migrations after connecting.
	Migrate bool
	// Metrics registers pool statistics and pipeline observers.
	Metrics bool
}

// App owns the process-wide resources: the connection pool and the render
// pool. Services built on them are safe for concurrent use.
type App struct {
	DB       *sqlstore.DB
	Dialect  domain.Dialect
	Location *time.Location
	Reports  *report.Service
	Sensors  sensors.Service
}

func Open(ctx context.Context, settings *config.Settings, opts Options) (*App, error) {
	logger := zerolog.Ctx(ctx)

	loc, err := settings.Pipeline.Location()
	if err != nil {
		return nil, err
	}
	storeSettings, err := settings.StoreSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database settings: %w", err)
	}
	db, err := sqlstore.Open(ctx, storeSettings)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	app := &App{DB: db, Dialect: storeSettings.Dialect, Location: loc}
	if err := app.build(ctx, settings, opts); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().
		Str("dialect", string(app.Dialect)).
		Str("profile", settings.Database.Profile).
		Bool("abot", settings.Abot.Enabled()).
		Msg("services ready")
	return app, nil
}

func (a *App) build(ctx context.Context, settings *config.Settings, opts Options) error {
	if opts.Migrate {
		if err := migrations.Up(a.DB.SQL(), a.Dialect); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	var (
		renderObserver chart.Observer
		recorder       report.Recorder
	)
	if opts.Metrics {
		if err := metrics.RegisterDB(a.DB.SQL(), string(a.Dialect)); err != nil {
			return fmt.Errorf("failed to register database metrics: %w", err)
		}
		renderObserver = metrics.Recorder{}
		recorder = metrics.Recorder{}
	}

	sources, err := dataSources(settings, a.DB)
	if err != nil {
		return err
	}

	pool := chart.NewPool(
		chart.NewPNGRenderer().WithSize(settings.Pipeline.ChartWidth, settings.Pipeline.ChartHeight),
		settings.Pipeline.RenderWorkers,
		chart.WithTimeout(settings.Pipeline.RenderTimeout),
		chart.WithObserver(renderObserver),
	)
	composer, err := document.NewComposer()
	if err != nil {
		return fmt.Errorf("failed to create document composer: %w", err)
	}
	exportOpts := export.DefaultOptions()
	exportOpts.Timeout = settings.Pipeline.ExportTimeout

	a.Reports, err = report.NewService(
		report.Config{
			QueryTimeout: settings.Pipeline.QueryTimeout,
			Location:     a.Location,
		},
		report.Dependencies{
			Registry: report.DefaultRegistry(),
			Sources:  sources,
			Charts:   pool,
			Composer: composer,
			Exporter: export.NewExporter(exportOpts),
			Recorder: recorder,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create report service: %w", err)
	}

	sensorStore, err := sensorstore.NewStore(a.DB)
	if err != nil {
		return fmt.Errorf("failed to create sensor store: %w", err)
	}
	a.Sensors, err = sensors.NewService(sensorStore)
	if err != nil {
		return fmt.Errorf("failed to create sensor service: %w", err)
	}
	return nil
}

// Ping reports whether the database answers.
func (a *App) Ping(ctx context.Context) error {
	return a.DB.SQL().PingContext(ctx)
}

func (a *App) Close() error {
	return a.DB.Close()
}

func dataSources(settings *config.Settings, db *sqlstore.DB) (map[string]domain.DataSource, error) {
	relational, err := sqlstore.NewStore(db, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create query store: %w", err)
	}
	sources := map[string]domain.DataSource{"": relational}

	if !settings.Abot.Enabled() {
		return sources, nil
	}
	provider, err := abot.NewHTTPProvider(abot.ClientConfig{
		BaseURL:           settings.Abot.BaseURL,
		Token:             settings.Abot.Token,
		Timeout:           settings.Abot.Timeout,
		RequestsPerSecond: settings.Abot.RPS,
		Burst:             settings.Abot.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create abot client: %w", err)
	}
	source, err := abot.NewSource(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create abot source: %w", err)
	}
	sources[report.SourceAbot] = source
	return sources, nil
}

package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/handlers/reports"
	"github.com/genesis-labs/genesis-api/pkg/handlers/sensors"
	"github.com/genesis-labs/genesis-api/pkg/metrics"
	genesismiddleware "github.com/genesis-labs/genesis-api/pkg/server/middleware"
	sensorservice "github.com/genesis-labs/genesis-api/pkg/services/sensors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 10 * time.Second

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

type Dependencies struct {
	Reports reports.Service
	Sensors sensorservice.Service
	// Health reports whether the service can take requests.
	Health func(ctx context.Context) error
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	// Location is the timezone of report requests that name none.
	Location     *time.Location
	RateLimit    genesismiddleware.RateLimitConfig
	Dependencies Dependencies
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	reportHandler := reports.NewHandler(config.Dependencies.Reports, config.Location)
	sensorHandler := sensors.NewHandler(config.Dependencies.Sensors)

	router := chi.NewRouter()

	router.Use(genesismiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)
	router.Use(metrics.InstrumentHandler)

	router.Get("/healthz", health(config.Dependencies.Health))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", reportHandler.ListReports)
			r.Group(func(r chi.Router) {
				r.Use(genesismiddleware.RateLimit(config.RateLimit))
				r.Post("/", reportHandler.CreateReport)
				r.Get("/{type}", reportHandler.GetReport)
				r.Get("/{type}/preview", reportHandler.Preview)
				r.Get("/{type}/figure", reportHandler.Figure)
			})
		})

		r.Get("/sensors", sensorHandler.ListSensors)
		r.Get("/sensors/find", sensorHandler.FindSensors)
		r.Get("/sensors/{id}", sensorHandler.GetSensor)
		r.Get("/sensors/{id}/data", sensorHandler.GetSensorData)
		r.Post("/sensors/{id}/readings", sensorHandler.AddReadings)
		r.Get("/units", sensorHandler.ListUnits)
		r.Get("/units/{id}", sensorHandler.GetUnit)
	})

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

func (w *WebAPI) Handler() http.Handler {
	return w.router
}

func (w *WebAPI) Start() error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-shutdown:
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func health(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if check != nil {
			if err := check(r.Context()); err != nil {
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable\n"))
				return
			}
		}
		_, _ = w.Write([]byte("ok\n"))
	}
}

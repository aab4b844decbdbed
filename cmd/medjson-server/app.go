package main

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/ehr/medjson/internal/config"
	"github.com/ehr/medjson/internal/domain/records"
	"github.com/ehr/medjson/internal/platform/filestore"
	"github.com/ehr/medjson/internal/platform/metrics"
	"github.com/ehr/medjson/internal/platform/middleware"
	"github.com/ehr/medjson/internal/platform/uploads"
	"github.com/ehr/medjson/internal/platform/web"
)

// multipartOverhead is allowed on top of the upload limit for form
// boundaries and headers.
const multipartOverhead = 64 << 10

// app holds the wired components shared by the server and the CLI.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *filestore.Store
	stager   *uploads.FileStager
	svc      *records.Service
	metrics  *metrics.Collector
	registry *prometheus.Registry
}

func newApp(cfg *config.Config, logger zerolog.Logger, fsys afero.Fs) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewCollector("medjson", reg)

	store := filestore.New(fsys, cfg.RecordsPath(), logger,
		filestore.OnSkip(func(filestore.ScanResult) { m.DocumentSkipped() }))
	staging := filestore.New(fsys, cfg.UploadsPath(), logger)
	stager := uploads.NewFileStager(staging, cfg.MaxUploadBytes())

	svc := records.NewService(store, stager, logger)
	svc.SetMetrics(m)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		stager:   stager,
		svc:      svc,
		metrics:  m,
		registry: reg,
	}
}

// prepare creates the record directory so listings can tell an empty store
// from a missing one.
func (a *app) prepare(ctx context.Context) error {
	return a.store.EnsureReady(ctx)
}

func (a *app) router() (*echo.Echo, error) {
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.HTTPErrorHandler = web.ErrorHandler(a.logger)

	e.Pre(echomw.AddTrailingSlashWithConfig(echomw.TrailingSlashConfig{
		RedirectCode: http.StatusMovedPermanently,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
	}))

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	if a.cfg.MetricsEnabled {
		e.Use(a.metrics.Middleware())
	}
	e.Use(middleware.BodyLimit(a.stager.MaxSize() + multipartOverhead))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		ok, err := a.store.Exists(c.Request().Context())
		if err != nil || !ok {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"version": version,
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	if a.cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(a.registry)))
	}

	records.NewHandler(a.svc).RegisterRoutes(e)
	return e, nil
}

package rest

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	"github.com/pot-code/course-progress/internal/certificate"
	infra "github.com/pot-code/course-progress/internal/infrastructure"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/pot-code/course-progress/internal/interfaces/rest/handler"
	"github.com/pot-code/course-progress/internal/interfaces/rest/middleware"
	"github.com/pot-code/course-progress/internal/playback"
	"github.com/pot-code/course-progress/internal/progress"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

// NewServer create the echo app with all routes registered
func NewServer(
	conn driver.ITransactionalDB,
	rdb driver.KeyValueDB,
	option *infra.AppConfig,
	ProgressUseCase progress.ProgressUseCase,
	CertificateUseCase certificate.CertificateUseCase,
	Relay *playback.Relay,
	registry *metrics.Registry,
	logger *zap.Logger,
) *echo.Echo {
	var (
		app       = echo.New()
		validator = validate.NewValidator("en")
		websocket = infra.NewWebsocket()
		jwtUtil   = auth.NewJWTUtil(option.Security.JWTMethod,
			option.Security.JWTSecret,
			option.Security.TokenName)
		jwtMiddleware = middleware.VerifyToken(jwtUtil, &middleware.ValidateTokenOption{
			InBlackList: func(ctx context.Context, token string) (bool, error) {
				return rdb.Exists(ctx, token)
			},
		})
	)
	app.HideBanner = true

	registerLivenessProbe(app, conn, rdb)
	registerMetricsEndpoint(app, registry)
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)

		app.Use(middleware.Logging(&middleware.LoggingConfig{
			Skipper: func(e echo.Context) bool {
				return strings.HasPrefix(e.Request().RequestURI, "/healthz") ||
					strings.HasPrefix(e.Request().RequestURI, "/metrics")
			},
		}))
	}
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: func(c echo.Context, err error) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				code := handler.StatusOf(err)
				detail := err.Error()
				if code >= http.StatusInternalServerError {
					detail = http.StatusText(code)
					logger.Error(err.Error(), zap.String("trace.id", traceID))
				}
				c.JSON(code, handler.NewRESTStandardError(code, detail).SetTraceID(traceID))
			},
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(echo_middleware.CORS())
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
		Skipper: func(c echo.Context) bool {
			// websocket sessions outlive any request timeout
			return strings.HasPrefix(c.Path(), "/api/v1/ws")
		},
	}))

	var (
		ProgressHandler    = handler.NewProgressHandler(ProgressUseCase, jwtUtil, validator)
		CertificateHandler = handler.NewCertificateHandler(CertificateUseCase, ProgressUseCase, jwtUtil)
		PlaybackHandler    = handler.NewPlaybackHandler(Relay, jwtUtil)
	)

	createEndpoint(app,
		&endpoint{
			apiVersion:  "api/v1",
			middlewares: []echo.MiddlewareFunc{echo_middleware.RequestID(), middleware.SetTraceLogger(logger)},
			groups: []*apiGroup{
				{
					prefix:      "/enrollments",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware},
					routes: []*route{
						{"POST", "", ProgressHandler.HandleEnroll, nil},
						{"GET", "/:enrollment_id/progress", ProgressHandler.HandleGetProgress, nil},
						{"PATCH", "/:enrollment_id/lessons/:lesson_id/progress", ProgressHandler.HandleUpdateLessonProgress, nil},
						{"GET", "/:enrollment_id/certificate", CertificateHandler.HandleGetEnrollmentCertificate, nil},
					},
				},
				{
					prefix: "/certificates",
					routes: []*route{
						{"GET", "/:code", CertificateHandler.HandleVerify, nil},
					},
				},
				{
					prefix:      "/ws",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware},
					routes: []*route{
						{"GET", "/playback", websocket.WithHeartbeat(PlaybackHandler.OpenSession), nil},
					},
				},
			},
		})
	return app
}

// Serve run the http transport server until ctx is done
func Serve(ctx context.Context, app *echo.Echo, option *infra.AppConfig, logger *zap.Logger) error {
	printRoutes(app, logger)

	errc := make(chan error, 1)
	go func() {
		errc <- app.Start(fmt.Sprintf("%s:%d", option.Host, option.Port))
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printRoutes(app *echo.Echo, logger *zap.Logger) {
	for _, route := range app.Routes() {
		if !strings.HasPrefix(route.Name, "github.com/labstack/echo") {
			logger.Info("Registered route", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}
}

func registerLivenessProbe(app *echo.Echo, db driver.ITransactionalDB, rdb driver.KeyValueDB) {
	app.GET("/healthz", func(c echo.Context) error {
		ctx := c.Request().Context()
		if db.Ping(ctx) == nil && rdb.Ping(ctx) == nil {
			c.NoContent(http.StatusOK)
		} else {
			c.NoContent(http.StatusServiceUnavailable)
		}
		return nil
	})
}

func registerMetricsEndpoint(app *echo.Echo, registry *metrics.Registry) {
	app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{})))
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}

// Package httpapi maps the native key/value and S3-compatible HTTP
// surfaces from spec.md §6 onto requestpipeline.Pipeline calls. It never
// touches the chunk store or metadata index directly.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitality-ai/warpdrive/internal/appstate"
	"github.com/vitality-ai/warpdrive/internal/config"
	"github.com/vitality-ai/warpdrive/internal/logger"
	"github.com/vitality-ai/warpdrive/internal/requestpipeline"
)

// App is the subset of appstate.AppState the HTTP layer depends on. It is
// a distinct type (rather than a direct *appstate.AppState dependency)
// so handlers only see what they need to serve requests.
type App struct {
	Config   *config.Config
	Pipeline *requestpipeline.Pipeline
}

// NewApp narrows an AppState down to what the HTTP layer needs.
func NewApp(a *appstate.AppState) *App {
	return &App{Config: a.Config, Pipeline: a.Pipeline}
}

// NewRouter builds the chi router serving both the native and S3 surfaces,
// grounded in the teacher's controlplane router: request id, real IP,
// request logging, panic recovery, and a request timeout.
//
// Routes:
//   - GET  /healthz                          - liveness probe
//   - POST /put/{key}                        - native put
//   - GET  /get/{key}                        - native get
//   - POST /append/{key}                     - native append
//   - POST /update/{key}                     - native update
//   - PUT  /update_key/{old}/{new}           - native rename
//   - DELETE /delete/{key}                   - native delete
//   - GET  /s3/{bucket}                      - S3 list (list-type=2)
//   - *    /s3/{bucket}/*                    - S3 object + multipart ops
func NewRouter(a *appstate.AppState) http.Handler {
	app := NewApp(a)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.Config.HTTP.RequestTimeout))

	healthHandler := &healthHandlers{app: a}
	r.Get("/healthz", healthHandler.Liveness)
	r.Get("/healthz/ready", healthHandler.Readiness)

	if a.Config.Metrics.Enabled {
		r.Handle("/metrics", promhttp.HandlerFor(a.Prom, promhttp.HandlerOpts{}))
	}

	native := &nativeHandlers{app: app}
	r.Post("/put/{key}", native.Put)
	r.Get("/get/{key}", native.Get)
	r.Post("/append/{key}", native.Append)
	r.Post("/update/{key}", native.Update)
	r.Put("/update_key/{old}/{new}", native.UpdateKey)
	r.Delete("/delete/{key}", native.Delete)

	s3 := &s3Handlers{app: app}
	r.Route("/s3/{bucket}", func(r chi.Router) {
		r.Get("/", s3.ListBucket)
		r.HandleFunc("/*", s3.Object)
	})

	return r
}

// isHealthPath reports whether path is a healthcheck endpoint, logged at
// DEBUG rather than INFO to keep access logs readable under liveness
// probe traffic.
func isHealthPath(path string) bool {
	return path == "/healthz" || strings.HasPrefix(path, "/healthz/")
}

// requestLogger logs request start at DEBUG and completion at INFO (DEBUG
// for healthchecks), tagging each request with chi's request id, or a
// fresh UUID when none is set.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = uuid.NewString()
		}

		lc := logger.NewLogContext(requestID)
		ctx := logger.WithContext(r.Context(), lc)
		r = r.WithContext(ctx)

		logger.DebugCtx(ctx, "httpapi: request started",
			"method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if isHealthPath(r.URL.Path) {
			logger.DebugCtx(r.Context(), "httpapi: request completed", args...)
		} else {
			logger.InfoCtx(r.Context(), "httpapi: request completed", args...)
		}
	})
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caskfs/caskfs/internal/logger"
	"github.com/caskfs/caskfs/internal/telemetry"
	"github.com/caskfs/caskfs/pkg/api/handlers"
	"github.com/caskfs/caskfs/pkg/registry"
)

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET  /health                       - Liveness probe
//   - GET  /health/ready                 - Readiness probe with vault counts
//   - GET  /api/v1/vaults                - List known vaults
//   - POST /api/v1/vaults                - Register an existing vault
//   - POST /api/v1/vaults/create         - Create a fresh vault
//   - GET  /api/v1/vaults/{id}           - Vault status
//   - DELETE /api/v1/vaults/{id}         - Forget a vault
//   - POST /api/v1/vaults/{id}/unlock    - Unlock and start serving
//   - POST /api/v1/vaults/{id}/lock      - Stop serving and erase keys
//   - POST /api/v1/vaults/{id}/mount     - Attach to the OS
//   - POST /api/v1/vaults/{id}/unmount   - Detach from the OS
//   - PUT  /api/v1/vaults/{id}/mountname - Update mount name
//   - PUT  /api/v1/vaults/{id}/verify    - Update integrity verification
func NewRouter(reg *registry.Registry) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	healthHandler := handlers.NewHealthHandler(reg)
	vaultsHandler := handlers.NewVaultsHandler(reg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Route("/api/v1/vaults", func(r chi.Router) {
		r.Get("/", vaultsHandler.List)
		r.Post("/", vaultsHandler.Add)
		r.Post("/create", vaultsHandler.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", vaultsHandler.Get)
			r.Delete("/", vaultsHandler.Remove)
			r.Post("/unlock", vaultsHandler.Unlock)
			r.Post("/lock", vaultsHandler.Lock)
			r.Post("/mount", vaultsHandler.Mount)
			r.Post("/unmount", vaultsHandler.Unmount)
			r.Put("/mountname", vaultsHandler.SetMountName)
			r.Put("/verify", vaultsHandler.SetVerifyIntegrity)
		})
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs requests using the internal logger and wraps each
// request in a span so handler spans nest under it.
//
// Request start is logged at DEBUG, completion at INFO with status and
// duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanAPIRequest,
			telemetry.WithRequest(r.Method, r.URL.Path))
		defer span.End()
		r = r.WithContext(ctx)

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

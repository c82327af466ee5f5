/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/employees/*  Incentive calculation, store link
  /api/stores/*     Store directory, attach rates, passbook
  /api/slabs        Slab table
  /api/sales        Sale submission
  /api/admin/*      Payout job
  /api/scenarios/*  Demo scenarios (dev only)
  /healthz          Liveness

SECURITY NOTE:
  No authentication middleware. Deploy behind the gateway that owns
  sessions.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Put("/{id}", h.UpsertEmployee)
			r.Get("/{id}/incentive", h.GetIncentive)
		})

		// Store routes
		r.Route("/stores", func(r chi.Router) {
			r.Put("/{id}", h.UpsertStore)
			r.Get("/{id}/attach-rate", h.GetAttachRate)
			r.Post("/{id}/attach-rates", h.AddAttachRate)
			r.Get("/{id}/passbook", h.GetPassbook)
			r.Put("/{id}/passbook/{month}", h.RecordPassbookEntry)
			r.Post("/{id}/passbook/{month}/paid", h.MarkPaid)
		})

		// Configuration routes
		r.Get("/slabs", h.GetSlabs)
		r.Put("/slabs", h.ReplaceSlabs)
		r.Post("/sales", h.AppendSales)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/payouts/run", h.RunPayouts)
			r.Get("/payouts/runs", h.ListPayoutRuns)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

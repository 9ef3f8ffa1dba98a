package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/causal/internal/api/handlers"
	mw "github.com/Harshitk-cp/causal/internal/api/middleware"
	"github.com/Harshitk-cp/causal/internal/buildconfig"
	"github.com/Harshitk-cp/causal/internal/metrics"
	"github.com/Harshitk-cp/causal/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP layer is built from. DB is optional;
// without it the health check only reports the process as up.
type Deps struct {
	Service        *service.CausalService
	Metrics        *metrics.Metrics
	DB             *pgxpool.Pool
	Logger         *zap.Logger
	RateLimitRPS   float64
	RateLimitBurst int
}

// App holds the router and the service it serves.
type App struct {
	Router    *chi.Mux
	Service   *service.CausalService
	startTime time.Time
}

func NewApp(deps Deps) *App {
	causalHandler := handlers.NewCausalHandler(deps.Service, deps.Logger)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Service:   deps.Service,
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	if deps.Metrics != nil {
		r.Use(mw.Metrics(deps.Metrics))
	}
	r.Use(mw.Logging(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst))

	r.Get("/health", healthHandler(deps.DB))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", app.statusHandler())

		r.Route("/graphs", func(r chi.Router) {
			r.Get("/", causalHandler.ListGraphs)
			r.Post("/", causalHandler.CreateGraph)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", causalHandler.GetGraph)
				r.Delete("/", causalHandler.DeleteGraph)

				// Structure
				r.Post("/variables", causalHandler.AddVariable)
				r.Delete("/variables/{variable}", causalHandler.RemoveVariable)
				r.Post("/edges", causalHandler.AddEdge)

				// Queries
				r.Post("/intervene", causalHandler.Intervene)
				r.Post("/counterfactual", causalHandler.Counterfactual)
				r.Post("/effect", causalHandler.EstimateEffect)
				r.Get("/adjustment", causalHandler.AdjustmentSet)
				r.Get("/paths", causalHandler.ExplainPaths)
				r.Post("/rules", causalHandler.CheckRule)
			})
		})
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db == nil {
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "storage": "memory"})
			return
		}
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "storage": "postgres"})
	}
}

func (app *App) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"build":  buildconfig.BuildInfo(),
			"engine": app.Service.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"MiniMarket/internal/auth"
	"MiniMarket/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry
	Tokens   *auth.TokenMaker
	Limiter  *kit.KeyedLimiter
	Checks   []Check

	MetricsEnabled bool
	MetricsToken   string

	// DevMode exposes the mining and faucet endpoints.
	DevMode bool
}

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupMetrics(r, deps)
	setupRoutes(r, s, deps)

	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer(deps.Log))
	r.Use(kit.Logging(deps.Log))
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.RouteLabel))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func setupRoutes(r *chi.Mux, s *Server, deps HTTPDeps) {
	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(deps.Checks, deps.Log))

	r.Get("/owner", s.handleOwner)
	r.Get("/escrow", s.handleEscrow)
	r.Get("/events", s.handleEvents)

	r.Route("/products", func(pr chi.Router) {
		pr.Get("/", s.handleList)
		pr.Get("/available", s.handleAvailable)
		pr.Get("/{id}", s.handleGet)

		pr.Group(func(ar chi.Router) {
			ar.Use(auth.RequireCaller(deps.Tokens))
			ar.Use(deps.Limiter.Middleware(auth.CallerKey))

			ar.Post("/", s.handleAdd)
			ar.Put("/{id}/quantity", s.handleSetQuantity)
			ar.Post("/{id}/buy", s.handleBuy)
			ar.Post("/{id}/return", s.handleReturn)
		})
	})

	r.Get("/chain/head", s.handleHead)
	r.Get("/accounts/{address}", s.handleBalance)

	if deps.DevMode {
		r.Post("/chain/mine", s.handleMine)
		r.Post("/accounts/{address}/faucet", s.handleFaucet)
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

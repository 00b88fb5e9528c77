// Package rest serves the JSON API, health and metrics endpoints, and mounts
// the gRPC-Web bridge, all behind one chi router.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"timebox/internal/auth"
	"timebox/internal/grpcweb"
	"timebox/internal/middleware"
	"timebox/internal/rpc"
)

// Deps are the collaborators of the router. Limiter, GRPCWeb and Gatherer
// are optional.
type Deps struct {
	Planner        rpc.PlannerServer
	Tokens         *auth.Issuer
	Limiter        *middleware.RateLimiter
	GRPCWeb        http.Handler
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	SecureCookies  bool
	Log            *zap.Logger
}

type api struct {
	planner  rpc.PlannerServer
	validate *validator.Validate
	secure   bool
	log      *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	a := &api{planner: d.Planner, validate: validator.New(), secure: d.SecureCookies, log: d.Log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(d.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Grpc-Web", "X-User-Agent"},
		ExposedHeaders:   []string{"X-Request-ID", "Grpc-Status", "Grpc-Message"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", health)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/auth", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(middleware.Limit(d.Limiter))
		}
		r.Post("/register", a.register)
		r.Post("/login", a.login)
		r.Post("/refresh", a.refresh)
		r.With(middleware.Authenticate(d.Tokens)).Post("/logout", a.logout)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Tokens))
		r.Get("/plans/{date}", a.getPlan)
		r.Patch("/plans/{date}", a.patchPlan)
	})

	if d.GRPCWeb != nil {
		r.Handle(grpcweb.Prefix+"*", d.GRPCWeb)
	}
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

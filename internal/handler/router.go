package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/neilb14/users-service/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the public routes, the gated add-user route and /metrics.
func NewRouter(h *Handler, gate mux.MiddlewareFunc, metrics *middleware.Metrics, gatherer prometheus.Gatherer, log *logrus.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log), metrics.Middleware)

	// mux skips Use middlewares when no route matches.
	instrument := func(h http.Handler) http.Handler {
		return middleware.RequestLogger(log)(metrics.Middleware(h))
	}
	r.NotFoundHandler = instrument(http.NotFoundHandler())
	r.MethodNotAllowedHandler = instrument(http.HandlerFunc(methodNotAllowed))

	r.HandleFunc("/ping", h.Ping).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	r.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	r.Handle("/users", gate(http.HandlerFunc(h.AddUser))).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}", h.GetUser).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

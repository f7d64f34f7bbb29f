// Package server exposes the cadabra cache over HTTP.
package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/cadabra-cache/cadabra/internal/cache"
	"github.com/cadabra-cache/cadabra/internal/logging"
)

// Options configures New.
type Options struct {
	Cache       *cache.Cache
	Logger      logging.Logger
	CORSEnabled bool
}

// Server routes HTTP requests to the cache façade. Construct it with New and
// mount Handler on an http.Server.
type Server struct {
	cache   *cache.Cache
	log     logging.Logger
	metrics *metrics
	start   time.Time
	handler http.Handler

	requests      atomic.Int64
	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// New wires the routes, logging and metrics middleware, and the optional CORS
// wrapper.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &Server{
		cache:   opts.Cache,
		log:     log,
		metrics: newMetrics(),
		start:   time.Now(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	router.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/cache/{fingerprint}", s.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/invalidate", s.handleInvalidate).Methods(http.MethodPost)
	router.HandleFunc("/should-invalidate", s.handleShouldInvalidate).Methods(http.MethodPost)
	router.HandleFunc("/table/{name}", s.handleClearTable).Methods(http.MethodDelete)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.Use(s.observe)

	var handler http.Handler = router
	if opts.CORSEnabled {
		handler = cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(handler)
	}
	s.handler = handler
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Package api serves permits, amenities and impact reports over HTTP with
// optional distance filtering.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/geo"
	"github.com/mapd-tech/civic-impact/internal/metrics"
	"github.com/mapd-tech/civic-impact/internal/model"
)

// Reader is the read side of the store used by the query API.
type Reader interface {
	ListPermits(ctx context.Context) ([]model.SpatialRecord, error)
	ListAmenities(ctx context.Context, cat model.Category) ([]model.SpatialRecord, error)
	ListReports(ctx context.Context) ([]model.AnalysisResult, error)
	GetReport(ctx context.Context, permitID string) (*model.AnalysisResult, error)
}

// Server holds the handlers of the query API.
type Server struct {
	store  Reader
	cache  Cache
	joiner geo.Joiner
	log    *zap.Logger
}

// NewServer returns a server over store. cache may be nil to disable
// response caching.
func NewServer(store Reader, cache Cache) *Server {
	return &Server{
		store:  store,
		cache:  cache,
		joiner: geo.LinearJoiner{},
		log:    zap.L().With(zap.String("component", "api")),
	}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.cached)
		r.Get("/development-permits", s.handlePermits)
		r.Get("/amenities", s.handleAmenities)
		r.Get("/impact/{permitID}", s.handleImpact)
	})
	return r
}

// observe records request counts and latency per route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveRequest(route, status, begin)
	})
}

// bodyRecorder buffers a handler's response so it can be cached before being
// written.
type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bodyRecorder) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// cached serves GET responses from the cache and stores successful misses.
func (s *Server) cached(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cache == nil || r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := cacheKey(r)
		body, ok, err := s.cache.Get(r.Context(), key)
		if err != nil {
			s.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			metrics.CacheHitsTotal.Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Cache-Control", "public, max-age=300")
			w.Header().Set("X-Cache-Status", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write(body) //nolint:errcheck
			return
		}
		metrics.CacheMissesTotal.Inc()

		rec := &bodyRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		w.Header().Set("X-Cache-Status", "MISS")
		if rec.status == http.StatusOK {
			w.Header().Set("Cache-Control", "public, max-age=300")
			if err := s.cache.Set(r.Context(), key, rec.body.Bytes()); err != nil {
				s.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
		w.WriteHeader(rec.status)
		w.Write(rec.body.Bytes()) //nolint:errcheck
	})
}

// cacheKey normalizes the query so parameter order does not split entries.
func cacheKey(r *http.Request) string {
	q := r.URL.Query().Encode()
	if q == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

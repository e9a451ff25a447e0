// Package server exposes the cached dashboard over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ademuri/last-fm-dashboard/internal/logging"
	"github.com/ademuri/last-fm-dashboard/internal/snapshot"
	"github.com/ademuri/last-fm-dashboard/internal/syncer"
)

// Source produces dashboards. *syncer.Syncer implements it.
type Source interface {
	Ensure(ctx context.Context) (snapshot.Entry, error)
	Refresh(ctx context.Context) (syncer.Result, error)
}

type Config struct {
	// RateLimit is the number of requests allowed per IP per minute. Zero
	// disables rate limiting.
	RateLimit   int
	CORSOrigins []string
}

type Server struct {
	source Source
	cache  *snapshot.Cache
	cfg    Config
}

func New(source Source, cache *snapshot.Cache, cfg Config) *Server {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{source: source, cache: cache, cfg: cfg}
}

// Handler returns the router with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-Modified-Since"},
		ExposedHeaders: []string{"Last-Modified"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
		}
		r.Get("/dashboard", s.dashboard)
		r.Get("/health", s.health)
		r.Post("/refresh", s.refresh)
	})
	return r
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	entry, err := s.source.Ensure(r.Context())
	if err != nil {
		logging.Error().Err(err).Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("generating dashboard")
		writeError(w, http.StatusServiceUnavailable, "dashboard unavailable")
		return
	}

	modified := entry.GeneratedAt.UTC().Truncate(time.Second)
	if since, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil && !modified.After(since) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Data)))
	w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client went away
	w.Write(entry.Data)
}

type healthResponse struct {
	Status      string     `json:"status"`
	Cached      bool       `json:"cached"`
	GeneratedAt *time.Time `json:"generated_at"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if entry, err := s.cache.Get(); err == nil {
		resp.Cached = true
		resp.GeneratedAt = &entry.GeneratedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.source.Refresh(r.Context())
	if errors.Is(err, syncer.ErrBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("cycle_id", res.CycleID).Msg("refresh failed")
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("encoding response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client went away
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package server exposes the catalog proxy over HTTP.
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sf-yuzifu/eh-api-server/pkg/catalog"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/imageproxy"
	"github.com/sf-yuzifu/eh-api-server/pkg/logging"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eh_requests_total",
		Help: "HTTP requests served, by endpoint and status code.",
	}, []string{"endpoint", "status"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eh_request_duration_seconds",
		Help:    "HTTP request handling duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// Config holds the server's behavior knobs.
type Config struct {
	// BaseURL overrides the origin base URL. Empty means the real sites,
	// selected per request.
	BaseURL string
	// Exhentai selects the exhentai domain even without a client cookie.
	Exhentai bool

	DefaultWidth   int
	DefaultQuality int
	ThumbWidth     int
	ThumbQuality   int
}

// DefaultServerConfig returns the transform defaults used when the caller
// does not supply width or quality.
func DefaultServerConfig() Config {
	return Config{
		DefaultWidth:   400,
		DefaultQuality: 50,
		ThumbWidth:     150,
		ThumbQuality:   40,
	}
}

// Server routes catalog and image-proxy requests to the fetch components.
type Server struct {
	cfg      Config
	lists    *catalog.ListFetcher
	cursors  *catalog.CursorStore
	details  *catalog.DetailFetcher
	resolver *catalog.ImageResolver
	images   *imageproxy.Proxy
	logger   zerolog.Logger
}

// New assembles a server from its fetch components.
func New(cfg Config, lists *catalog.ListFetcher, cursors *catalog.CursorStore, details *catalog.DetailFetcher, resolver *catalog.ImageResolver, images *imageproxy.Proxy) *Server {
	return &Server{
		cfg:      cfg,
		lists:    lists,
		cursors:  cursors,
		details:  details,
		resolver: resolver,
		images:   images,
		logger:   logging.NewLogger("server"),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.instrument("home", s.handleHome))
	mux.HandleFunc("GET /search", s.instrument("search", s.handleSearch))
	mux.HandleFunc("GET /gallery/{gid}/{token}", s.instrument("gallery_detail", s.handleGalleryDetail))
	mux.HandleFunc("GET /gallery/{gid}/{token}/images", s.instrument("gallery_images", s.handleGalleryImages))
	mux.HandleFunc("GET /image/proxy", s.instrument("image_proxy", s.handleImageProxy))
	mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// requestContext derives the origin headers and URL builder for one request.
// A client cookie containing igneous=EX selects the exhentai domain; cache
// tiers stay shared across cookies.
func (s *Server) requestContext(r *http.Request) (client.Headers, catalog.URLBuilder) {
	cookie := r.Header.Get("X-EH-Cookie")

	var builder catalog.URLBuilder
	if s.cfg.BaseURL != "" {
		builder = catalog.NewURLBuilderForBase(s.cfg.BaseURL)
	} else {
		useExhentai := s.cfg.Exhentai || strings.Contains(cookie, "igneous=EX")
		builder = catalog.NewURLBuilder(useExhentai)
	}

	return client.Headers{Cookie: cookie, Referer: builder.Referer()}, builder
}

// statusRecorder captures the written status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		duration := time.Since(start)
		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())

		s.logger.Info().
			Str("endpoint", endpoint).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("Request handled")
	}
}

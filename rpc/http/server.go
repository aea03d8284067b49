package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ValentinKolb/dMirror/lib/mirror"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("http")

// Config holds the settings of the HTTP server
type Config struct {
	// Endpoint is the address to listen on (e.g. ":8080")
	Endpoint string
	// ShutdownTimeout bounds the graceful shutdown
	ShutdownTimeout time.Duration
	// LogRequests enables the request logging middleware
	LogRequests bool
}

// DefaultConfig returns a configuration listening on :8080
func DefaultConfig() *Config {
	return &Config{
		Endpoint:        ":8080",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server serves the collections of one mirror.
//
// Thread-safety: the mirror is safe for concurrent use, the server adds no state of its own.
type Server struct {
	mirror *mirror.Mirror
	config *Config
	srv    *http.Server
}

// NewServer creates a server for an open mirror. A nil config uses DefaultConfig.
func NewServer(m *mirror.Mirror, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{mirror: m, config: config}
	s.srv = &http.Server{
		Addr:    config.Endpoint,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /collections", s.handleCollections)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /flush", s.handleFlush)

	mux.HandleFunc("GET /c/{collection}", s.handleFetch)
	mux.HandleFunc("GET /c/{collection}/count", s.handleCount)
	mux.HandleFunc("POST /c/{collection}", s.handleInsert)
	mux.HandleFunc("DELETE /c/{collection}", s.handleTruncate)
	mux.HandleFunc("GET /c/{collection}/{key}", s.handleGet)
	mux.HandleFunc("PATCH /c/{collection}/{key}", s.handleUpdate)
	mux.HandleFunc("DELETE /c/{collection}/{key}", s.handleDelete)

	mux.HandleFunc("GET /join/{collection}/{other}", s.handleJoin)

	if s.config.LogRequests {
		return loggerMiddleware(mux)
	}
	return mux
}

// Listen serves requests until Shutdown is called. It returns nil after a shutdown.
func (s *Server) Listen() error {
	log.Infof("Starting HTTP server on %s for store %q", s.config.Endpoint, s.mirror.Name())
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running ones
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		log.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

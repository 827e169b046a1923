package ipc

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arcgrid_http_requests_total",
	Help: "HTTP requests by method, route pattern and status",
}, []string{"method", "pattern", "status"})

// Server wraps an HTTP server with the host's routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address. corsOrigin is
// sent as Access-Control-Allow-Origin.
func NewServer(h *Handler, listenAddr, corsOrigin string) *Server {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Routes(h, corsOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{
		httpServer: srv,
	}
}

// Routes builds the full handler chain: routing, CORS and request logging.
func Routes(h *Handler, corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	// Health and metrics.
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/stats", h.Stats)

	// Task endpoints.
	mux.HandleFunc("GET /api/v1/tasks/random", h.RandomTask)
	mux.HandleFunc("GET /api/v1/tasks/stats", h.TaskStats)
	mux.HandleFunc("GET /api/v1/tasks/{taskID}", h.GetTask)

	// Attempt flow endpoints.
	mux.HandleFunc("POST /api/v1/attempts", h.CreateAttempt)
	mux.HandleFunc("GET /api/v1/attempts/{attemptID}", h.GetAttempt)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/advance", h.AdvanceAttempt)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/submit", h.SubmitAttempt)
	mux.HandleFunc("GET /api/v1/attempts/{attemptID}/events", h.ListEvents)

	// Editor commands.
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/pointer", h.Pointer)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/mode", h.SetMode)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/color", h.SelectColor)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/click", h.ClickCell)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/region", h.SelectRegion)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/resize", h.Resize)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/fill", h.FillAll)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/reset", h.Reset)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/copy", h.CopyFromInput)
	mux.HandleFunc("POST /api/v1/attempts/{attemptID}/test", h.TestSolution)

	// Action log endpoints.
	mux.HandleFunc("GET /api/v1/attempts/{attemptID}/actions", h.ListActions)
	mux.HandleFunc("GET /api/v1/attempts/{attemptID}/actions/stream", h.StreamActions)

	// Client-held logs.
	mux.HandleFunc("POST /api/v1/submissions", h.Submit)

	log := h.Log
	if log == nil {
		log = slog.Default()
	}
	return requestLogger(log, corsMiddleware(corsOrigin, mux))
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for the browser front end.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusWriter records the response status and size for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Flush lets the action stream push events through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestLogger logs method, path, status, bytes and duration of each request
// and counts it by route pattern.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()

		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration", time.Since(start),
		)
	})
}

package worker

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mmcdole/sarathi/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SourceHeader tells the client where a response was served from.
const SourceHeader = "X-Sarathi-Source"

// HandlerOptions configures the HTTP front.
type HandlerOptions struct {
	// Gatherer, when set, is exposed at /metrics.
	Gatherer prometheus.Gatherer
}

// NewHandler exposes the interceptor over HTTP. Admin routes live under
// /_worker; every other path is answered through Fetch.
func NewHandler(i *Interceptor, logger *slog.Logger, opts HandlerOptions) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/_worker", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, i.Status())
		})
		r.Post("/install", func(w http.ResponseWriter, req *http.Request) {
			writeLifecycle(w, i.Install(req.Context(), nil), i)
		})
		r.Post("/activate", func(w http.ResponseWriter, req *http.Request) {
			writeLifecycle(w, i.Activate(req.Context()), i)
		})
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		res := i.Fetch(req.Context(), req)
		if res.Response == nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		for k, vv := range res.Response.Header {
			for _, v := range vv {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set(SourceHeader, string(res.Source))
		w.WriteHeader(res.Response.Status)
		if req.Method != http.MethodHead {
			_, _ = w.Write(res.Response.Body)
		}
	}))

	return r
}

func writeLifecycle(w http.ResponseWriter, err error, i *Interceptor) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, i.Status())
	case errors.Is(err, domain.ErrInstallInProgress), errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"source", ww.Header().Get(SourceHeader),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

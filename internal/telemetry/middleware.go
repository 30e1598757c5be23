package telemetry

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Middleware wraps console handlers to collect inbound request telemetry
func (t *ConsoleTelemetry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		t.Record(r.Context(), ConsoleRequest{
			Method:     r.Method,
			Route:      routeTemplate(r),
			StatusCode: wrapper.statusCode,
			Duration:   time.Since(start),
		})
	})
}

// responseWriterWrapper captures the status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// routeTemplate returns the matched mux template ("/v1/{entity}/{id}")
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

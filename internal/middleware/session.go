package middleware

import (
	"log/slog"
	"net/http"

	"drip-admin-console/internal/storage"
)

// ExpireSession forgets the stored bearer token whenever a handler answers
// 401. It must run after APIKeyAuth so rejected console keys never reach it.
func ExpireSession(session storage.SessionStorage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if sw.status != http.StatusUnauthorized {
				return
			}
			if err := session.Delete(storage.TokenKey); err != nil {
				slog.Error("Failed to clear expired session", "error", err)
				return
			}
			slog.Warn("Backend rejected the session token, cleared it", "path", r.URL.Path)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillchat/quill/internal/log"
)

// health is the liveness probe: 200 whenever the process is up.
func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness pings the database; 503 until dependencies are up.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			http.Error(w, "database pool not configured", http.StatusServiceUnavailable)
			return
		}
		if err := pool.Ping(r.Context()); err != nil {
			logger.Error("readiness check failed", "error", err)
			http.Error(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
}

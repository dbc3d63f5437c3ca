package workerauth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const jobIDContextKey contextKey = "worker_job_id"

// ExtractJobID parses the job id out of a /worker/{uuid}/... path.
func ExtractJobID(path string) (uuid.UUID, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[0] != "worker" {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// Middleware returns an http middleware that authenticates requests under
// /worker/{job_id}/... against store. On success, the job id is attached to
// the request context for downstream handlers via JobIDFromContext.
func Middleware(store *TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jobID, ok := ExtractJobID(r.URL.Path)
			if !ok {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !store.Validate(jobID, token) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), jobIDContextKey, jobID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// JobIDFromContext retrieves the job id attached by Middleware.
func JobIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(jobIDContextKey).(uuid.UUID)
	return id, ok
}

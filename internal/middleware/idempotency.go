package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// IdempotencyHeader is the standard HTTP header for idempotency keys.
	IdempotencyHeader = "Idempotency-Key"

	// idempotencyCacheTTL defines how long responses are cached in Redis.
	idempotencyCacheTTL = 24 * time.Hour

	// lockTimeout prevents indefinite locks if a request crashes mid-flight.
	lockTimeout = 30 * time.Second

	cacheKeyPrefix = "idempotency:"
	lockKeyPrefix  = "idempotency-lock:"
)

// responseRecorder captures the status and body so a replayed request can be
// answered from cache.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Idempotency makes the transfer endpoint safe to retry: the first request
// under a key wins a Redis SetNX lock and its 2xx response is cached; retries
// replay the cached response, and concurrent duplicates are rejected with 409.
// Requests without the header pass through untouched.
func Idempotency(rdb *redis.Client, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			cacheKey := cacheKeyPrefix + key
			lockKey := lockKeyPrefix + key

			cached, err := rdb.Get(ctx, cacheKey).Result()
			if err == nil {
				logger.Info("Idempotency cache hit", "key", key)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Hit", "true")
				w.Write([]byte(cached))
				return
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "processing", lockTimeout).Result()
			if err != nil {
				logger.Error("Idempotency lock acquisition failed", "key", key, "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !acquired {
				logger.Warn("Concurrent request with same idempotency key", "key", key)
				writeConflict(w)
				return
			}
			defer func() {
				if err := rdb.Del(ctx, lockKey).Err(); err != nil {
					logger.Warn("Failed to release idempotency lock", "key", key, "error", err)
				}
			}()

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode >= 200 && recorder.statusCode < 300 {
				if err := rdb.Set(ctx, cacheKey, recorder.body.String(), idempotencyCacheTTL).Err(); err != nil {
					logger.Warn("Failed to cache idempotent response", "key", key, "error", err)
				}
			}
		})
	}
}

func writeConflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	w.Write([]byte(`{"success":false,"message":"a request with this idempotency key is currently being processed"}`))
}

// Package idempotency lets PutContext, MoveContext and Bulk requests
// carry an Idempotency-Key header so a retried request (client timeout,
// load-balancer retry) replays the original response instead of
// re-applying the write.
package idempotency

import (
	"bytes"
	"database/sql"
	"log/slog"
	"net/http"
	"time"
)

// cachedResponse is a previously-seen response kept for replay.
type cachedResponse struct {
	StatusCode int
	Body       []byte
}

// Store persists idempotency keys across restarts.
type Store interface {
	Check(key string) (*cachedResponse, bool)
	Set(key string, statusCode int, body []byte)
}

// PostgresStore backs Store with a table keyed by the client-supplied
// Idempotency-Key, evicted after ttl.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	key         TEXT PRIMARY KEY,
	status_code INT NOT NULL,
	body        BYTEA NOT NULL,
	cached_at   TIMESTAMPTZ NOT NULL
);`

// NewPostgresStore builds a PostgresStore. Call Init before first use.
func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

func (s *PostgresStore) Init() error {
	_, err := s.db.Exec(pgSchema)
	return err
}

func (s *PostgresStore) Check(key string) (*cachedResponse, bool) {
	var statusCode int
	var body []byte
	var cachedAt time.Time

	err := s.db.QueryRow(
		`SELECT status_code, body, cached_at FROM idempotency_keys WHERE key = $1`, key,
	).Scan(&statusCode, &body, &cachedAt)
	if err != nil {
		return nil, false
	}
	if time.Since(cachedAt) > s.ttl {
		_, _ = s.db.Exec(`DELETE FROM idempotency_keys WHERE key = $1`, key)
		return nil, false
	}
	return &cachedResponse{StatusCode: statusCode, Body: body}, true
}

func (s *PostgresStore) Set(key string, statusCode int, body []byte) {
	_, err := s.db.Exec(
		`INSERT INTO idempotency_keys (key, status_code, body, cached_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (key) DO UPDATE SET status_code = $2, body = $3, cached_at = NOW()`,
		key, statusCode, body,
	)
	if err != nil {
		slog.Error("idempotency: failed to store key", "key", key, "error", err)
	}
}

// responseCapture buffers a handler's response so it can be both sent
// and cached.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.statusCode = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Middleware replays the cached response for a repeated Idempotency-Key
// on POST/PUT requests; first-seen requests are captured and cached if
// they succeed (2xx).
func Middleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if cached, ok := store.Check(key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Set(key, capture.statusCode, capture.body.Bytes())
			}
		})
	}
}

package idempotency

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type memStore struct {
	entries map[string]*cachedResponse
}

func newMemStore() *memStore { return &memStore{entries: make(map[string]*cachedResponse)} }

func (s *memStore) Check(key string) (*cachedResponse, bool) {
	c, ok := s.entries[key]
	return c, ok
}

func (s *memStore) Set(key string, statusCode int, body []byte) {
	s.entries[key] = &cachedResponse{StatusCode: statusCode, Body: body}
}

func TestMiddleware_ReplaysCachedResponseForSameKey(t *testing.T) {
	store := newMemStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ctx-1"}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/contexts", nil)
	req.Header.Set("Idempotency-Key", "key-1")

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req)
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, w2.Code)
	assert.Equal(t, "true", w2.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestMiddleware_NoKeyPassesThroughEveryTime(t *testing.T) {
	store := newMemStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/contexts", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 2, calls)
}

func TestMiddleware_FailedResponseNotCached(t *testing.T) {
	store := newMemStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	req := httptest.NewRequest(http.MethodPost, "/contexts", nil)
	req.Header.Set("Idempotency-Key", "key-2")

	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 2, calls)
}

package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mw "github.com/kiranshivaraju/captionforge/internal/api/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Counter ---

type mockCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func (m *mockCounter) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[key]++
	m.keys = append(m.keys, key)
	return m.counts[key], nil
}

// --- Helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error object in response")
	return errObj
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = addr
	return req
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCounter{}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:5123"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"ratelimit:10.0.0.1"}, mc.keys)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCounter{}
	handler := mw.NewRateLimit(mc, 2).Limit(okHandler())

	for range 2 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.2:40000"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.2:40001"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_CountsClientsSeparately(t *testing.T) {
	mc := &mockCounter{}
	handler := mw.NewRateLimit(mc, 1).Limit(okHandler())

	for _, addr := range []string{"10.0.0.3:1", "10.0.0.4:1"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(addr))
		assert.Equal(t, http.StatusOK, w.Code, addr)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mc := &mockCounter{err: errors.New("redis down")}
	handler := mw.NewRateLimit(mc, 1).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.5:1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_DefaultLimit(t *testing.T) {
	handler := mw.NewRateLimit(&mockCounter{}, 0).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.6:1"))

	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecovery_RepanicsAbortHandler(t *testing.T) {
	handler := mw.Recovery(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(w, req)
	})
}

func TestRecovery_LeavesStartedResponseAlone(t *testing.T) {
	handler := mw.Logger(mw.Recovery(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("event: progress\n\n"))
		panic("stream broke")
	})))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "event: progress\n\n", w.Body.String())
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestLogger_KeepsFlusherReachable(t *testing.T) {
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("event: progress\n\n"))
		assert.NoError(t, http.NewResponseController(w).Flush())
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, w.Flushed)
}

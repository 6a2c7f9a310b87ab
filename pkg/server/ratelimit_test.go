package server

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(newTestLogger(), 100)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("ip:10.0.0.1"), "request %d within burst", i)
	}

	assert.False(t, rl.Allow("ip:10.0.0.1"))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(newTestLogger(), 100)

	for i := 0; i < 10; i++ {
		rl.Allow("ip:10.0.0.1")
	}

	assert.False(t, rl.Allow("ip:10.0.0.1"))
	assert.True(t, rl.Allow("ip:10.0.0.2"))
}

func TestRateLimiterCleanupResetsClients(t *testing.T) {
	rl := NewRateLimiter(newTestLogger(), 100)

	for i := 0; i < 10; i++ {
		rl.Allow("ip:10.0.0.1")
	}

	assert.False(t, rl.Allow("ip:10.0.0.1"))

	rl.CleanupExpired()

	assert.True(t, rl.Allow("ip:10.0.0.1"))
}

// Cleanup runs on a timer while request goroutines use the limiter map, so
// the two must be safe to interleave. Run with the race detector enabled.
func TestRateLimiterCleanupConcurrentWithRequests(t *testing.T) {
	rl := NewRateLimiter(newTestLogger(), 100)

	const iterations = 1000

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()

		for i := 0; i < iterations; i++ {
			rl.Allow("ip:10.0.0.1")
		}
	}()

	go func() {
		defer wg.Done()

		for i := 0; i < iterations; i++ {
			rl.CleanupExpired()
		}
	}()

	wg.Wait()
}

func TestRateLimiterHandlerRejectsWithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(newTestLogger(), 100)

	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var lastCode int

	for i := 0; i < 11; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth/discord", nil)
		req.RemoteAddr = "10.0.0.1:1234"

		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter - фиксированное окно на клиента
type RateLimiter struct {
	requests int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	clients  map[string]*clientWindow
}

type clientWindow struct {
	count   int
	expires time.Time
}

func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 || window <= 0 {
		return &RateLimiter{}
	}

	return &RateLimiter{
		requests: requests,
		window:   window,
		now:      time.Now,
		clients:  make(map[string]*clientWindow),
	}
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	if r == nil || r.requests == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if exceeded := r.hit(ClientIP(req)); exceeded {
			w.Header().Set("Retry-After", strconv.Itoa(int(r.window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"success":false,"message":"rate limit exceeded","code":"rate_limited"}` + "\n"))
			return
		}

		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) hit(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	state, ok := r.clients[key]
	if !ok || now.After(state.expires) {
		r.sweep(now)
		r.clients[key] = &clientWindow{count: 1, expires: now.Add(r.window)}
		return false
	}

	if state.count >= r.requests {
		return true
	}

	state.count++
	return false
}

// sweep убирает истёкшие окна, чтобы карта не росла без границ
func (r *RateLimiter) sweep(now time.Time) {
	for key, state := range r.clients {
		if now.After(state.expires) {
			delete(r.clients, key)
		}
	}
}

// ClientIP извлекает реальный IP клиента с учетом прокси
func ClientIP(r *http.Request) string {
	if r == nil {
		return "unknown"
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/apperr"
)

type contextKey string

const actorKey contextKey = "actor"

func actorFrom(ctx context.Context) user.Actor {
	actor, _ := ctx.Value(actorKey).(user.Actor)
	return actor
}

// authMiddleware resolves the Bearer token into an actor. Requests without a
// valid token are rejected; routes open to anonymous callers are mounted
// outside this middleware.
func (h *handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeAppError(w, apperr.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeAppError(w, apperr.Unauthorized("invalid Authorization header format"))
			return
		}

		actor, err := h.app.Accounts.VerifyToken(parts[1])
		if err != nil {
			writeAppError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// requireStaff rejects customers.
func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r.Context()).Role.Staff() {
			writeAppError(w, apperr.Unauthorized("this operation requires a staff role"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects everyone but admins.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorFrom(r.Context()).Role != user.RoleAdmin {
			writeAppError(w, apperr.Unauthorized("this operation requires the admin role"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter applies a per-client token bucket keyed by remote IP.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	perSec  rate.Limit
	burst   int
}

func newRateLimiter(perSec float64, burst int) *rateLimiter {
	if perSec <= 0 {
		perSec = 25
	}
	if burst <= 0 {
		burst = 50
	}
	return &rateLimiter{
		clients: make(map[string]*rate.Limiter),
		perSec:  rate.Limit(perSec),
		burst:   burst,
	}
}

func (rl *rateLimiter) limiterFor(addr string) *rate.Limiter {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.clients[host]
	if !ok {
		lim = rate.NewLimiter(rl.perSec, rl.burst)
		rl.clients[host] = lim
	}
	return lim
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiterFor(r.RemoteAddr).Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

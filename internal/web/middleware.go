package web

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/metrics"
)

// loadPrincipal attaches the signed in user, if any, to the request context.
// Anonymous requests pass through.
func (s *Server) loadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := s.opts.Sessions.Load(r)
		if p != nil {
			r = r.WithContext(auth.WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// plaintextCSRF tells the CSRF middleware that requests arrive over plain HTTP
// unless cookies are restricted to HTTPS.
func (s *Server) plaintextCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.SecureOnly {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	s.log.Warn("csrf check failed",
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
		zap.Error(csrf.FailureReason(r)))
	s.renderError(w, r, http.StatusForbidden, "Your form has expired. Go back, reload the page and try again.")
}

// throttleIdeas limits idea submissions per client address.
func (s *Server) throttleIdeas(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			metrics.RateLimitedTotal.Inc()
			s.log.Info("idea submission throttled", zap.String("remote_addr", r.RemoteAddr))
			s.renderError(w, r, http.StatusTooManyRequests,
				"You are submitting ideas too quickly. Wait a minute and try again.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

const limiterIdleTTL = 10 * time.Minute

// ipLimiter keeps one token bucket per client address. A nil ipLimiter allows
// everything.
type ipLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientLimiter
	lastPrune time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(perMinute float64, burst int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		limit:     rate.Limit(perMinute / 60),
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
		lastPrune: time.Now(),
	}
}

// Allow reports whether the client may proceed and consumes a token if so.
func (l *ipLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) > limiterIdleTTL {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastPrune = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// clientIP returns the host part of the remote address. Behind a trusted
// proxy the top-level router rewrites RemoteAddr first.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

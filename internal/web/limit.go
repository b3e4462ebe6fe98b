package web

import (
	"net"
	"net/http"
	"strings"

	"github.com/willemschots/mailverify/internal/ratelimit"
)

// allow checks the rate limit of the client for the given scope.
func (s *Server) allow(r *http.Request, scope string, limit int) (ratelimit.Decision, error) {
	key := scope + ":" + s.clientKey(r)

	d, err := s.deps.Limiter.Allow(r.Context(), key, limit, s.cfg.RateLimits.Window)
	if err != nil {
		return ratelimit.Decision{}, err
	}

	if !d.Allowed {
		s.deps.Logger.Warn("rate limit exceeded", "key", key, "path", r.URL.Path, "retryAfter", d.RetryAfter)
	}

	return d, nil
}

// limited is middleware that rate limits next.
func (s *Server) limited(scope string, limit int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := s.allow(r, scope, limit)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		if !d.Allowed {
			err := writeTooManyRequests(w, d.RetryAfterSeconds())
			if err != nil {
				s.deps.Logger.Error("failed to write response", "path", r.URL.Path, "error", err)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the client that made the request.
//
// Behind a trusted proxy this is the last X-Forwarded-For hop, the one the
// proxy appended. Hops left of it are written by the client.
func (s *Server) clientKey(r *http.Request) string {
	if s.cfg.TrustProxy {
		hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
		if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}

	return r.RemoteAddr
}

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"printshop/internal/apperr"
	"printshop/internal/http/respond"
	"printshop/internal/logging"
	"printshop/internal/security"
)

var (
	ErrRateLimited   = apperr.Security("rate_limited", "Too many requests. Please try again later.", http.StatusTooManyRequests)
	ErrSourceBlocked = apperr.Security("source_blocked", "Too many requests. Your access has been temporarily blocked.", http.StatusTooManyRequests)
)

// ClientIP is the request's source address: the socket peer, or the forwarded
// client when RealIP accepted a trusted proxy's header.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimit applies the limiter's category to every request. A store error
// lets the request through.
func RateLimit(l *security.Limiter, cat security.Category, lg logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			d, err := l.Allow(r.Context(), ip, cat)
			if err != nil {
				lg.WithError(err).WithField("category", cat).Warn("rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.ResetAt.IsZero() {
				h.Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
			}

			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
				logging.Security(lg).WithFields(logrus.Fields{
					"ip":          ip,
					"category":    cat,
					"path":        r.URL.Path,
					"blocked":     d.Blocked,
					"retry_after": d.RetryAfterSeconds(),
				}).Warn("rate limit exceeded")
				if d.Blocked {
					respond.Error(w, ErrSourceBlocked)
					return
				}
				respond.Error(w, ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

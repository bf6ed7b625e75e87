package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"printshop/internal/auth"
)

// RequestLogger logs one line per request once it completed.
func RequestLogger(lg logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// auth runs deeper in the chain; it reports the user back through
			// this slot
			var uid uint64
			r = r.WithContext(context.WithValue(r.Context(), userSlotKey{}, &uid))
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := lg.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"ip":          ClientIP(r),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if uid != 0 {
				entry = entry.WithField("user_id", uid)
			}
			if status >= 500 {
				entry.Error("request completed")
			} else if status >= 400 {
				entry.Warn("request completed")
			} else {
				entry.Info("request completed")
			}
		})
	}
}

type userSlotKey struct{}

// Activity records that the authenticated caller is active and reports the
// user to the request logger. It must run after auth.RequireAuth.
func Activity(touch func(ctx context.Context, userID uint64) error, lg logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := auth.UserIDFromContext(r.Context()); ok {
				if slot, ok := r.Context().Value(userSlotKey{}).(*uint64); ok {
					*slot = id
				}
				if err := touch(r.Context(), id); err != nil {
					lg.WithError(err).WithField("user_id", id).Warn("failed to update last_active")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"printshop/internal/auth"
	"printshop/internal/logging"
)

const maxBodyCapture = 64 << 10

type Writer interface {
	Insert(ctx context.Context, l *Log) error
}

type Recorder struct {
	Store Writer
	Log   logrus.FieldLogger
	Now   func() time.Time
}

func NewRecorder(store Writer, lg logrus.FieldLogger) *Recorder {
	return &Recorder{Store: store, Log: lg, Now: time.Now}
}

type details struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Query  map[string]any `json:"query,omitempty"`
	Body   map[string]any `json:"body,omitempty"`
}

// Middleware records the request under action once the handler answered
// with a 2xx status. Credential fields in the body are redacted. A failed
// insert is logged and never changes the response.
func (rec *Recorder) Middleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := captureJSONBody(r)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status < 200 || status >= 300 {
				return
			}

			d := details{Method: r.Method, Path: r.URL.Path}
			if len(r.URL.Query()) > 0 {
				d.Query = map[string]any{}
				for k, v := range r.URL.Query() {
					d.Query[k] = strings.Join(v, ",")
				}
				d.Query = logging.Redact(d.Query)
			}
			if body != nil {
				d.Body = logging.Redact(body)
			}
			raw, _ := json.Marshal(d)

			entry := &Log{
				Action:    action,
				Details:   string(raw),
				IPAddress: clientIP(r),
				UserAgent: truncate(r.UserAgent(), 512),
				CreatedAt: rec.Now(),
			}
			if id, ok := auth.UserIDFromContext(r.Context()); ok {
				entry.UserID = &id
			}

			// the client may already be gone; the record is still wanted
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
			defer cancel()
			if err := rec.Store.Insert(ctx, entry); err != nil {
				rec.Log.WithError(err).WithFields(logrus.Fields{"action": action, "user_id": entry.UserID}).Error("failed to create audit log")
				return
			}
			rec.Log.WithFields(logrus.Fields{
				"action":  action,
				"user_id": entry.UserID,
				"method":  r.Method,
				"path":    r.URL.Path,
			}).Info("audit log created")
		})
	}
}

// captureJSONBody reads a JSON body and puts it back for the handler.
func captureJSONBody(r *http.Request) map[string]any {
	if r.Body == nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyCapture+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), rest), rest}
	if err != nil || len(raw) > maxBodyCapture {
		return nil
	}
	var m map[string]any
	if json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

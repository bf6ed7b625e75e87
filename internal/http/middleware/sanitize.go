package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"printshop/internal/apperr"
	"printshop/internal/http/respond"
	"printshop/internal/logging"
)

const maxSanitizedBody = 1 << 20

var (
	angleBrackets = regexp.MustCompile(`[<>]`)
	jsProtocol    = regexp.MustCompile(`(?i)javascript:`)
	eventHandler  = regexp.MustCompile(`(?i)on\w+\s*=`)

	sqlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bUNION\b.*\bSELECT\b`),
		regexp.MustCompile(`(--\s|#\s|/\*|\*/)`),
		regexp.MustCompile(`(?i)\bOR\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+['"]?`),
		regexp.MustCompile(`(?i)\bAND\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+['"]?`),
		regexp.MustCompile(`(?i)\bDROP\b\s+\bTABLE\b`),
		regexp.MustCompile(`(?i)(\bEXEC\b\s*\(|\bEXECUTE\b\s*\()`),
	}
)

var ErrInvalidInput = apperr.Validation("invalid_input", "Invalid input detected")

// SanitizeString strips markup that could end up rendered in a browser.
func SanitizeString(s string) string {
	s = angleBrackets.ReplaceAllString(s, "")
	s = jsProtocol.ReplaceAllString(s, "")
	s = eventHandler.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// LooksLikeSQLInjection flags obvious injection attempts. Queries are
// parameterized everywhere; this only feeds the security log.
func LooksLikeSQLInjection(s string) bool {
	for _, p := range sqlPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Sanitize cleans string values of JSON bodies and query parameters.
// Credential fields are left untouched.
func Sanitize(lg logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.RawQuery) > 0 {
				q := r.URL.Query()
				for k, vs := range q {
					for i, v := range vs {
						vs[i] = clean(lg, r, k, v)
					}
				}
				r.URL.RawQuery = q.Encode()
			}

			if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				raw, err := io.ReadAll(io.LimitReader(r.Body, maxSanitizedBody+1))
				_ = r.Body.Close()
				if err != nil || len(raw) > maxSanitizedBody {
					respond.Error(w, ErrInvalidInput.WithMessage("Request body too large"))
					return
				}
				if len(bytes.TrimSpace(raw)) > 0 {
					var v any
					dec := json.NewDecoder(bytes.NewReader(raw))
					dec.UseNumber()
					if err := dec.Decode(&v); err != nil {
						respond.Error(w, ErrInvalidInput.WithMessage("Invalid JSON body"))
						return
					}
					raw, _ = json.Marshal(walk(lg, r, "", v))
				}
				r.Body = io.NopCloser(bytes.NewReader(raw))
				r.ContentLength = int64(len(raw))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func walk(lg logrus.FieldLogger, r *http.Request, key string, v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			t[k] = walk(lg, r, k, x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = walk(lg, r, key, x)
		}
		return t
	case string:
		return clean(lg, r, key, t)
	default:
		return v
	}
}

func clean(lg logrus.FieldLogger, r *http.Request, key, s string) string {
	if logging.IsSensitiveKey(key) {
		return s
	}
	if LooksLikeSQLInjection(s) {
		sample := s
		if len(sample) > 100 {
			sample = sample[:100]
		}
		logging.Security(lg).WithFields(logrus.Fields{
			"ip":    ClientIP(r),
			"path":  r.URL.Path,
			"field": key,
			"value": sample,
		}).Warn("potential sql injection detected")
	}
	return SanitizeString(s)
}

// Package logging configures the logrus logger used across the service.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Level  string
	JSON   bool
	Writer io.Writer
}

func New(opt Options) (*logrus.Logger, error) {
	lvl := strings.TrimSpace(strings.ToLower(opt.Level))
	if lvl == "" {
		lvl = "info"
	}
	level, err := logrus.ParseLevel(lvl)
	if err != nil {
		return nil, err
	}

	lg := logrus.New()
	lg.SetLevel(level)
	lg.SetOutput(os.Stderr)
	if opt.Writer != nil {
		lg.SetOutput(opt.Writer)
	}
	if opt.JSON {
		lg.SetFormatter(&logrus.JSONFormatter{})
	} else {
		lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return lg, nil
}

// Discard is a logger for tests and optional collaborators.
func Discard() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

// Security returns an entry for security gate events (lockouts, blocks,
// rate limiting). These are never logged as application errors.
func Security(lg logrus.FieldLogger) *logrus.Entry {
	return lg.WithField("event", "security")
}

var sensitiveKeys = []string{"password", "token", "secret", "authorization"}

// IsSensitiveKey reports whether a field name holds a credential.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Redact returns a shallow copy of fields with credential values replaced.
func Redact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if IsSensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		if m, ok := v.(map[string]any); ok {
			out[k] = Redact(m)
			continue
		}
		out[k] = v
	}
	return out
}

package middleware

import (
	"net/http"
	"net/netip"
	"strings"
)

// RealIP replaces RemoteAddr with the forwarded client address, but only when
// the connection itself comes from one of the trusted proxies. Any other peer
// keeps its socket address whatever headers it sends.
func RealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip, ok := forwardedClient(r, trusted); ok {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trustedPeer(a netip.Addr, trusted []netip.Prefix) bool {
	a = a.Unmap()
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// forwardedClient walks X-Forwarded-For from the right and stops at the first
// hop that is not a trusted proxy. Hops to the left of it were written by the
// client and are ignored.
func forwardedClient(r *http.Request, trusted []netip.Prefix) (string, bool) {
	if len(trusted) == 0 {
		return "", false
	}
	peer, err := netip.ParseAddr(ClientIP(r))
	if err != nil || !trustedPeer(peer, trusted) {
		return "", false
	}

	if xff := strings.Join(r.Header.Values("X-Forwarded-For"), ","); strings.TrimSpace(xff) != "" {
		hops := strings.Split(xff, ",")
		var last netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			a = a.Unmap()
			if !trustedPeer(a, trusted) {
				return a.String(), true
			}
			last = a
		}
		if last.IsValid() {
			return last.String(), true
		}
		return "", false
	}

	if a, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return a.Unmap().String(), true
	}
	return "", false
}

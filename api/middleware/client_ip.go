package middleware

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP rewrites r.RemoteAddr from X-Forwarded-For or X-Real-IP, but only
// when the direct peer is one of the trusted proxies. Forwarded-for hops are
// read right to left and trusted hops are skipped.
func ClientIP(trusted *IPAllowlist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if trusted.Len() == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trusted.Allows(r.RemoteAddr) {
				if ip := forwardedClient(r.Header, trusted); ip != "" {
					r.RemoteAddr = ip
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(h http.Header, trusted *IPAllowlist) string {
	hops := strings.Split(strings.Join(h.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// A malformed hop ends the trusted chain.
			return ""
		}
		ip := addr.Unmap().String()
		if !trusted.Allows(ip) {
			return ip
		}
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(h.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	return ""
}

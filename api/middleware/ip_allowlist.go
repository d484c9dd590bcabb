package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/angelmondragon/convtrack-backend/api/responses"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
)

// IPAllowlist holds the addresses and prefixes allowed to call an endpoint.
type IPAllowlist struct {
	prefixes []netip.Prefix
}

// ParseIPAllowlist accepts single addresses ("203.0.113.10") and CIDR
// prefixes ("198.51.100.0/24").
func ParseIPAllowlist(entries []string) (*IPAllowlist, error) {
	list := &IPAllowlist{}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allow-list prefix %q: %w", entry, err)
			}
			list.prefixes = append(list.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allow-list address %q: %w", entry, err)
		}
		addr = addr.Unmap()
		list.prefixes = append(list.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return list, nil
}

// Allows reports whether remote (host or host:port) is listed.
func (l *IPAllowlist) Allows(remote string) bool {
	if l == nil {
		return false
	}
	host := strings.TrimSpace(remote)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (l *IPAllowlist) Len() int {
	if l == nil {
		return 0
	}
	return len(l.prefixes)
}

// RequireAllowedIP rejects callers outside list with 401. With enforce unset
// every caller passes. It reads r.RemoteAddr, so ClientIP must run first
// behind a proxy.
func RequireAllowedIP(list *IPAllowlist, enforce bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enforce {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !list.Allows(r.RemoteAddr) {
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithField(ctx, "remote_ip", r.RemoteAddr)
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP rewrites RemoteAddr to the client address reported by X-Forwarded-For or X-Real-IP, but only when
// the connection comes from one of the trusted proxies. Other requests keep the socket address.
func ClientIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(trusted) > 0 {
				if addr, ok := forwardedClient(r, trusted); ok {
					r.RemoteAddr = addr
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseHost(hostport string) (netip.Addr, error) {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	return netip.ParseAddr(strings.TrimSpace(host))
}

// forwardedClient walks X-Forwarded-For from the right and returns the first hop that is not a trusted proxy.
func forwardedClient(r *http.Request, trusted []netip.Prefix) (string, bool) {
	peer, err := parseHost(r.RemoteAddr)
	if err != nil || !isTrusted(peer, trusted) {
		return "", false
	}
	var hops []string
	for _, value := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(value, ",")...)
	}
	var leftmost string
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := parseHost(hops[i])
		if err != nil {
			// anything left of a garbled hop was written by the client
			break
		}
		if !isTrusted(addr, trusted) {
			return addr.Unmap().String(), true
		}
		leftmost = addr.Unmap().String()
	}
	if leftmost != "" {
		return leftmost, true
	}
	if addr, err := parseHost(r.Header.Get("X-Real-IP")); err == nil {
		return addr.Unmap().String(), true
	}
	return "", false
}

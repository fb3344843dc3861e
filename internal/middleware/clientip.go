package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/vyrodovalexey/energygw/internal/util"
)

type clientIPKey struct{}

// ClientIPResolver resolves the address of the calling client. Without
// trusted proxies only the TCP peer counts and X-Forwarded-For is ignored,
// so clients cannot spoof their way around per-client rate limits.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver builds a resolver that honors X-Forwarded-For only
// when the peer falls inside one of trustedProxies.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	prefixes := make([]netip.Prefix, 0, len(trustedProxies))
	for _, raw := range trustedProxies {
		prefix, err := util.ParseTrustedProxy(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("client ip resolver: %w", err)
		}
		prefixes = append(prefixes, prefix)
	}
	return &ClientIPResolver{trusted: prefixes}, nil
}

// Resolve returns the client address for r. Behind trusted proxies the
// X-Forwarded-For chain is walked right to left and the first untrusted
// hop wins; a chain made only of trusted hops resolves to the peer.
func (c *ClientIPResolver) Resolve(r *http.Request) string {
	peer := peerAddr(r.RemoteAddr)
	if c == nil || len(c.trusted) == 0 || !c.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(r.Header.Get(HeaderXForwardedFor), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !c.isTrusted(hop) {
			return hop
		}
	}
	return peer
}

func (c *ClientIPResolver) isTrusted(raw string) bool {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns a middleware that resolves the client address once and
// stores it on the request context for the logging and rate limiting
// middleware further down the chain.
func ClientIP(resolver *ClientIPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPKey{}, resolver.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromRequest returns the address stored by ClientIP, falling back
// to the TCP peer when the middleware is not installed.
func ClientIPFromRequest(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return peerAddr(r.RemoteAddr)
}

// peerAddr strips the port from a RemoteAddr value.
func peerAddr(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

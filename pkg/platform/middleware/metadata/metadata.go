// Package metadata carries the submitting client's network identity through
// the request context.
package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Client identifies the caller of a request.
type Client struct {
	IP        string
	UserAgent string
}

type clientKey struct{}

// ClientMetadata records the caller's IP and User-Agent on the request
// context. Mount it before anything that limits or attributes requests.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := Client{IP: ClientIPFromRequest(r), UserAgent: r.UserAgent()}
		next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), c)))
	})
}

// WithClient returns ctx carrying c.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// WithClientMetadata is WithClient for callers holding the parts.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	return WithClient(ctx, Client{IP: clientIP, UserAgent: userAgent})
}

// FromContext returns the recorded client, or the zero Client.
func FromContext(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

func GetClientIP(ctx context.Context) string {
	return FromContext(ctx).IP
}

func GetUserAgent(ctx context.Context) string {
	return FromContext(ctx).UserAgent
}

// ClientIPFromRequest prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the connection's remote address without its port.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

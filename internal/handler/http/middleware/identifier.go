// Package middleware provides HTTP middleware adapters around the core
// rate limiting engine: client identity resolution, quota header emission,
// and denial responses.
package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IdentifierResolver extracts the client identity a rate limit decision
// applies to. It provides an abstraction layer for different identity
// strategies, allowing the application to choose between secure RemoteAddr
// extraction (default), API-key headers, or custom per-route logic.
type IdentifierResolver interface {
	// Resolve extracts the client identity from an HTTP request.
	// Returns the identity as a string and an error if resolution fails.
	Resolve(r *http.Request) (string, error)
}

// ResolverFunc adapts an ordinary function to the IdentifierResolver
// interface.
type ResolverFunc func(r *http.Request) (string, error)

// Resolve calls f(r).
func (f ResolverFunc) Resolve(r *http.Request) (string, error) {
	return f(r)
}

// RemoteAddrResolver resolves the client identity from the RemoteAddr field
// of the HTTP request. This is the default and most secure approach as it
// uses the actual TCP connection IP, which cannot be spoofed by the client.
type RemoteAddrResolver struct{}

// Resolve extracts the IP address from r.RemoteAddr.
// The RemoteAddr format is "IP:port", so this method strips the port number
// to return only the IP address. Handles both IPv4 and IPv6 addresses.
//
// Examples:
//   - "192.168.1.1:54321" → "192.168.1.1"
//   - "[2001:db8::1]:8080" → "2001:db8::1"
//   - "127.0.0.1" → "127.0.0.1" (no port)
func (RemoteAddrResolver) Resolve(r *http.Request) (string, error) {
	return hostFromAddr(r.RemoteAddr)
}

// HeaderResolver resolves the client identity from a request header, e.g.
// an API key or an authenticated user ID set by an upstream auth layer.
// Resolution fails when the header is absent or blank, so callers fall back
// to the connection address rather than sharing one empty-identity window.
type HeaderResolver struct {
	// Header is the canonical header name to read, e.g. "X-API-Key".
	Header string
}

// Resolve returns the header value, trimmed of surrounding whitespace.
func (h HeaderResolver) Resolve(r *http.Request) (string, error) {
	value := strings.TrimSpace(r.Header.Get(h.Header))
	if value == "" {
		return "", fmt.Errorf("header %q is not set", h.Header)
	}
	return value, nil
}

// hostFromAddr strips the port from an "IP:port" address. Addresses without
// a port are returned as-is when they parse as an IP.
func hostFromAddr(addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("empty remote address")
	}

	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return host, nil
	}

	if ip := net.ParseIP(addr); ip != nil {
		return addr, nil
	}

	return "", fmt.Errorf("invalid remote address %q", addr)
}
